package extract

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// dirMaker coalesces concurrent "mkdir -p" requests for the same
// directory (spec.md §4.6 step 2, §5): at most one mkdir -p is in
// flight per path, and every caller waits on the same result via
// singleflight.Group instead of a hand-rolled pending-callback list.
// A small made-set short-circuits repeat requests for a directory
// already confirmed to exist.
type dirMaker struct {
	grp *singleflight.Group

	mu   sync.Mutex
	made map[string]bool
}

func newDirMaker(grp *singleflight.Group) *dirMaker {
	return &dirMaker{grp: grp, made: make(map[string]bool)}
}

func (d *dirMaker) ensure(dir string, mode fs.FileMode) error {
	d.mu.Lock()
	already := d.made[dir]
	d.mu.Unlock()
	if already {
		return nil
	}

	_, err, _ := d.grp.Do(dir, func() (any, error) {
		if err := os.MkdirAll(dir, mode); err != nil {
			return nil, err
		}
		d.markMade(dir)
		return nil, nil
	})
	return err
}

func (d *dirMaker) markMade(dir string) {
	d.mu.Lock()
	d.made[dir] = true
	d.mu.Unlock()
}

// hasSymlinkInPrefix walks from the filesystem root down to dir and
// reports whether any existing path component is itself a symlink —
// used to refuse writing through a preexisting symlink when
// PreservePaths is false (spec.md §4.6 step 1).
func (d *dirMaker) hasSymlinkInPrefix(dir string) bool {
	clean := filepath.Clean(dir)
	parts := strings.Split(clean, string(filepath.Separator))
	cur := ""
	for _, p := range parts {
		if p == "" {
			cur = string(filepath.Separator)
			continue
		}
		cur = filepath.Join(cur, p)
		fi, err := os.Lstat(cur)
		if err != nil {
			continue
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return true
		}
	}
	return false
}

// Package extract implements the extraction dispatcher: it consumes
// ReadEntry instances from the parse package and materializes files,
// directories, symlinks, and hard links on disk, per spec.md §4.6.
package extract

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/xerrors"

	"github.com/tarstream/tarstream/entry"
	"github.com/tarstream/tarstream/header"
)

// Severity classifies a Notice, mirroring the parse package's taxonomy
// (spec.md §7): warnings are recoverable and the extractor keeps
// accepting later entries; errors stop forward progress on the
// affected entry only.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// Notice is one diagnostic the extractor produced for a given entry.
type Notice struct {
	Severity Severity
	Path     string
	Message  string
	Err      error
}

// Options configures an Extractor (the extraction-relevant subset of
// spec.md §6's configuration options).
type Options struct {
	Cwd           string
	Strip         int
	PreservePaths bool
	Unlink        bool
	Newer         bool
	Umask         fs.FileMode
	Dmode         fs.FileMode
	Fmode         fs.FileMode

	Filter   func(path string, e *entry.ReadEntry) bool
	OnNotice func(Notice)
	Strict   bool

	// SharedDirGroup lets a caller opt into cross-Extractor
	// directory-creation memoization (DESIGN.md's resolved Open
	// Question for spec.md §6's sharing knob); nil gives this
	// Extractor its own singleflight.Group.
	SharedDirGroup *singleflight.Group
}

const defaultDmode fs.FileMode = 0o755

// Extractor materializes a stream of ReadEntry values onto a
// filesystem rooted at Options.Cwd.
type Extractor struct {
	opts Options
	dirs *dirMaker
}

// New builds a ready-to-use Extractor.
func New(opts Options) *Extractor {
	if opts.Dmode == 0 {
		opts.Dmode = defaultDmode
	}
	grp := opts.SharedDirGroup
	if grp == nil {
		grp = &singleflight.Group{}
	}
	return &Extractor{opts: opts, dirs: newDirMaker(grp)}
}

func (x *Extractor) notify(sev Severity, entryPath, msg string, err error) {
	if x.opts.Strict && sev == SeverityWarning {
		sev = SeverityError
	}
	if x.opts.OnNotice != nil {
		x.opts.OnNotice(Notice{Severity: sev, Path: entryPath, Message: msg, Err: err})
	}
}

// Extract materializes one parsed entry. It is the caller's
// responsibility to feed e's body through after calling Extract, the
// same as attaching to any other ReadEntry: Extract registers the
// OnData/OnEnd callbacks that perform the actual filesystem writes
// before returning.
func (x *Extractor) Extract(e *entry.ReadEntry) error {
	if e.Ignore || e.Meta {
		return nil
	}

	if x.opts.Filter != nil && !x.opts.Filter(e.Path(), e) {
		e.Ignore = true
		return nil
	}

	target, ok := x.fixPath(e.Path())
	if !ok {
		x.notify(SeverityWarning, e.Path(), "entry path escapes extraction root, skipping", nil)
		e.Ignore = true
		return nil
	}

	if !x.opts.PreservePaths && x.dirs.hasSymlinkInPrefix(filepath.Dir(target)) {
		x.notify(SeverityWarning, e.Path(), "parent path shadowed by an existing symlink, skipping", nil)
		e.Ignore = true
		return nil
	}

	if err := x.dirs.ensure(filepath.Dir(target), (x.opts.Dmode &^ x.opts.Umask)|0o700); err != nil {
		x.notify(SeverityError, e.Path(), "failed to create parent directory", err)
		return xerrors.Errorf("extract %s: %w", e.Path(), err)
	}

	if x.opts.Newer {
		if fi, err := os.Lstat(target); err == nil && !fi.ModTime().Before(e.Mtime()) {
			x.notify(SeverityWarning, e.Path(), "skipped: existing file is newer", nil)
			e.Ignore = true
			return nil
		}
	}

	if x.opts.Unlink {
		os.Remove(target)
	}

	switch e.TypeKey() {
	case header.TypeReg, header.TypeCont, header.TypeOldFile, header.TypeRegDeprecated:
		return x.extractFile(target, e)
	case header.TypeDir, header.TypeGNUDumpDir:
		return x.extractDir(target, e)
	case header.TypeLink:
		return x.extractHardLink(target, e)
	case header.TypeSymlink:
		return x.extractSymlink(target, e)
	case header.TypeChar, header.TypeBlock, header.TypeFifo:
		x.notify(SeverityWarning, e.Path(), "unsupported entry type, draining", nil)
		e.Ignore = true
		return nil
	default:
		x.notify(SeverityWarning, e.Path(), "unknown entry type, draining", nil)
		e.Ignore = true
		return nil
	}
}

// fixPath normalizes raw per spec.md §4.6 step 1: split on '/', drop
// the first Strip elements (applied after the filter but before the
// cwd join, per spec.md §9's explicit ordering note), reject a
// surviving ".." component when PreservePaths is false, then
// join(cwd, "/", path) — the empty root component is what defeats any
// attempt to escape cwd via an absolute archive path.
func (x *Extractor) fixPath(raw string) (target string, ok bool) {
	parts := strings.Split(raw, "/")
	if x.opts.Strip > 0 {
		if x.opts.Strip >= len(parts) {
			return "", false
		}
		parts = parts[x.opts.Strip:]
	}
	rel := strings.Join(parts, "/")

	if !x.opts.PreservePaths && containsDotDot(rel) {
		return "", false
	}

	joined := path.Join("/", rel)
	return filepath.Join(x.opts.Cwd, joined), true
}

func containsDotDot(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func (x *Extractor) fileMode(entryMode int64) fs.FileMode {
	mode := fs.FileMode(entryMode) & fs.ModePerm
	if x.opts.Fmode != 0 {
		mode = x.opts.Fmode
	}
	return mode &^ x.opts.Umask
}

func (x *Extractor) dirMode(entryMode int64) fs.FileMode {
	mode := x.opts.Dmode
	if mode == 0 {
		mode = fs.FileMode(entryMode) & fs.ModePerm
	}
	return mode &^ x.opts.Umask
}

// extractFile materializes a regular/contiguous/old-style file entry.
// Writes go through a renameio.PendingFile so a crash mid-extraction
// never leaves a half-written file at its final path (spec.md §4.6
// step 3's "File/OldFile/ContiguousFile" case).
func (x *Extractor) extractFile(target string, e *entry.ReadEntry) error {
	pf, err := renameio.NewPendingFile(target)
	if err != nil {
		x.notify(SeverityError, e.Path(), "failed to open target for writing", err)
		return xerrors.Errorf("extract %s: %w", e.Path(), err)
	}
	if err := pf.Chmod(x.fileMode(e.Mode())); err != nil {
		pf.Cleanup()
		x.notify(SeverityError, e.Path(), "failed to set target mode", err)
		return xerrors.Errorf("extract %s: %w", e.Path(), err)
	}

	var writeErr error
	e.OnData(func(p []byte) {
		if writeErr != nil {
			return
		}
		if _, err := pf.Write(p); err != nil {
			writeErr = err
		}
	})
	e.OnEnd(func() {
		if writeErr != nil {
			pf.Cleanup()
			x.notify(SeverityError, e.Path(), "failed writing extracted file", writeErr)
			return
		}
		if err := pf.CloseAtomicallyReplace(); err != nil {
			x.notify(SeverityError, e.Path(), "failed committing extracted file", err)
			return
		}
		chtimes(target, e.Atime(), e.Mtime())
	})
	return nil
}

// extractDir materializes a directory entry; any stray body bytes
// (there shouldn't be any) are dropped (spec.md §4.6 step 3's
// "Directory/GNUDumpDir" case: "resume the entry, drop any stray body
// bytes").
func (x *Extractor) extractDir(target string, e *entry.ReadEntry) error {
	mode := x.dirMode(e.Mode())
	if err := os.Mkdir(target, mode); err != nil && !os.IsExist(err) {
		x.notify(SeverityError, e.Path(), "failed to create directory", err)
		return xerrors.Errorf("extract %s: %w", e.Path(), err)
	}
	x.dirs.markMade(target)
	chtimes(target, e.Atime(), e.Mtime())
	e.OnData(func([]byte) {})
	return nil
}

// extractHardLink path-fixes the linkpath relative to cwd and calls
// link; on EEXIST it unlinks the target and retries once (spec.md
// §4.6 step 3's "Link (hard)" case).
func (x *Extractor) extractHardLink(target string, e *entry.ReadEntry) error {
	linkTarget, ok := x.fixPath(e.Linkpath())
	if !ok {
		x.notify(SeverityWarning, e.Path(), "hard link target escapes extraction root, skipping", nil)
		e.Ignore = true
		return nil
	}
	if err := os.Link(linkTarget, target); err != nil {
		if os.IsExist(err) {
			os.Remove(target)
			err = os.Link(linkTarget, target)
		}
		if err != nil {
			x.notify(SeverityError, e.Path(), "failed to create hard link", err)
			return xerrors.Errorf("extract %s: %w", e.Path(), err)
		}
	}
	e.OnData(func([]byte) {})
	return nil
}

// extractSymlink uses the raw linkpath as-is: relative semantics are
// archive-defined, not extractor-defined (spec.md §4.6 step 3's
// "SymbolicLink" case). On EEXIST it unlinks the target and retries
// once.
func (x *Extractor) extractSymlink(target string, e *entry.ReadEntry) error {
	link := e.Linkpath()
	if err := os.Symlink(link, target); err != nil {
		if os.IsExist(err) {
			os.Remove(target)
			err = os.Symlink(link, target)
		}
		if err != nil {
			x.notify(SeverityError, e.Path(), "failed to create symlink", err)
			return xerrors.Errorf("extract %s: %w", e.Path(), err)
		}
	}
	lchtimes(target, e.Atime(), e.Mtime())
	e.OnData(func([]byte) {})
	return nil
}

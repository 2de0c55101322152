//go:build unix

package extract

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// chtimes applies mtime/atime to a regular file or directory,
// best-effort (spec.md §4.6 steps 3's "on close apply mtime/atime
// (best-effort)").
func chtimes(path string, atime, mtime time.Time) {
	if mtime.IsZero() {
		return
	}
	if atime.IsZero() {
		atime = mtime
	}
	os.Chtimes(path, atime, mtime)
}

// lchtimes applies mtime/atime to a symlink itself. os.Chtimes always
// follows the link, which would silently retime whatever the symlink
// points at instead, so this goes through unix.Lutimes (SPEC_FULL.md's
// DOMAIN STACK wiring of golang.org/x/sys/unix).
func lchtimes(path string, atime, mtime time.Time) {
	if mtime.IsZero() {
		return
	}
	if atime.IsZero() {
		atime = mtime
	}
	tv := []unix.Timeval{
		unix.NsecToTimeval(atime.UnixNano()),
		unix.NsecToTimeval(mtime.UnixNano()),
	}
	unix.Lutimes(path, tv)
}

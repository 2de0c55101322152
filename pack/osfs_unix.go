//go:build unix

package pack

import (
	"io"
	"os"
	"syscall"
	"time"
)

// OSFS is the default FS, backed directly by the local filesystem.
// Dev/Ino/Nlink come from the platform syscall.Stat_t, same as
// archive/tar's own hard-link detection; Windows has no equivalent
// shape, and device/symlink semantics there are an explicit Non-goal.
type OSFS struct{}

func (OSFS) Lstat(path string) (Stat, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return Stat{}, err
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return Stat{Mode: fi.Mode(), Size: fi.Size(), Mtime: fi.ModTime()}, nil
	}
	return Stat{
		Mode:     fi.Mode(),
		Size:     fi.Size(),
		Mtime:    fi.ModTime(),
		Atime:    time.Unix(st.Atim.Sec, st.Atim.Nsec),
		Ctime:    time.Unix(st.Ctim.Sec, st.Ctim.Nsec),
		UID:      int64(st.Uid),
		GID:      int64(st.Gid),
		Dev:      uint64(st.Dev),
		Ino:      uint64(st.Ino),
		Nlink:    uint64(st.Nlink),
		Devmajor: int64(unixMajor(uint64(st.Rdev))),
		Devminor: int64(unixMinor(uint64(st.Rdev))),
	}, nil
}

func (OSFS) Readlink(path string) (string, error) { return os.Readlink(path) }

func (OSFS) Open(path string) (io.ReadCloser, error) { return os.Open(path) }

// unixMajor/unixMinor decode a dev_t the same way glibc's makedev
// macros do; used only to populate devmajor/devminor for device-file
// entries (spec.md §4.5 step 5).
func unixMajor(dev uint64) uint64 {
	return (dev >> 8) & 0xfff
}

func unixMinor(dev uint64) uint64 {
	return (dev & 0xff) | ((dev >> 12) & 0xfff00)
}

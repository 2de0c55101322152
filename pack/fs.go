// Package pack implements the write-side half of the codec: WriteEntry,
// the lazy byte producer that turns one filesystem path into a header
// block plus padded body bytes, and Archiver, the thing a filesystem
// walker drives to assemble those into an archive byte stream.
//
// The filesystem walker itself (per-path lstat, readdir, recursive
// directory traversal) is out of scope per spec.md's Non-goals; this
// package only specifies the boundary it crosses: the FS interface
// below.
package pack

import (
	"io"
	"io/fs"
	"time"
)

// Stat is the subset of lstat(2) results WriteEntry needs. Dev/Ino/
// Nlink identify hard links; the rest mirror a Header's fields.
type Stat struct {
	Mode     fs.FileMode
	Size     int64
	Mtime    time.Time
	Atime    time.Time
	Ctime    time.Time
	UID      int64
	GID      int64
	Dev      uint64
	Ino      uint64
	Nlink    uint64
	Devmajor int64
	Devminor int64
}

// FS is the collaborator boundary a filesystem walker crosses to drive
// WriteEntry: per-path lstat, symlink target, and file content.
type FS interface {
	Lstat(path string) (Stat, error)
	Readlink(path string) (string, error)
	Open(path string) (io.ReadCloser, error)
}

package pack

import (
	"bytes"
	"io"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tarstream/tarstream/header"
)

// fakeFS is a minimal in-memory FS for exercising Archiver without
// touching the real filesystem, the same role a real filesystem
// walker would play (spec.md's Non-goals keep the walker itself out
// of scope; FS is the collaborator boundary it crosses).
type fakeFS struct {
	stats    map[string]Stat
	links    map[string]string
	contents map[string][]byte
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		stats:    map[string]Stat{},
		links:    map[string]string{},
		contents: map[string][]byte{},
	}
}

func (f *fakeFS) Lstat(path string) (Stat, error) {
	st, ok := f.stats[path]
	if !ok {
		return Stat{}, fs.ErrNotExist
	}
	return st, nil
}

func (f *fakeFS) Readlink(path string) (string, error) {
	return f.links[path], nil
}

func (f *fakeFS) Open(path string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.contents[path])), nil
}

func TestArchiverPlainFileRoundTrips(t *testing.T) {
	vfs := newFakeFS()
	vfs.stats["/a.txt"] = Stat{Mode: 0o644, Size: 5, Mtime: time.Unix(1459548000, 0), Nlink: 1}
	vfs.contents["/a.txt"] = []byte("hello")

	var buf bytes.Buffer
	a := NewArchiver(&buf, vfs, Options{})
	require.NoError(t, a.WriteEntry("/a.txt", "a.txt"))
	require.NoError(t, a.Close())

	h, err := header.Decode(buf.Bytes()[:header.BlockSize])
	require.NoError(t, err)
	require.True(t, h.CksumValid)
	require.Equal(t, "a.txt", h.Path)
	require.Equal(t, int64(5), h.Size)
	require.Equal(t, byte(header.TypeReg), h.TypeKey)

	body := buf.Bytes()[header.BlockSize : header.BlockSize+5]
	require.Equal(t, "hello", string(body))
}

func TestArchiverHardLinkEncoding(t *testing.T) {
	// Scenario S6: two stat results sharing dev=1,ino=2, paths a and b.
	vfs := newFakeFS()
	shared := Stat{Mode: 0o644, Size: 3, Dev: 1, Ino: 2, Nlink: 2}
	vfs.stats["/a"] = shared
	vfs.stats["/b"] = shared
	vfs.contents["/a"] = []byte("abc")

	var buf bytes.Buffer
	a := NewArchiver(&buf, vfs, Options{})
	require.NoError(t, a.WriteEntry("/a", "a"))
	require.NoError(t, a.WriteEntry("/b", "b"))
	require.NoError(t, a.Close())

	h1, err := header.Decode(buf.Bytes()[:header.BlockSize])
	require.NoError(t, err)
	require.Equal(t, byte(header.TypeReg), h1.TypeKey)
	require.Equal(t, int64(3), h1.Size)

	offset := header.BlockSize + int(header.BlocksFor(3))*header.BlockSize
	h2, err := header.Decode(buf.Bytes()[offset : offset+header.BlockSize])
	require.NoError(t, err)
	require.Equal(t, byte(header.TypeLink), h2.TypeKey)
	require.Equal(t, "a", h2.Linkpath)
	require.Equal(t, int64(0), h2.Size)
}

func TestArchiverSymlinkEncoding(t *testing.T) {
	vfs := newFakeFS()
	vfs.stats["/link"] = Stat{Mode: fs.ModeSymlink | 0o777, Nlink: 1}
	vfs.links["/link"] = "target.txt"

	var buf bytes.Buffer
	a := NewArchiver(&buf, vfs, Options{})
	require.NoError(t, a.WriteEntry("/link", "link"))
	require.NoError(t, a.Close())

	h, err := header.Decode(buf.Bytes()[:header.BlockSize])
	require.NoError(t, err)
	require.Equal(t, byte(header.TypeSymlink), h.TypeKey)
	require.Equal(t, "target.txt", h.Linkpath)
}

func TestArchiverDirectoryEncoding(t *testing.T) {
	vfs := newFakeFS()
	vfs.stats["/d"] = Stat{Mode: fs.ModeDir | 0o755, Nlink: 1}

	var buf bytes.Buffer
	a := NewArchiver(&buf, vfs, Options{})
	require.NoError(t, a.WriteEntry("/d", "d"))
	require.NoError(t, a.Close())

	h, err := header.Decode(buf.Bytes()[:header.BlockSize])
	require.NoError(t, err)
	require.Equal(t, byte(header.TypeDir), h.TypeKey)
	require.Equal(t, int64(0), h.Size)
}

func TestArchiverPortableOmitsUidGidTimes(t *testing.T) {
	long := make([]byte, 150)
	for i := range long {
		long[i] = 'x'
	}
	vfs := newFakeFS()
	vfs.stats[string(long)] = Stat{
		Mode: 0o644, Size: 0, Nlink: 1,
		UID: 1000, GID: 1000,
		Atime: time.Unix(1, 0), Ctime: time.Unix(2, 0), Mtime: time.Unix(3, 0),
	}
	vfs.contents[string(long)] = nil

	var buf bytes.Buffer
	a := NewArchiver(&buf, vfs, Options{Portable: true})
	require.NoError(t, a.WriteEntry(string(long), string(long)))
	require.NoError(t, a.Close())

	// NeedPax because the path overflows 100 bytes; verify the Pax
	// body doesn't carry uid/gid/atime/ctime in portable mode.
	h, err := header.Decode(buf.Bytes()[:header.BlockSize])
	require.NoError(t, err)
	require.Equal(t, byte(header.TypeXHeader), h.TypeKey)

	body := buf.Bytes()[header.BlockSize : header.BlockSize+int(h.Size)]
	require.NotContains(t, string(body), "uid=")
	require.NotContains(t, string(body), "atime=")
}

func TestArchiverGNULongNameFallbackForOverlongPath(t *testing.T) {
	long := make([]byte, 150)
	for i := range long {
		long[i] = 'y'
	}
	vfs := newFakeFS()
	vfs.stats[string(long)] = Stat{Mode: 0o644, Size: 0, Nlink: 1}
	vfs.contents[string(long)] = nil

	var buf bytes.Buffer
	a := NewArchiver(&buf, vfs, Options{GNULongName: true})
	require.NoError(t, a.WriteEntry(string(long), string(long)))
	require.NoError(t, a.Close())

	// A GNU long-name meta entry ('L'), not a Pax one, since the only
	// overflow is the path itself.
	h, err := header.Decode(buf.Bytes()[:header.BlockSize])
	require.NoError(t, err)
	require.Equal(t, byte(header.TypeGNULongName), h.TypeKey)
	require.Equal(t, "././@LongLink", h.Path)

	nameBody := buf.Bytes()[header.BlockSize : header.BlockSize+int(h.Size)]
	require.Equal(t, string(long)+"\x00", string(nameBody))
}

func TestArchiverGNULongNameFallsBackToPaxWhenOtherFieldsOverflow(t *testing.T) {
	long := make([]byte, 150)
	for i := range long {
		long[i] = 'z'
	}
	vfs := newFakeFS()
	vfs.stats[string(long)] = Stat{
		Mode: 0o644, Size: 0, Nlink: 1, UID: 1 << 30, // overflows the 8-byte octal uid field
	}
	vfs.contents[string(long)] = nil

	var buf bytes.Buffer
	a := NewArchiver(&buf, vfs, Options{GNULongName: true})
	require.NoError(t, a.WriteEntry(string(long), string(long)))
	require.NoError(t, a.Close())

	// uid overflow can't be carried by a GNU long-name entry, so Pax is
	// still used despite GNULongName being set.
	h, err := header.Decode(buf.Bytes()[:header.BlockSize])
	require.NoError(t, err)
	require.Equal(t, byte(header.TypeXHeader), h.TypeKey)
}

func TestArchiverShrunkFileIsCorruption(t *testing.T) {
	vfs := newFakeFS()
	vfs.stats["/f"] = Stat{Mode: 0o644, Size: 10, Nlink: 1}
	vfs.contents["/f"] = []byte("abc") // shorter than the declared size

	var buf bytes.Buffer
	a := NewArchiver(&buf, vfs, Options{})
	err := a.WriteEntry("/f", "f")
	require.ErrorIs(t, err, ErrShrunk)
}

package extract

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tarstream/tarstream/entry"
	"github.com/tarstream/tarstream/header"
)

// TestExtractSafeRejectsDotDotEscape is spec.md §8 scenario S5: an
// archive entry named "../evil" must never land outside cwd.
func TestExtractSafeRejectsDotDotEscape(t *testing.T) {
	dir := t.TempDir()
	x := New(Options{Cwd: dir})

	var notices []Notice
	x.opts.OnNotice = func(n Notice) { notices = append(notices, n) }

	h := &header.Header{Path: "../evil", Mode: 0o644, Size: 3, TypeKey: header.TypeReg}
	e := entry.NewReadEntry(h, nil, nil)
	require.NoError(t, x.Extract(e))
	e.Feed([]byte("bad"))

	require.True(t, e.Ignore)
	require.NotEmpty(t, notices)
	require.Equal(t, SeverityWarning, notices[0].Severity)

	_, err := os.Stat(filepath.Join(filepath.Dir(dir), "evil"))
	require.True(t, os.IsNotExist(err))
}

func TestExtractPlainFileWritesContent(t *testing.T) {
	dir := t.TempDir()
	x := New(Options{Cwd: dir})

	h := &header.Header{Path: "sub/a.txt", Mode: 0o644, Size: 5, Mtime: time.Unix(1459548000, 0), TypeKey: header.TypeReg}
	e := entry.NewReadEntry(h, nil, nil)

	require.NoError(t, x.Extract(e))
	_, err := e.Feed([]byte("hello"))
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "sub", "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestExtractStripComponents(t *testing.T) {
	dir := t.TempDir()
	x := New(Options{Cwd: dir, Strip: 1})

	h := &header.Header{Path: "pkg/sub/file.txt", Mode: 0o644, Size: 0, TypeKey: header.TypeReg}
	e := entry.NewReadEntry(h, nil, nil)
	require.NoError(t, x.Extract(e))
	e.End()

	_, err := os.Stat(filepath.Join(dir, "sub", "file.txt"))
	require.NoError(t, err)
}

func TestExtractDirectoryCreatesWithMode(t *testing.T) {
	dir := t.TempDir()
	x := New(Options{Cwd: dir})

	h := &header.Header{Path: "adir", Mode: 0o755, TypeKey: header.TypeDir}
	e := entry.NewReadEntry(h, nil, nil)
	require.NoError(t, x.Extract(e))
	e.End()

	fi, err := os.Stat(filepath.Join(dir, "adir"))
	require.NoError(t, err)
	require.True(t, fi.IsDir())
}

func TestExtractSymlinkUsesRawLinkpath(t *testing.T) {
	dir := t.TempDir()
	x := New(Options{Cwd: dir})

	h := &header.Header{Path: "link", Mode: 0o777, TypeKey: header.TypeSymlink, Linkpath: "target.txt"}
	e := entry.NewReadEntry(h, nil, nil)
	require.NoError(t, x.Extract(e))
	e.End()

	got, err := os.Readlink(filepath.Join(dir, "link"))
	require.NoError(t, err)
	require.Equal(t, "target.txt", got)
}

func TestExtractHardLinkTargetsPriorArchivePath(t *testing.T) {
	dir := t.TempDir()
	x := New(Options{Cwd: dir})

	hFile := &header.Header{Path: "orig.txt", Mode: 0o644, Size: 3, TypeKey: header.TypeReg}
	eFile := entry.NewReadEntry(hFile, nil, nil)
	require.NoError(t, x.Extract(eFile))
	eFile.Feed([]byte("abc"))

	hLink := &header.Header{Path: "alias.txt", TypeKey: header.TypeLink, Linkpath: "orig.txt"}
	eLink := entry.NewReadEntry(hLink, nil, nil)
	require.NoError(t, x.Extract(eLink))
	eLink.End()

	origInfo, err := os.Stat(filepath.Join(dir, "orig.txt"))
	require.NoError(t, err)
	aliasInfo, err := os.Stat(filepath.Join(dir, "alias.txt"))
	require.NoError(t, err)
	require.True(t, os.SameFile(origInfo, aliasInfo))
}

func TestExtractUnknownTypeIsDrainedNotWritten(t *testing.T) {
	dir := t.TempDir()
	x := New(Options{Cwd: dir})

	var notices []Notice
	x.opts.OnNotice = func(n Notice) { notices = append(notices, n) }

	h := &header.Header{Path: "weird", Size: 4, TypeKey: '9'}
	e := entry.NewReadEntry(h, nil, nil)
	require.NoError(t, x.Extract(e))
	e.Feed([]byte("data"))

	require.True(t, e.Ignore)
	require.NotEmpty(t, notices)
	_, err := os.Stat(filepath.Join(dir, "weird"))
	require.True(t, os.IsNotExist(err))
}

func TestGlobFilterMatchesPattern(t *testing.T) {
	filter := GlobFilter("**/*.txt")
	h := &header.Header{Path: "a/b/c.txt", TypeKey: header.TypeReg}
	e := entry.NewReadEntry(h, nil, nil)
	require.True(t, filter("a/b/c.txt", e))
	require.False(t, filter("a/b/c.bin", e))
}

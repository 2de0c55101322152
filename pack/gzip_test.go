package pack

import (
	"bytes"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/tarstream/tarstream/header"
)

// TestNewGzipWriterProducesDecodableStream exercises the create-side
// half of spec.md §2's "Filesystem -> WriteEntry -> byte stream ->
// (optional gzip) -> bytes" data flow: an Archiver's plain output,
// wrapped in NewGzipWriter, decompresses back to byte-identical archive
// bytes (spec.md S4's gzip round trip, from the create side).
func TestNewGzipWriterProducesDecodableStream(t *testing.T) {
	vfs := newFakeFS()
	vfs.stats["/a.txt"] = Stat{Mode: 0o644, Size: 5, Mtime: time.Unix(1459548000, 0), Nlink: 1}
	vfs.contents["/a.txt"] = []byte("hello")

	var plain bytes.Buffer
	a := NewArchiver(&plain, vfs, Options{})
	require.NoError(t, a.WriteEntry("/a.txt", "a.txt"))
	require.NoError(t, a.Close())

	var gz bytes.Buffer
	gw := NewGzipWriter(&gz)
	_, err := gw.Write(plain.Bytes())
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	gr, err := gzip.NewReader(&gz)
	require.NoError(t, err)
	var decompressed bytes.Buffer
	_, err = decompressed.ReadFrom(gr)
	require.NoError(t, err)
	require.Equal(t, plain.Bytes(), decompressed.Bytes())

	h, err := header.Decode(decompressed.Bytes()[:header.BlockSize])
	require.NoError(t, err)
	require.Equal(t, "a.txt", h.Path)
}

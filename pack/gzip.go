package pack

import (
	"io"

	"github.com/klauspost/pgzip"
)

// NewGzipWriter wraps w with a parallel gzip compressor, matching the
// create-side half of spec.md §2's data-flow arrow: "Filesystem →
// WriteEntry → byte stream → (optional gzip) → bytes". pgzip splits
// the stream into independently compressed blocks across GOMAXPROCS
// goroutines, unlike compress/gzip's single-threaded writer; the parse
// package's read side stays on klauspost/compress/gzip (a drop-in,
// single-stream-compatible decoder) since decoding one byte at a time
// doesn't benefit from pgzip's block parallelism.
//
// The returned writer's Close must be called to flush the final block
// and trailer; it does not close w.
func NewGzipWriter(w io.Writer) *pgzip.Writer {
	return pgzip.NewWriter(w)
}

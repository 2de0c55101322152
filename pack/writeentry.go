// Package pack implements the write-side half of the codec: WriteEntry,
// the lazy byte producer that turns one filesystem path into a header
// block plus padded body bytes, and Archiver, the thing a filesystem
// walker drives to assemble those into an archive byte stream.
//
// The filesystem walker itself (per-path lstat, readdir, recursive
// directory traversal) is out of scope per spec.md's Non-goals; this
// package only specifies the boundary it crosses: the FS interface
// in fs.go.
package pack

import (
	"errors"
	"io"
	"io/fs"
	"strconv"

	"github.com/tarstream/tarstream/header"
)

const defaultMaxReadSize = 1 << 20

// ErrShrunk is returned when a file being archived shrinks mid-read: a
// zero-byte, no-error read before the body is fully forwarded, per
// spec.md §4.5's read-loop invariants ("a bytesRead == 0 before
// completion is a fatal corruption signal").
var ErrShrunk = errors.New("pack: file shrunk mid-read")

// Options configures an Archiver.
type Options struct {
	// Portable omits ctime/atime/uid/gid/uname/gname/dev/ino/nlink from
	// any synthesized Pax record (spec.md §6).
	Portable bool
	// MaxReadSize bounds a single body read (default 1 MiB).
	MaxReadSize int64
	// Caches lets several Archivers share one linkCache/statCache; nil
	// gets a fresh, unshared Caches.
	Caches *Caches
	// GNULongName prefers a GNU long-name/long-link meta entry over a
	// Pax record whenever Path/Linkpath overflow is the *only* reason a
	// header needs one (spec.md §9 supplemented feature #1). Pax is
	// still used whenever some other field (uid/gid/size/...) overflows
	// too, since GNU long-name/long-link can't carry those.
	GNULongName bool
}

// Archiver writes a sequence of filesystem paths as tar entries to an
// underlying writer. The directory walk itself is out of scope
// (spec.md's Non-goals); callers drive WriteEntry once per path in
// whatever order their own walker produces.
type Archiver struct {
	w      io.Writer
	fs     FS
	opts   Options
	caches *Caches
}

// NewArchiver builds an Archiver writing entries to w, reading
// filesystem objects through vfs.
func NewArchiver(w io.Writer, vfs FS, opts Options) *Archiver {
	if opts.MaxReadSize <= 0 {
		opts.MaxReadSize = defaultMaxReadSize
	}
	caches := opts.Caches
	if caches == nil {
		caches = NewCaches()
	}
	return &Archiver{w: w, fs: vfs, opts: opts, caches: caches}
}

// Close writes the archive's end-of-stream marker: two zero blocks
// (spec.md §6).
func (a *Archiver) Close() error {
	var zero [header.BlockSize * 2]byte
	_, err := a.w.Write(zero[:])
	return err
}

// WriteEntry archives the filesystem object at path under archivePath,
// following spec.md §4.5's lifecycle: lstat, classify, hard-link
// detection, header (+ Pax if needed), body.
func (a *Archiver) WriteEntry(path, archivePath string) error {
	st, err := a.lstat(path)
	if err != nil {
		return err
	}

	h := &header.Header{
		Path:  archivePath,
		Mode:  int64(st.Mode.Perm()),
		Mtime: st.Mtime,
	}
	if !a.opts.Portable {
		h.UID, h.GID = st.UID, st.GID
		h.Atime, h.Ctime = st.Atime, st.Ctime
	}

	switch {
	case st.Mode.IsRegular():
		if st.Nlink > 1 {
			key := linkKey(st.Dev, st.Ino)
			if prior, ok := a.caches.link.lookup(key); ok && prior != archivePath {
				h.TypeKey = header.TypeLink
				h.Linkpath = prior
				h.Size = 0
				return a.emit(h, nil)
			}
			a.caches.link.store(key, archivePath)
		}
		h.TypeKey = header.TypeReg
		h.Size = st.Size
		return a.writeFileBody(path, h, &st)

	case st.Mode&fs.ModeSymlink != 0:
		h.TypeKey = header.TypeSymlink
		link, err := a.fs.Readlink(path)
		if err != nil {
			return err
		}
		h.Linkpath = link
		return a.emit(h, &st)

	case st.Mode.IsDir():
		h.TypeKey = header.TypeDir
		return a.emit(h, &st)

	case st.Mode&fs.ModeNamedPipe != 0:
		h.TypeKey = header.TypeFifo
		return a.emit(h, &st)

	case st.Mode&fs.ModeDevice != 0:
		if st.Mode&fs.ModeCharDevice != 0 {
			h.TypeKey = header.TypeChar
		} else {
			h.TypeKey = header.TypeBlock
		}
		h.Devmajor, h.Devminor = st.Devmajor, st.Devminor
		return a.emit(h, &st)

	default:
		// Unsupported type: end the entry immediately with zero body
		// (spec.md §4.5 step 2).
		return nil
	}
}

// emit writes h's header block, preceded by a synthesized meta entry
// when h.Encode signals NeedPax (spec.md §4.5 step 5: "emit it first").
// st is non-nil when dev/ino/nlink are available to fold into the Pax
// record in non-portable mode.
//
// When GNULongName is set and the overflow is confined to Path/
// Linkpath (h.NeedPaxOther is false), a GNU long-name/long-link meta
// entry is emitted instead of a Pax record — the fallback spec.md §9's
// supplemented feature #1 describes for callers that want GNU-style
// archives instead of Pax ones. Any other overflow still needs Pax,
// since GNU long-name/long-link only carries a path or a linkpath.
func (a *Archiver) emit(h *header.Header, st *Stat) error {
	block := h.Encode(nil)
	switch {
	case !h.NeedPax:
		// nothing to do
	case a.opts.GNULongName && !h.NeedPaxOther:
		if h.PathTruncated {
			hdrBlock, body := header.EncodeGNULongName(h.Path)
			if err := a.writeBlocks(hdrBlock, body); err != nil {
				return err
			}
		}
		if h.LinkpathTruncated {
			hdrBlock, body := header.EncodeGNULongLink(h.Linkpath)
			if err := a.writeBlocks(hdrBlock, body); err != nil {
				return err
			}
		}
		block = h.Encode(nil)
	default:
		pax := a.buildPax(h, st)
		hdrBlock, body := header.EncodePaxMeta(pax, h.Path)
		if err := a.writeBlocks(hdrBlock, body); err != nil {
			return err
		}
		block = h.Encode(nil)
	}
	_, err := a.w.Write(block)
	return err
}

// writeBlocks writes a meta entry's header block followed by its
// (already block-padded) body.
func (a *Archiver) writeBlocks(hdrBlock, body []byte) error {
	if _, err := a.w.Write(hdrBlock); err != nil {
		return err
	}
	_, err := a.w.Write(body)
	return err
}

// buildPax assembles the full-precision Pax override record for an
// entry whose fixed-width header couldn't hold every field (spec.md
// §4.5 step 5).
func (a *Archiver) buildPax(h *header.Header, st *Stat) *header.Pax {
	fields := map[string]string{
		header.PaxPath: h.Path,
		header.PaxSize: strconv.FormatInt(h.Size, 10),
	}
	if h.Linkpath != "" {
		fields[header.PaxLinkpath] = h.Linkpath
	}
	if !h.Mtime.IsZero() {
		fields[header.PaxMtime] = strconv.FormatInt(h.Mtime.Unix(), 10)
	}
	if !a.opts.Portable {
		if !h.Atime.IsZero() {
			fields[header.PaxAtime] = strconv.FormatInt(h.Atime.Unix(), 10)
		}
		if !h.Ctime.IsZero() {
			fields[header.PaxCtime] = strconv.FormatInt(h.Ctime.Unix(), 10)
		}
		fields[header.PaxUid] = strconv.FormatInt(h.UID, 10)
		fields[header.PaxGid] = strconv.FormatInt(h.GID, 10)
		if h.Uname != "" {
			fields[header.PaxUname] = h.Uname
		}
		if h.Gname != "" {
			fields[header.PaxGname] = h.Gname
		}
		if st != nil {
			fields[header.PaxDev] = strconv.FormatUint(st.Dev, 10)
			fields[header.PaxIno] = strconv.FormatUint(st.Ino, 10)
			fields[header.PaxNlink] = strconv.FormatUint(st.Nlink, 10)
		}
	}
	return &header.Pax{Fields: fields}
}

// writeFileBody emits h then streams path's content: reads sized
// min(512*ceil(size/512), MaxReadSize), zero-padded to the next
// 512-byte boundary on the last read (spec.md §4.5 step 7, using the
// corrected ceil formula from spec.md §9, not the off-by-one variant).
func (a *Archiver) writeFileBody(path string, h *header.Header, st *Stat) error {
	f, err := a.fs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := a.emit(h, st); err != nil {
		return err
	}

	remain := h.Size
	blockRemain := header.BlocksFor(remain) * header.BlockSize
	buf := make([]byte, a.chunkSize(remain))
	for remain > 0 {
		chunk := buf
		if int64(len(chunk)) > remain {
			chunk = chunk[:remain]
		}
		n, rerr := f.Read(chunk)
		if n == 0 {
			if rerr != nil && rerr != io.EOF {
				return rerr
			}
			return ErrShrunk
		}
		if _, werr := a.w.Write(chunk[:n]); werr != nil {
			return werr
		}
		remain -= int64(n)
		blockRemain -= int64(n)
		if rerr != nil && rerr != io.EOF {
			return rerr
		}
	}
	if blockRemain > 0 {
		pad := make([]byte, blockRemain)
		if _, err := a.w.Write(pad); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archiver) chunkSize(size int64) int64 {
	n := header.BlocksFor(size) * header.BlockSize
	if n == 0 {
		n = header.BlockSize
	}
	if n > a.opts.MaxReadSize {
		n = a.opts.MaxReadSize
	}
	return n
}

func linkKey(dev, ino uint64) string {
	return strconv.FormatUint(dev, 10) + ":" + strconv.FormatUint(ino, 10)
}

// lstat consults the shared stat cache before hitting the filesystem
// (spec.md §4.5 step 1: "lstat the absolute path (cache hit
// short-circuits)").
func (a *Archiver) lstat(path string) (Stat, error) {
	if st, ok := a.caches.statLookup(path); ok {
		return st, nil
	}
	st, err := a.fs.Lstat(path)
	if err != nil {
		return Stat{}, err
	}
	a.caches.statStore(path, st)
	return st, nil
}

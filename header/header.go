// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"time"
)

// Header is the decoded form of one 512-byte tar header block, plus the
// block bytes themselves (set once on decode, or produced by Encode).
type Header struct {
	Block [BlockSize]byte

	Fieldset Fieldset

	Path     string
	Mode     int64 // 12-bit permission + set[ug]id/sticky bits
	UID      int64
	GID      int64
	Size     int64
	Mtime    time.Time
	Atime    time.Time
	Ctime    time.Time
	Cksum    int64
	TypeKey  byte
	Linkpath string
	Uname    string
	Gname    string
	Devmajor int64
	Devminor int64
	Prefix   string

	// CksumValid is true when Cksum equals either the signed or the
	// unsigned byte-sum of Block (with the cksum field itself treated as
	// ASCII spaces).
	CksumValid bool
	// NullBlock is true when every byte of Block is zero.
	NullBlock bool
	// NeedPax is true when at least one field write during Encode
	// signaled overflow or truncation.
	NeedPax bool
	// PathTruncated/LinkpathTruncated are true when Path/Linkpath
	// specifically could not be represented in the chosen fieldset (even
	// after a ustar/xstar prefix split was attempted) and were written
	// truncated. WriteEntry uses these to decide between a GNU long-name
	// fallback and a full Pax record (spec.md §9 supplemented feature #1).
	PathTruncated     bool
	LinkpathTruncated bool
	// NeedPaxOther is true when some field *other* than Path/Linkpath
	// overflowed (uid/gid/size/mtime/uname/gname/devmaj/devmin/atime/
	// ctime) — a GNU long-name/long-link entry alone can never resolve
	// this, only a Pax record can.
	NeedPaxOther bool
}

// Decode parses a 512-byte header block.
func Decode(block []byte) (*Header, error) {
	if len(block) != BlockSize {
		return nil, ErrHeader
	}
	h := &Header{}
	copy(h.Block[:], block)

	if isAllZero(block) {
		h.NullBlock = true
		return h, nil
	}

	unsigned, signed := computeChecksums(block)
	storedCksum, err := fCksum.ReadOctal(block)
	if err != nil {
		return nil, ErrHeader
	}
	h.Cksum = storedCksum
	h.CksumValid = storedCksum == unsigned || storedCksum == signed
	if !h.CksumValid {
		return h, nil
	}

	h.Fieldset = detectFieldset(block)

	h.Path = fPath.ReadString(block)
	h.TypeKey = typeKeyByte(block)
	h.Linkpath = fLinkpath.ReadString(block)

	if h.Mode, err = fMode.ReadOctal(block); err != nil {
		return nil, ErrHeader
	}
	if h.UID, err = fUID.ReadOctal(block); err != nil {
		return nil, ErrHeader
	}
	if h.GID, err = fGID.ReadOctal(block); err != nil {
		return nil, ErrHeader
	}
	if h.Size, err = fSize.ReadOctal(block); err != nil {
		return nil, ErrHeader
	}
	if h.Mtime, err = fMtime.ReadDate(block); err != nil {
		return nil, ErrHeader
	}

	if h.Fieldset != Basic {
		h.Uname = fUname.ReadString(block)
		h.Gname = fGname.ReadString(block)
		if h.Devmajor, err = fDevmaj.ReadOctal(block); err != nil {
			return nil, ErrHeader
		}
		if h.Devminor, err = fDevmin.ReadOctal(block); err != nil {
			return nil, ErrHeader
		}
		switch h.Fieldset {
		case USTAR:
			h.Prefix = fUstarPrefix.ReadString(block)
		case XSTAR:
			h.Prefix = fXstarPrefix.ReadString(block)
			if h.Atime, err = fAtime.ReadDate(block); err != nil {
				return nil, ErrHeader
			}
			if h.Ctime, err = fCtime.ReadDate(block); err != nil {
				return nil, ErrHeader
			}
		}
		if h.Prefix != "" {
			h.Path = h.Prefix + "/" + h.Path
		}
	}
	return h, nil
}

func typeKeyByte(block []byte) byte {
	b := fTypeKey.window(block)
	return b[0]
}

func isAllZero(block []byte) bool {
	for _, c := range block {
		if c != 0 {
			return false
		}
	}
	return true
}

// Encode writes h's fields into block (allocating a fresh one if block is
// nil), selecting the narrowest fieldset that fits and computing the
// checksum. h.NeedPax and h.Fieldset are updated to reflect the encode.
func (h *Header) Encode(block []byte) []byte {
	if block == nil {
		block = make([]byte, BlockSize)
	} else {
		clear(block)
	}

	fs := chooseFieldset(h)
	needPaxOther := false
	pathTruncated := false
	linkpathTruncated := false

	// Path is written once, below, after the fieldset-specific prefix
	// split is attempted — writing it unconditionally here first (then
	// possibly overwriting it) would flag needPax from the initial
	// truncating write even when a ustar/xstar prefix split goes on to
	// represent the full path without loss.
	if fTypeKey.WriteString(block, string(h.TypeKey)) {
		needPaxOther = true
	}
	if fLinkpath.WriteString(block, h.Linkpath) {
		linkpathTruncated = true
	}
	if fMode.WriteOctal(block, h.Mode) {
		needPaxOther = true
	}
	if fUID.WriteOctal(block, h.UID) {
		needPaxOther = true
	}
	if fGID.WriteOctal(block, h.GID) {
		needPaxOther = true
	}
	if fSize.WriteOctal(block, h.Size) {
		needPaxOther = true
	}
	if fMtime.WriteDate(block, h.Mtime) {
		needPaxOther = true
	}

	if fs == Basic {
		if fPath.WriteString(block, h.Path) {
			pathTruncated = true
		}
	} else {
		if fUname.WriteString(block, h.Uname) {
			needPaxOther = true
		}
		if fGname.WriteString(block, h.Gname) {
			needPaxOther = true
		}
		if len(h.Uname) > 32 || len(h.Gname) > 32 {
			needPaxOther = true
		}
		if fDevmaj.WriteOctal(block, h.Devmajor) {
			needPaxOther = true
		}
		if fDevmin.WriteOctal(block, h.Devminor) {
			needPaxOther = true
		}

		prefix, name, fits := splitPrefix(h.Path, prefixWidth(fs))
		if !fits {
			pathTruncated = true
			fPath.WriteString(block, h.Path)
		} else {
			fPath.WriteString(block, name)
		}

		// xstar shares ustar's magic and version exactly (spec.md §3); only
		// the prefix window's width, and what follows it, differ.
		copy(fMagic.window(block), magicUSTAR)
		copy(fVersion.window(block), versionUSTAR)
		switch fs {
		case USTAR:
			fUstarPrefix.WriteString(block, prefix)
		case XSTAR:
			fXstarPrefix.WriteString(block, prefix)
			// fPrefixTerm is already NUL from the clear(block) above;
			// detectFieldset relies on that byte staying zero here.
			if fAtime.WriteDate(block, h.Atime) {
				needPaxOther = true
			}
			if fCtime.WriteDate(block, h.Ctime) {
				needPaxOther = true
			}
		}
	}

	unsigned, _ := computeChecksums(block)
	// The cksum field is laid out as 6 octal digits, a NUL, then a space
	// (POSIX), not the NUL-terminated-to-the-end convention every other
	// octal field uses, so it gets its own 7-byte sub-window here.
	cksumDigits := Field{fCksum.Offset, fCksum.Size - 1, typeOctal}
	cksumDigits.WriteOctal(block, unsigned)
	block[fCksum.Offset+fCksum.Size-1] = ' '

	h.Fieldset = fs
	h.PathTruncated = pathTruncated
	h.LinkpathTruncated = linkpathTruncated
	h.NeedPaxOther = needPaxOther
	h.NeedPax = needPaxOther || pathTruncated || linkpathTruncated
	h.Cksum = unsigned
	h.CksumValid = true
	copy(h.Block[:], block)
	return block
}

func prefixWidth(fs Fieldset) int {
	if fs == XSTAR {
		return fXstarPrefix.Size
	}
	return fUstarPrefix.Size
}

// splitPrefix splits path into a (prefix, name) pair at the rightmost '/'
// such that name fits in 100 bytes and prefix fits in width bytes. It
// reports fits=false if no such split exists (path must then travel via
// Pax or a GNU long-name entry instead).
func splitPrefix(path string, width int) (prefix, name string, fits bool) {
	if len(path) <= 100 {
		return "", path, true
	}
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] != '/' {
			continue
		}
		p, n := path[:i], path[i+1:]
		if len(n) <= 100 && len(n) > 0 && len(p) <= width {
			return p, n, true
		}
	}
	return "", path, false
}

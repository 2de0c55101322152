// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import "errors"

var (
	// ErrHeader is returned when input cannot be parsed at all: a header
	// block that is not exactly 512 bytes, or a malformed Pax record or
	// Pax value.
	ErrHeader = errors.New("header: invalid tar header")
	// ErrFieldTooLong names a field value too wide for its header field.
	// Encode does not return it: it reports overflow through NeedPax and
	// the PathTruncated/LinkpathTruncated/NeedPaxOther flags instead.
	ErrFieldTooLong = errors.New("header: field too long")
)

// BlockSize is the size in bytes of every header and body-padding block.
const BlockSize = 512

// Fieldset identifies which of the three on-disk layouts a block uses
// beyond offset 156 (the type flag). basic is the v7 layout; ustar and
// xstar both add uname/gname/devmaj/devmin and a path prefix, but differ
// in prefix width and in what the tail of the block holds.
type Fieldset int

const (
	Basic Fieldset = iota
	USTAR
	XSTAR
)

// Field offsets, shared across all three fieldsets (table in spec.md §6).
var (
	fPath     = stringField(0, 100)
	fMode     = octalField(100, 8)
	fUID      = octalField(108, 8)
	fGID      = octalField(116, 8)
	fSize     = octalField(124, 12)
	fMtime    = dateField(136, 12)
	fCksum    = octalField(148, 8)
	fTypeKey  = stringField(156, 1)
	fLinkpath = stringField(157, 100)

	// ustar/xstar only, offset 257+
	fMagic   = stringField(257, 6)
	fVersion = stringField(263, 2)
	fUname   = stringField(265, 32)
	fGname   = stringField(297, 32)
	fDevmaj  = octalField(329, 8)
	fDevmin  = octalField(337, 8)

	// fieldset-dependent prefix/tail
	fUstarPrefix = stringField(345, 155)
	fXstarPrefix = stringField(345, 130)
	fPrefixTerm  = stringField(475, 1)
	fAtime       = dateField(476, 12)
	fCtime       = dateField(488, 12)
)

const (
	magicUSTAR   = "ustar\x00"
	versionUSTAR = "00"
)

// computeChecksums returns both the POSIX unsigned-byte sum and the
// historical Sun/Schily signed-byte sum of block, treating the 8-byte
// cksum field itself as ASCII spaces.
func computeChecksums(block []byte) (unsigned, signed int64) {
	for i, c := range block {
		if i >= fCksum.Offset && i < fCksum.Offset+fCksum.Size {
			c = ' '
		}
		unsigned += int64(c)
		signed += int64(int8(c))
	}
	return unsigned, signed
}

// detectFieldset inspects the magic bytes at offset 257 and, when they
// mark a ustar-family block, the presence of a NUL terminator at the end
// of the 130-byte xstar prefix window (offset 475) to tell ustar and
// xstar apart — both share identical magic "ustar\x00" and version "00"
// per spec.md §3's invariant, so the prefix width is the only thing that
// distinguishes them. Only a ustar prefix longer than 130 bytes puts a
// non-NUL byte there; a ustar block with a shorter (or no) prefix is
// therefore reported as XSTAR, and its atime/ctime decode as zero times
// from the all-NUL tail.
func detectFieldset(block []byte) Fieldset {
	magic := string(fMagic.window(block))
	version := string(fVersion.window(block))
	if magic != magicUSTAR || version != versionUSTAR {
		return Basic
	}
	if fPrefixTerm.window(block)[0] == 0 {
		return XSTAR
	}
	return USTAR
}

// chooseFieldset selects the narrowest fieldset that can represent every
// set field of h without truncation, per spec.md §4.2's auto-selection
// rule: basic if it fits and no ustar-only field is set; else ustar if no
// atime/ctime is needed; else xstar. Basic has no atime/ctime fields at
// all, so either one being set must rule it out even when nothing else
// forces ustar.
func chooseFieldset(h *Header) Fieldset {
	needsAtimeCtime := !h.Atime.IsZero() || !h.Ctime.IsZero()
	needsUstarOnly := h.Uname != "" || h.Gname != "" || h.Devmajor != 0 || h.Devminor != 0 || len(h.Path) > 100
	if !needsUstarOnly && !needsAtimeCtime && len(h.Path) <= 100 {
		return Basic
	}
	if needsAtimeCtime {
		return XSTAR
	}
	return USTAR
}

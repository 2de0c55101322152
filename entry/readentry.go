package entry

import (
	"errors"
	"time"

	"github.com/tarstream/tarstream/header"
)

// ErrEntryOverflow is returned by Feed when the caller tries to push more
// bytes than BlockRemain allows (spec.md §8, scenarios S2/S3).
var ErrEntryOverflow = errors.New("entry: write past blockRemain")

// ReadEntry is one logical entry parsed out of an archive: a header plus
// whatever per-entry ('x') and global ('g') Pax overrides apply to it,
// and the lazy body-byte Sink consumers attach to.
//
// Invariants (spec.md §3): 0 <= Remain <= BlockRemain; BlockRemain is a
// multiple of 512 (or 0); Remain only ever decreases; the entry ends
// exactly when Remain reaches 0 and every body byte has been forwarded.
type ReadEntry struct {
	Base

	Header   *header.Header
	Extended *header.Pax // per-entry Pax overrides, nil if none applied
	Global   *header.Pax // global Pax overrides in effect, nil if none

	Remain      int64
	BlockRemain int64

	// Meta is true for Pax/GNU-long-* entries: their body is consumed by
	// the parser itself (§4.4's "meta" state), never forwarded to a
	// consumer as file data.
	Meta bool
	// Ignore is true when the caller's filter rejected this entry, or it
	// is an unrecognized type; body bytes are still consumed from the
	// stream (to stay block-aligned) but never forwarded.
	Ignore bool
}

// NewReadEntry builds a ReadEntry from a decoded header and the Pax
// overrides in effect when it was parsed.
func NewReadEntry(h *header.Header, extended, global *header.Pax) *ReadEntry {
	e := &ReadEntry{Header: h, Extended: extended, Global: global}
	size := e.Size()
	e.Remain = size
	if header.IsHeaderOnly(e.TypeKey()) {
		e.Remain = 0
	}
	e.BlockRemain = header.BlocksFor(e.Remain) * header.BlockSize
	return e
}

func (e *ReadEntry) overrideString(base string, get func(*header.Pax) string) string {
	if e.Global != nil {
		if v := get(e.Global); v != "" {
			base = v
		}
	}
	if e.Extended != nil {
		if v := get(e.Extended); v != "" {
			base = v
		}
	}
	return base
}

// Path returns the entry's effective path: base header, then global Pax
// override, then per-entry Pax override (spec.md §3's "overrides apply
// in order base<-global<-extended").
func (e *ReadEntry) Path() string {
	return e.overrideString(e.Header.Path, func(p *header.Pax) string { return p.Get(header.PaxPath) })
}

func (e *ReadEntry) Linkpath() string {
	return e.overrideString(e.Header.Linkpath, func(p *header.Pax) string { return p.Get(header.PaxLinkpath) })
}

func (e *ReadEntry) Uname() string {
	return e.overrideString(e.Header.Uname, func(p *header.Pax) string { return p.Get(header.PaxUname) })
}

func (e *ReadEntry) Gname() string {
	return e.overrideString(e.Header.Gname, func(p *header.Pax) string { return p.Get(header.PaxGname) })
}

// Size returns the effective body size, applying Pax overrides.
func (e *ReadEntry) Size() int64 {
	size := e.Header.Size
	if e.Global != nil {
		if v := e.Global.Get(header.PaxSize); v != "" {
			size = parsePaxInt(v, size)
		}
	}
	if e.Extended != nil {
		if v := e.Extended.Get(header.PaxSize); v != "" {
			size = parsePaxInt(v, size)
		}
	}
	return size
}

func (e *ReadEntry) Mtime() time.Time { return e.timeOverride(e.Header.Mtime, header.PaxMtime) }
func (e *ReadEntry) Atime() time.Time { return e.timeOverride(e.Header.Atime, header.PaxAtime) }
func (e *ReadEntry) Ctime() time.Time { return e.timeOverride(e.Header.Ctime, header.PaxCtime) }

func (e *ReadEntry) timeOverride(base time.Time, key string) time.Time {
	if e.Global != nil {
		if v := e.Global.Get(key); v != "" {
			if t, ok := parsePaxTimeFor(v); ok {
				base = t
			}
		}
	}
	if e.Extended != nil {
		if v := e.Extended.Get(key); v != "" {
			if t, ok := parsePaxTimeFor(v); ok {
				base = t
			}
		}
	}
	return base
}

// Feed forwards one chunk of raw archive body bytes to the entry: the
// first Remain bytes of data go to the Sink (unless Ignore is set), the
// rest (block-alignment padding) is silently dropped. It decrements
// Remain/BlockRemain and calls End automatically once Remain reaches
// zero. Feeding more than BlockRemain bytes in one call is a caller
// bug and returns ErrEntryOverflow rather than silently truncating.
func (e *ReadEntry) Feed(data []byte) (int, error) {
	n := int64(len(data))
	if n > e.BlockRemain {
		return 0, ErrEntryOverflow
	}
	fwd := n
	if fwd > e.Remain {
		fwd = e.Remain
	}
	if fwd > 0 && !e.Ignore {
		if _, err := e.Base.Write(data[:fwd]); err != nil {
			return 0, err
		}
	}
	e.Remain -= fwd
	e.BlockRemain -= n
	if e.Remain == 0 && !e.EmittedEnd() {
		e.End()
	}
	return int(n), nil
}

func (e *ReadEntry) Mode() int64     { return e.Header.Mode }
func (e *ReadEntry) UID() int64      { return e.Header.UID }
func (e *ReadEntry) GID() int64      { return e.Header.GID }
func (e *ReadEntry) Devmajor() int64 { return e.Header.Devmajor }
func (e *ReadEntry) Devminor() int64 { return e.Header.Devminor }
func (e *ReadEntry) TypeKey() byte   { return e.Header.TypeKey }
func (e *ReadEntry) TypeName() string {
	return header.TypeName(e.TypeKey())
}

func parsePaxInt(s string, fallback int64) int64 {
	var n int64
	neg := false
	i := 0
	if len(s) > 0 && s[0] == '-' {
		neg = true
		i = 1
	}
	if i == len(s) {
		return fallback
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return fallback
		}
		n = n*10 + int64(s[i]-'0')
	}
	if neg {
		n = -n
	}
	return n
}

func parsePaxTimeFor(s string) (time.Time, bool) {
	t, err := header.ParsePaxTime(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// Pax recognized keys (spec.md §3).
const (
	PaxAtime    = "atime"
	PaxCharset  = "charset"
	PaxComment  = "comment"
	PaxCtime    = "ctime"
	PaxGid      = "gid"
	PaxGname    = "gname"
	PaxLinkpath = "linkpath"
	PaxMtime    = "mtime"
	PaxPath     = "path"
	PaxSize     = "size"
	PaxUid      = "uid"
	PaxUname    = "uname"
	PaxDev      = "dev"
	PaxIno      = "ino"
	PaxNlink    = "nlink"

	// paxSchilyXattr namespaces extended attributes passed through as
	// opaque records (see SPEC_FULL.md's supplemented-features section).
	paxSchilyXattr = "SCHILY.xattr."
)

var recognizedPaxKeys = map[string]bool{
	PaxAtime: true, PaxCharset: true, PaxComment: true, PaxCtime: true,
	PaxGid: true, PaxGname: true, PaxLinkpath: true, PaxMtime: true,
	PaxPath: true, PaxSize: true, PaxUid: true, PaxUname: true,
	PaxDev: true, PaxIno: true, PaxNlink: true,
}

// Pax is a set of extended-header key/value records plus the flag
// distinguishing a per-entry ('x') header from a global ('g') one.
type Pax struct {
	Fields map[string]string
	Global bool
}

// Get returns a recognized field, or "" if unset. Unrecognized keys
// (xattrs, vendor extensions) are preserved in Fields but not surfaced
// through Get.
func (p *Pax) Get(key string) string {
	if p.Fields == nil || !recognizedPaxKeys[key] {
		return ""
	}
	return p.Fields[key]
}

func (p *Pax) set(key, value string) {
	if p.Fields == nil {
		p.Fields = make(map[string]string)
	}
	p.Fields[key] = value
}

// EncodeBody renders the Pax record set as the `"<len> <key>=<value>\n"`
// line format (spec.md §3/§6). Every key in Fields with a non-empty
// value is emitted: recognized keys, "SCHILY.xattr." keys, and any other
// key the caller stored there for round-tripping, verbatim. Keys with an
// empty value are skipped.
func (p *Pax) EncodeBody() []byte {
	var buf strings.Builder
	keys := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		keys = append(keys, k)
	}
	// Deterministic output: recognized keys in a fixed order, then the
	// rest (xattrs, vendor keys) sorted.
	sortPaxKeys(keys)
	for _, k := range keys {
		v := p.Fields[k]
		if v == "" {
			continue
		}
		writePaxRecord(&buf, k, v)
	}
	return []byte(buf.String())
}

func sortPaxKeys(keys []string) {
	order := map[string]int{
		PaxPath: 0, PaxLinkpath: 1, PaxSize: 2, PaxUid: 3, PaxGid: 4,
		PaxUname: 5, PaxGname: 6, PaxMtime: 7, PaxAtime: 8, PaxCtime: 9,
		PaxDev: 10, PaxIno: 11, PaxNlink: 12,
	}
	rank := func(k string) int {
		if r, ok := order[k]; ok {
			return r
		}
		return 1000
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && (rank(keys[j]) < rank(keys[j-1]) ||
			(rank(keys[j]) == rank(keys[j-1]) && keys[j] < keys[j-1])); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}

// writePaxRecord appends one self-describing line to buf. The length
// prefix counts its own digits, so it is computed by fixed-point
// iteration: start assuming a 1-digit count and grow until the stored
// count matches the actual rendered length (spec.md §3).
func writePaxRecord(buf *strings.Builder, key, value string) {
	suffix := fmt.Sprintf(" %s=%s\n", key, value)
	n := len(suffix) + 1 // seed with a 1-digit count
	for {
		digits := len(strconv.Itoa(n))
		total := digits + len(suffix)
		if total == n {
			break
		}
		n = total
	}
	fmt.Fprintf(buf, "%d%s", n, suffix)
}

// ParsePax parses a Pax body into a fresh Pax. prior seeds the returned
// Fields map (later lines in body override duplicate keys from prior, and
// duplicate keys within body have the later line win, per spec.md §6).
func ParsePax(body []byte, prior map[string]string, global bool) (*Pax, error) {
	p := &Pax{Fields: map[string]string{}, Global: global}
	for k, v := range prior {
		p.Fields[k] = v
	}
	s := string(body)
	for len(s) > 0 {
		key, value, rest, err := parsePaxRecord(s)
		if err != nil {
			return nil, err
		}
		s = rest
		p.Fields[key] = value
	}
	return p, nil
}

// parsePaxRecord consumes one `"<len> <key>=<value>\n"` line from the
// front of s, validating the length fixpoint, and returns the remainder.
func parsePaxRecord(s string) (key, value, rest string, err error) {
	sp := strings.IndexByte(s, ' ')
	if sp < 0 {
		return "", "", "", ErrHeader
	}
	n, convErr := strconv.Atoi(s[:sp])
	if convErr != nil || n <= sp+1 || n > len(s) {
		return "", "", "", ErrHeader
	}
	record := s[:n]
	if record[n-1] != '\n' {
		return "", "", "", ErrHeader
	}
	eq := strings.IndexByte(record[sp+1:], '=')
	if eq < 0 {
		return "", "", "", ErrHeader
	}
	eq += sp + 1
	return record[sp+1 : eq], record[eq+1 : n-1], s[n:], nil
}

// MergeInto applies p's recognized fields onto h, overriding whatever the
// base/ustar/xstar decode produced. Numeric fields are parsed; mtime/
// atime/ctime accept fractional seconds (sub-second precision is kept as
// the Time's nanosecond component). Unrecognized keys (xattrs, vendor
// extensions) pass through unmodified via the caller-visible Fields map.
func (p *Pax) MergeInto(h *Header) error {
	for k, v := range p.Fields {
		if v == "" {
			continue
		}
		var err error
		switch k {
		case PaxPath:
			h.Path = v
		case PaxLinkpath:
			h.Linkpath = v
		case PaxUname:
			h.Uname = v
		case PaxGname:
			h.Gname = v
		case PaxUid:
			h.UID, err = strconv.ParseInt(v, 10, 64)
		case PaxGid:
			h.GID, err = strconv.ParseInt(v, 10, 64)
		case PaxSize:
			h.Size, err = strconv.ParseInt(v, 10, 64)
		case PaxMtime:
			h.Mtime, err = parsePaxTime(v)
		case PaxAtime:
			h.Atime, err = parsePaxTime(v)
		case PaxCtime:
			h.Ctime, err = parsePaxTime(v)
		}
		if err != nil {
			return ErrHeader
		}
	}
	return nil
}

// ParsePaxTime parses a Pax fractional-seconds timestamp string.
func ParsePaxTime(s string) (time.Time, error) {
	return parsePaxTime(s)
}

func parsePaxTime(s string) (time.Time, error) {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	secs, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return time.Time{}, ErrHeader
	}
	var nanos int64
	if hasFrac {
		// Right-pad/truncate the fractional digits to nanosecond width.
		for len(frac) < 9 {
			frac += "0"
		}
		frac = frac[:9]
		nanos, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, ErrHeader
		}
	}
	if neg {
		secs, nanos = -secs, -nanos
	}
	return time.Unix(secs, nanos), nil
}

// MetaPath synthesizes the wrapping header's path for a Pax extended
// header, "<dirname>/PaxHeader/<basename>", truncated to 100 bytes so it
// always fits the basic fieldset (spec.md §4.3).
func MetaPath(entryPath string) string {
	dir, base := path.Split(path.Clean(entryPath))
	p := path.Join(dir, "PaxHeader", base)
	if len(p) > 100 {
		p = p[:100]
	}
	return p
}

// NeedsXattrNamespace reports whether key belongs to the SCHILY.xattr.
// passthrough namespace (supplemented feature, see SPEC_FULL.md).
func NeedsXattrNamespace(key string) bool {
	return strings.HasPrefix(key, paxSchilyXattr)
}

// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package header

// Type flags (spec.md §6).
const (
	TypeReg            = '0'
	TypeRegDeprecated  = 0
	TypeLink           = '1'
	TypeSymlink        = '2'
	TypeChar           = '3'
	TypeBlock          = '4'
	TypeDir            = '5'
	TypeFifo           = '6'
	TypeCont           = '7'
	TypeXHeader        = 'x'
	TypeXGlobalHeader  = 'g'
	TypeGNUDumpDir     = 'D'
	TypeGNULongLink    = 'K'
	TypeGNULongName    = 'L'
	TypeOldGNULongName = 'N'
	TypeOldFile        = 'M'
)

var typeNames = map[byte]string{
	TypeReg:            "File",
	TypeLink:           "Link",
	TypeSymlink:        "SymbolicLink",
	TypeChar:           "CharacterDevice",
	TypeBlock:          "BlockDevice",
	TypeDir:            "Directory",
	TypeFifo:           "FIFO",
	TypeCont:           "ContiguousFile",
	TypeXHeader:        "ExtendedHeader",
	TypeXGlobalHeader:  "GlobalExtendedHeader",
	TypeGNUDumpDir:     "GNUDumpDir",
	TypeGNULongLink:    "NextFileHasLongLinkpath",
	TypeGNULongName:    "NextFileHasLongPath",
	TypeOldGNULongName: "OldGnuLongPath",
	TypeOldFile:        "OldFile",
}

var namesToType map[string]byte

func init() {
	namesToType = make(map[string]byte, len(typeNames))
	for k, v := range typeNames {
		namesToType[v] = k
	}
}

// TypeName returns the human-readable name for a type code, or "" if the
// code is not one of the recognized vendor-specific (A-Z) or core codes.
// Unknown single characters outside A-Z still decode to a Header but have
// no name; callers treat that as the "unknown type" case (spec.md §4.6).
func TypeName(code byte) string {
	if name, ok := typeNames[code]; ok {
		return name
	}
	if code == TypeRegDeprecated {
		return typeNames[TypeReg]
	}
	if code >= 'A' && code <= 'Z' {
		return "VendorSpecific"
	}
	return ""
}

// TypeCode returns the type code for a human-readable name, and whether
// the name was recognized.
func TypeCode(name string) (byte, bool) {
	c, ok := namesToType[name]
	return c, ok
}

// IsHeaderOnly reports whether entries of this type never carry a body
// even if Size is nonzero (hard/symbolic links, devices, dirs, fifos).
func IsHeaderOnly(typeKey byte) bool {
	switch typeKey {
	case TypeLink, TypeSymlink, TypeChar, TypeBlock, TypeDir, TypeFifo:
		return true
	default:
		return false
	}
}

// IsMeta reports whether typeKey identifies an entry whose body describes
// the next entry rather than being a filesystem object in its own right
// (Pax extended/global, GNU long name/link).
func IsMeta(typeKey byte) bool {
	switch typeKey {
	case TypeXHeader, TypeXGlobalHeader, TypeGNULongName, TypeGNULongLink:
		return true
	default:
		return false
	}
}

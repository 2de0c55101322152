package header

// EncodePaxMeta renders the header block + body blocks for a Pax
// extended ('x') or global ('g') header wrapping p, describing the entry
// at entryPath (spec.md §4.3). Body is padded to a whole number of
// 512-byte blocks.
func EncodePaxMeta(p *Pax, entryPath string) (hdrBlock []byte, body []byte) {
	typeKey := byte(TypeXHeader)
	metaPath := MetaPath(entryPath)
	if p.Global {
		typeKey = TypeXGlobalHeader
		metaPath = "/GlobalHead.0.0"
	}
	raw := p.EncodeBody()

	mh := &Header{
		Path:    metaPath,
		Mode:    0644,
		Size:    int64(len(raw)),
		TypeKey: typeKey,
	}
	hdrBlock = mh.Encode(nil)

	padded := len(raw)
	if rem := padded % BlockSize; rem != 0 {
		padded += BlockSize - rem
	}
	body = make([]byte, padded)
	copy(body, raw)
	return hdrBlock, body
}

// EncodeGNULongName renders the header block + body blocks for a GNU
// long-pathname meta entry (type 'L'), one of the supplemented features
// in SPEC_FULL.md: a fallback for overlong paths when Pax is disallowed.
func EncodeGNULongName(name string) (hdrBlock []byte, body []byte) {
	return encodeGNULong(name, TypeGNULongName)
}

// EncodeGNULongLink renders the header block + body blocks for a GNU
// long-linkname meta entry (type 'K').
func EncodeGNULongLink(link string) (hdrBlock []byte, body []byte) {
	return encodeGNULong(link, TypeGNULongLink)
}

func encodeGNULong(value string, typeKey byte) (hdrBlock []byte, body []byte) {
	raw := append([]byte(value), 0)
	mh := &Header{
		Path:    "././@LongLink",
		Mode:    0,
		Size:    int64(len(raw)),
		TypeKey: typeKey,
	}
	hdrBlock = mh.Encode(nil)

	padded := len(raw)
	if rem := padded % BlockSize; rem != 0 {
		padded += BlockSize - rem
	}
	body = make([]byte, padded)
	copy(body, raw)
	return hdrBlock, body
}

// BlocksFor returns the number of 512-byte blocks needed to hold n bytes
// of body data, per the corrected formula noted in spec.md §9 (ceil(n/512),
// never the "always overallocate one block" variant some WriteEntry
// implementations mistakenly use).
func BlocksFor(n int64) int64 {
	return (n + BlockSize - 1) / BlockSize
}

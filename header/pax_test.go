package header

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestPaxRecordLengthFixpoint(t *testing.T) {
	// "20 ctime=1234567890\n" is 20 bytes, 2 of which are the count "20"
	// itself: the count includes its own digits, so growing the count can
	// grow its own digit width.
	p := &Pax{Fields: map[string]string{PaxPath: "0123456789"}}
	body := p.EncodeBody()
	// len("<n> path=0123456789\n") must equal the leading decimal number.
	sp := indexByte(body, ' ')
	require.Greater(t, sp, 0)
	n := atoi(t, string(body[:sp]))
	require.Equal(t, n, len(body))
}

func TestPaxParseEncodeRoundTripsRecognizedKeys(t *testing.T) {
	fields := map[string]string{
		PaxPath:     "some/deep/path.txt",
		PaxLinkpath: "other/path",
		PaxUid:      "1000",
		PaxGid:      "1000",
		PaxUname:    "alice",
		PaxGname:    "staff",
		PaxSize:     "123456",
		PaxMtime:    "1459548000.5",
	}
	p := &Pax{Fields: fields}
	body := p.EncodeBody()

	parsed, err := ParsePax(body, nil, false)
	require.NoError(t, err)
	if diff := cmp.Diff(fields, parsed.Fields); diff != "" {
		t.Errorf("parsed Pax fields mismatch (-want +got):\n%s", diff)
	}
}

func TestPaxParseDuplicateKeyLastWins(t *testing.T) {
	p1, _ := ParsePax([]byte(encodeRecord(t, PaxPath, "first")), nil, false)
	p2, err := ParsePax([]byte(encodeRecord(t, PaxPath, "second")), p1.Fields, false)
	require.NoError(t, err)
	require.Equal(t, "second", p2.Fields[PaxPath])
}

func TestPaxMergeIntoAppliesRecognizedFields(t *testing.T) {
	p := &Pax{Fields: map[string]string{
		PaxPath: "renamed.txt",
		PaxUid:  "42",
	}}
	h := &Header{Path: "original.txt", UID: 0}
	require.NoError(t, p.MergeInto(h))
	require.Equal(t, "renamed.txt", h.Path)
	require.Equal(t, int64(42), h.UID)
}

func TestPaxMergeRejectsMalformedNumeric(t *testing.T) {
	p := &Pax{Fields: map[string]string{PaxUid: "not-a-number"}}
	h := &Header{}
	require.Error(t, p.MergeInto(h))
}

func TestMetaPathFormat(t *testing.T) {
	got := MetaPath("dir/sub/file.txt")
	require.Equal(t, "dir/sub/PaxHeader/file.txt", got)
}

func TestXattrPassthroughNamespace(t *testing.T) {
	require.True(t, NeedsXattrNamespace("SCHILY.xattr.user.foo"))
	require.False(t, NeedsXattrNamespace("path"))
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func atoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, c := range s {
		require.True(t, c >= '0' && c <= '9')
		n = n*10 + int(c-'0')
	}
	return n
}

func encodeRecord(t *testing.T, key, value string) string {
	t.Helper()
	p := &Pax{Fields: map[string]string{key: value}}
	return string(p.EncodeBody())
}

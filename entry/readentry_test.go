package entry

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tarstream/tarstream/header"
)

func TestReadEntryOverrideOrder(t *testing.T) {
	h := &header.Header{Path: "base.txt", Size: 10, TypeKey: header.TypeReg}
	global := &header.Pax{Fields: map[string]string{header.PaxPath: "global.txt"}}
	extended := &header.Pax{Fields: map[string]string{header.PaxPath: "extended.txt"}}

	e := NewReadEntry(h, nil, nil)
	require.Equal(t, "base.txt", e.Path())

	e = NewReadEntry(h, nil, global)
	require.Equal(t, "global.txt", e.Path())

	e = NewReadEntry(h, extended, global)
	require.Equal(t, "extended.txt", e.Path(), "extended must win over global")
}

func TestReadEntryRemainInvariants(t *testing.T) {
	h := &header.Header{Path: "f", Size: 1000, TypeKey: header.TypeReg}
	e := NewReadEntry(h, nil, nil)
	require.Equal(t, int64(1000), e.Remain)
	require.Equal(t, int64(1024), e.BlockRemain)
	require.Equal(t, int64(0), e.BlockRemain%header.BlockSize)
}

func TestReadEntryHeaderOnlyTypeHasNoBody(t *testing.T) {
	h := &header.Header{Path: "d/", Size: 999, TypeKey: header.TypeDir}
	e := NewReadEntry(h, nil, nil)
	require.Equal(t, int64(0), e.Remain)
	require.Equal(t, int64(0), e.BlockRemain)
}

func TestSinkDeliversDataThenEnd(t *testing.T) {
	var b Base
	var got []byte
	ended := false
	b.OnData(func(p []byte) { got = append(got, p...) })
	b.OnEnd(func() { ended = true })

	b.Write([]byte("hello"))
	require.Equal(t, "hello", string(got))
	require.False(t, b.EmittedEnd())

	b.End()
	require.True(t, ended)
	require.True(t, b.EmittedEnd())

	// End is idempotent.
	ended = false
	b.End()
	require.False(t, ended)
}

func TestReadEntryFeedEndsAtRemainZero(t *testing.T) {
	h := &header.Header{Path: "f", Size: 5, TypeKey: header.TypeReg}
	e := NewReadEntry(h, nil, nil)
	var got []byte
	e.OnData(func(p []byte) { got = append(got, p...) })

	n, err := e.Feed([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(got))
	require.True(t, e.EmittedEnd())
	require.Equal(t, int64(0), e.Remain)
}

func TestReadEntryFeedPastBlockRemainRaises(t *testing.T) {
	h := &header.Header{Path: "f", Size: 20, TypeKey: '9'}
	e := NewReadEntry(h, nil, nil)
	require.Equal(t, int64(512), e.BlockRemain)

	_, err := e.Feed(make([]byte, 600))
	require.ErrorIs(t, err, ErrEntryOverflow)
}

func TestReadEntryIgnoredEntryDropsData(t *testing.T) {
	h := &header.Header{Path: "f", Size: 4, TypeKey: header.TypeReg}
	e := NewReadEntry(h, nil, nil)
	e.Ignore = true
	var calls int
	e.OnData(func([]byte) { calls++ })

	_, err := e.Feed([]byte("body"))
	require.NoError(t, err)
	require.Equal(t, 0, calls)
	require.True(t, e.EmittedEnd())
}

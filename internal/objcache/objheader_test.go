package objcache

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleHeader() *ObjectHeader {
	return &ObjectHeader{
		Magic:         magicNative,
		Rev:           3,
		ID:            42,
		StartOffset:   128,
		Args:          2,
		NoVars:        5,
		StackDepth:    64,
		SymTabOffset:  900,
		LineTabOffset: 1200,
		ObjectSize:    int32(objHeaderSize + len("bytecode")),
		Flags:         HdrIsFunction | HdrNoCase,
		CompileTime:   1700000000,
		ProgramName:   "SUBR.FOO",
	}
}

func TestDecodeObjectHeaderRoundTrip(t *testing.T) {
	h := sampleHeader()
	buf := encodeObjectHeader(h, []byte("bytecode"))

	got, body, err := decodeObjectHeader(buf)
	require.NoError(t, err)
	require.Equal(t, "bytecode", string(body))
	require.Equal(t, h, got)
}

// encodeObjectHeaderForeign re-encodes h as if written by an opposite-
// endian host: every multi-byte field's raw bytes are big-endian rather
// than this host's native little-endian, and the magic byte is inverted.
func encodeObjectHeaderForeign(h *ObjectHeader, body []byte) []byte {
	buf := make([]byte, objHeaderSize+len(body))
	be := binary.BigEndian
	buf[0] = magicForeign
	buf[1] = h.Rev
	be.PutUint32(buf[2:6], uint32(h.ID))
	be.PutUint32(buf[6:10], uint32(h.StartOffset))
	be.PutUint16(buf[10:12], uint16(h.Args))
	be.PutUint16(buf[12:14], uint16(h.NoVars))
	be.PutUint16(buf[14:16], uint16(h.StackDepth))
	be.PutUint32(buf[16:20], uint32(h.SymTabOffset))
	be.PutUint32(buf[20:24], uint32(h.LineTabOffset))
	be.PutUint32(buf[24:28], uint32(h.ObjectSize))
	be.PutUint16(buf[28:30], h.Flags)
	be.PutUint32(buf[30:34], uint32(h.CompileTime))
	be.PutUint16(buf[34:36], uint16(h.Refs))
	copy(buf[objHeaderFixedSize:objHeaderSize], h.ProgramName)
	copy(buf[objHeaderSize:], body)
	return buf
}

// TestByteSwappedObjectHeaderRecoversOriginal is the §8 testable property:
// a header written by an opposite-endian host, read back through
// decodeObjectHeader's magic-triggered byte swap, reports the same field
// values as the host that originally compiled it.
func TestByteSwappedObjectHeaderRecoversOriginal(t *testing.T) {
	want := sampleHeader()
	foreign := encodeObjectHeaderForeign(want, []byte("bytecode"))
	require.Equal(t, magicForeign, foreign[0])

	got, body, err := decodeObjectHeader(foreign)
	require.NoError(t, err)
	require.Equal(t, "bytecode", string(body))
	require.Equal(t, magicNative, got.Magic, "decode normalizes the magic byte like convert_object_header")
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.StartOffset, got.StartOffset)
	require.Equal(t, want.Args, got.Args)
	require.Equal(t, want.NoVars, got.NoVars)
	require.Equal(t, want.StackDepth, got.StackDepth)
	require.Equal(t, want.SymTabOffset, got.SymTabOffset)
	require.Equal(t, want.LineTabOffset, got.LineTabOffset)
	require.Equal(t, want.ObjectSize, got.ObjectSize)
	require.Equal(t, want.Flags, got.Flags)
	require.Equal(t, want.CompileTime, got.CompileTime)
	require.Equal(t, want.ProgramName, got.ProgramName)
}

func TestDecodeObjectHeaderRejectsUnknownMagic(t *testing.T) {
	h := sampleHeader()
	buf := encodeObjectHeader(h, []byte("x"))
	buf[0] = 0xAB
	_, _, err := decodeObjectHeader(buf)
	require.ErrorIs(t, err, ErrHeaderCorrupt)
}

func TestDecodeObjectHeaderRejectsShortBuffer(t *testing.T) {
	_, _, err := decodeObjectHeader(make([]byte, 10))
	require.ErrorIs(t, err, ErrHeaderCorrupt)
}

func TestGetDecodesHeaderFromLoadedObject(t *testing.T) {
	c := New(0, 0)
	loader := newFakeLoader()

	obj, err := c.Get("PROG1", loader)
	require.NoError(t, err)
	require.Equal(t, magicNative, obj.Header.Magic)
	require.Equal(t, "PROG1", obj.Header.ProgramName)
	require.Equal(t, []byte("PROG1"), obj.Bytes)
}

package objcache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/bits"
)

// ErrHeaderCorrupt is returned when a loaded object's header magic matches
// neither this host's native byte order nor its byte-swapped inverse.
var ErrHeaderCorrupt = errors.New("objcache: invalid object header magic")

// Object header flag bits (OBJECT_HEADER.flags), named per header.h.
const (
	HdrIsCProc uint16 = 1 << iota
	HdrInternal
	HdrDebug
	HdrIsDebugger
	HdrNoCase
	HdrIsFunction
	HdrVarArgs
	HdrRecursive
	HdrIType
	HdrAllowBreak
	HdrIsTrusted
	HdrNetFiles
	HdrCaseSensitive
	HdrQMCallAllowed
	HdrCType
	HdrIsClass
)

// magicNative/magicForeign mirror HDR_MAGIC/HDR_MAGIC_INVERSE: a header
// carrying magicForeign was written by a host of the opposite endianness and
// must be byte-swapped field by field before its numeric members are usable.
const (
	magicNative  byte = 0x64
	magicForeign byte = 0x65
)

// maxProgramNameLen sizes the fixed program_name field. Not present in the
// retrieved header.h subset; chosen generously for typical catalogued
// program names and recorded as an Open Question decision in DESIGN.md.
const maxProgramNameLen = 64

const objHeaderFixedSize = 36
const objHeaderSize = objHeaderFixedSize + maxProgramNameLen

// ObjectHeader mirrors OBJECT_HEADER: the fixed compile-time metadata every
// cached program carries ahead of its byte-code body.
type ObjectHeader struct {
	Magic         byte
	Rev           byte
	ID            int32
	StartOffset   int32
	Args          int16
	NoVars        int16
	StackDepth    int16
	SymTabOffset  int32
	LineTabOffset int32
	ObjectSize    int32
	Flags         uint16
	CompileTime   int32 // seconds since the Unix epoch
	Refs          int16
	ProgramName   string
}

// encodeObjectHeader serializes h followed by body into the on-disk layout
// decodeObjectHeader expects: the fixed 36-byte header, a fixed
// maxProgramNameLen-byte NUL-padded program name, then the byte-code body.
func encodeObjectHeader(h *ObjectHeader, body []byte) []byte {
	buf := make([]byte, objHeaderSize+len(body))
	le := binary.LittleEndian
	buf[0] = h.Magic
	buf[1] = h.Rev
	le.PutUint32(buf[2:6], uint32(h.ID))
	le.PutUint32(buf[6:10], uint32(h.StartOffset))
	le.PutUint16(buf[10:12], uint16(h.Args))
	le.PutUint16(buf[12:14], uint16(h.NoVars))
	le.PutUint16(buf[14:16], uint16(h.StackDepth))
	le.PutUint32(buf[16:20], uint32(h.SymTabOffset))
	le.PutUint32(buf[20:24], uint32(h.LineTabOffset))
	le.PutUint32(buf[24:28], uint32(h.ObjectSize))
	le.PutUint16(buf[28:30], h.Flags)
	le.PutUint32(buf[30:34], uint32(h.CompileTime))
	le.PutUint16(buf[34:36], uint16(h.Refs))
	copy(buf[objHeaderFixedSize:objHeaderSize], h.ProgramName)
	copy(buf[objHeaderSize:], body)
	return buf
}

// decodeObjectHeader parses the fixed header and program name from the
// front of a loaded object's raw bytes, returning the header and the
// remaining byte-code body. A header carrying magicForeign is byte-swapped
// in place before its fields are returned, mirroring
// gplsrc/object.c's convert_object_header.
func decodeObjectHeader(buf []byte) (*ObjectHeader, []byte, error) {
	if len(buf) < objHeaderSize {
		return nil, nil, ErrHeaderCorrupt
	}
	le := binary.LittleEndian
	h := &ObjectHeader{
		Magic:         buf[0],
		Rev:           buf[1],
		ID:            int32(le.Uint32(buf[2:6])),
		StartOffset:   int32(le.Uint32(buf[6:10])),
		Args:          int16(le.Uint16(buf[10:12])),
		NoVars:        int16(le.Uint16(buf[12:14])),
		StackDepth:    int16(le.Uint16(buf[14:16])),
		SymTabOffset:  int32(le.Uint32(buf[16:20])),
		LineTabOffset: int32(le.Uint32(buf[20:24])),
		ObjectSize:    int32(le.Uint32(buf[24:28])),
		Flags:         le.Uint16(buf[28:30]),
		CompileTime:   int32(le.Uint32(buf[30:34])),
	}
	switch h.Magic {
	case magicNative:
	case magicForeign:
		byteSwapHeader(h)
	default:
		return nil, nil, ErrHeaderCorrupt
	}
	// Reference count is reassigned by the cache on every load, never read
	// meaningfully from disk, so convert_object_header does not byte-swap it.
	h.Refs = 0

	name := buf[objHeaderFixedSize:objHeaderSize]
	if nul := bytes.IndexByte(name, 0); nul >= 0 {
		name = name[:nul]
	}
	h.ProgramName = string(name)

	return h, buf[objHeaderSize:], nil
}

// byteSwapHeader reverses the byte order of every multi-byte field, the Go
// equivalent of convert_object_header's Reverse2/Reverse4 calls. Since the
// field was decoded with this host's native (little-endian) byte order from
// bytes actually written in the opposite order, the decoded value is
// already exactly byte-reversed from the truth; reversing it again recovers
// the original.
func byteSwapHeader(h *ObjectHeader) {
	h.ID = int32(bits.ReverseBytes32(uint32(h.ID)))
	h.StartOffset = int32(bits.ReverseBytes32(uint32(h.StartOffset)))
	h.Args = int16(bits.ReverseBytes16(uint16(h.Args)))
	h.NoVars = int16(bits.ReverseBytes16(uint16(h.NoVars)))
	h.StackDepth = int16(bits.ReverseBytes16(uint16(h.StackDepth)))
	h.SymTabOffset = int32(bits.ReverseBytes32(uint32(h.SymTabOffset)))
	h.LineTabOffset = int32(bits.ReverseBytes32(uint32(h.LineTabOffset)))
	h.ObjectSize = int32(bits.ReverseBytes32(uint32(h.ObjectSize)))
	h.Flags = bits.ReverseBytes16(h.Flags)
	h.CompileTime = int32(bits.ReverseBytes32(uint32(h.CompileTime)))
	h.Magic = magicNative
}

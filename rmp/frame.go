package rmp

import "encoding/binary"

// FrameType distinguishes a message frame from a padding frame in the ring.
type FrameType uint8

const (
	FrameMsg FrameType = iota
	FramePadding
)

// HeaderSize is the packed wire size of a Header: one byte of type plus a
// four-byte little-endian length.
const HeaderSize = Position(5)

// Header precedes every framed span written to the ring: either a message
// (FrameMsg) or a skipped span inserted so a header never straddles the
// ring boundary (FramePadding).
type Header struct {
	Type   FrameType
	Length uint32
}

// Valid reports whether h looks like a real header rather than a zeroed or
// torn read: a recognized frame type with a non-zero length. Reader.ReadEx
// treats an invalid header as a frame overwritten by the writer and reports
// the position expired.
func (h Header) Valid() bool {
	return (h.Type == FrameMsg || h.Type == FramePadding) && h.Length != 0
}

// PutHeader writes h into buf using the ring's packed layout. buf must have
// length >= HeaderSize.
func PutHeader(buf []byte, h Header) {
	buf[0] = byte(h.Type)
	binary.LittleEndian.PutUint32(buf[1:5], h.Length)
}

// GetHeader reads a Header from buf's packed layout. buf must have length
// >= HeaderSize.
func GetHeader(buf []byte) Header {
	return Header{
		Type:   FrameType(buf[0]),
		Length: binary.LittleEndian.Uint32(buf[1:5]),
	}
}

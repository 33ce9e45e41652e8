// internal/protocol/frame.go
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"screen-streamer/internal/compress"
)

// Wire constants understood by the screen firmware
const (
	HeaderMagic  uint64 = 7596835243154170209
	TrailerMagic uint64 = 7596835243154170466

	HeaderLen  = 16
	TrailerLen = 8

	// MaxCompressedPayload is the largest compressed payload the firmware
	// receive buffer accepts, size prefix included.
	MaxCompressedPayload = 28 * 1024
)

var (
	ErrPayloadTooLarge = errors.New("compressed payload exceeds device limit")
	ErrBadMagic        = errors.New("frame magic mismatch")
	ErrShortFrame      = errors.New("frame too short")
)

// Header is the fixed 16-byte frame header
type Header struct {
	Width  uint16 `json:"width"`
	Height uint16 `json:"height"`
	X      uint16 `json:"x"`
	Y      uint16 `json:"y"`
}

// Bytes renders the header in wire order
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderLen)
	binary.BigEndian.PutUint64(b[0:8], HeaderMagic)
	binary.BigEndian.PutUint16(b[8:10], h.Width)
	binary.BigEndian.PutUint16(b[10:12], h.Height)
	binary.BigEndian.PutUint16(b[12:14], h.X)
	binary.BigEndian.PutUint16(b[14:16], h.Y)
	return b
}

// ParseHeader is the inverse of Header.Bytes
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrShortFrame, HeaderLen, len(b))
	}
	if binary.BigEndian.Uint64(b[0:8]) != HeaderMagic {
		return Header{}, fmt.Errorf("%w: header", ErrBadMagic)
	}
	return Header{
		Width:  binary.BigEndian.Uint16(b[8:10]),
		Height: binary.BigEndian.Uint16(b[10:12]),
		X:      binary.BigEndian.Uint16(b[12:14]),
		Y:      binary.BigEndian.Uint16(b[14:16]),
	}, nil
}

// TrailerBytes renders the frame trailer
func TrailerBytes() []byte {
	b := make([]byte, TrailerLen)
	binary.BigEndian.PutUint64(b, TrailerMagic)
	return b
}

// Frame is a header plus its compressed payload, ready for a transport
type Frame struct {
	Header  Header
	Payload []byte
}

// Parts returns header, payload and trailer as separate transfers
func (f *Frame) Parts() [][]byte {
	return [][]byte{f.Header.Bytes(), f.Payload, TrailerBytes()}
}

// Bytes concatenates the frame into a single buffer
func (f *Frame) Bytes() []byte {
	out := make([]byte, 0, HeaderLen+len(f.Payload)+TrailerLen)
	out = append(out, f.Header.Bytes()...)
	out = append(out, f.Payload...)
	return append(out, TrailerBytes()...)
}

// EncodeFrame compresses an RGB565 buffer and wraps it for the wire.
// Oversized payloads are rejected here, before any transport is touched.
func EncodeFrame(rgb565 []byte, header Header) (*Frame, error) {
	payload, err := compress.Compress(rgb565)
	if err != nil {
		return nil, fmt.Errorf("failed to compress frame: %w", err)
	}
	if len(payload) > MaxCompressedPayload {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), MaxCompressedPayload)
	}
	return &Frame{Header: header, Payload: payload}, nil
}

// DecodeFrame parses a complete wire frame and returns its header and the
// decompressed RGB565 pixels.
func DecodeFrame(wire []byte) (Header, []byte, error) {
	if len(wire) < HeaderLen+TrailerLen {
		return Header{}, nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(wire))
	}

	header, err := ParseHeader(wire)
	if err != nil {
		return Header{}, nil, err
	}

	tail := wire[len(wire)-TrailerLen:]
	if binary.BigEndian.Uint64(tail) != TrailerMagic {
		return Header{}, nil, fmt.Errorf("%w: trailer", ErrBadMagic)
	}

	pixels, err := compress.Decompress(wire[HeaderLen : len(wire)-TrailerLen])
	if err != nil {
		return Header{}, nil, fmt.Errorf("failed to decompress frame: %w", err)
	}
	return header, pixels, nil
}

// internal/wifi/encoder.go
package wifi

import (
	"encoding/binary"
	"errors"
	"fmt"

	"screen-streamer/internal/compress"
)

// Frame type magics, 8 ASCII bytes each
const (
	KeyMagic   = "wflz4ke_"
	DeltaMagic = "wflz4dl_"
	NopMagic   = "wflz4no_"
)

const (
	// FrameHeaderLen is magic + width + height
	FrameHeaderLen = 12

	// NopThreshold is the compressed delta size below which a frame is
	// treated as unchanged
	NopThreshold = 200

	// DefaultKeyInterval forces a key frame every N frames
	DefaultKeyInterval uint32 = 60
)

var ErrUnknownFrame = errors.New("unknown wifi frame magic")

// FrameKind identifies the encoded frame variant
type FrameKind int

const (
	FrameKey FrameKind = iota
	FrameDelta
	FrameNop
)

func (k FrameKind) String() string {
	switch k {
	case FrameKey:
		return "KEY"
	case FrameDelta:
		return "DLT"
	case FrameNop:
		return "NOP"
	default:
		return "UNKNOWN"
	}
}

func (k FrameKind) magic() string {
	switch k {
	case FrameDelta:
		return DeltaMagic
	case FrameNop:
		return NopMagic
	default:
		return KeyMagic
	}
}

// EncodedFrame is one binary websocket message
type EncodedFrame struct {
	Kind FrameKind
	Data []byte
}

// DeltaEncoder turns consecutive RGB565 frames into key, delta and no-op
// frames. It is not safe for concurrent use.
type DeltaEncoder struct {
	prev        []byte
	count       uint32
	keyInterval uint32
}

// NewDeltaEncoder creates an encoder; a zero interval selects the default
func NewDeltaEncoder(keyInterval uint32) *DeltaEncoder {
	if keyInterval == 0 {
		keyInterval = DefaultKeyInterval
	}
	return &DeltaEncoder{keyInterval: keyInterval}
}

// Encode chooses the cheapest frame for rgb565 given the reference frame
func (e *DeltaEncoder) Encode(rgb565 []byte, width, height uint16) (EncodedFrame, error) {
	needKey := len(e.prev) != len(rgb565) ||
		e.count == 0 ||
		e.count%e.keyInterval == 0

	if needKey {
		key, err := compress.Compress(rgb565)
		if err != nil {
			return EncodedFrame{}, fmt.Errorf("key frame: %w", err)
		}
		e.commit(rgb565)
		return buildFrame(FrameKey, width, height, key), nil
	}

	delta, err := compress.Compress(XORDelta(rgb565, e.prev))
	if err != nil {
		return EncodedFrame{}, fmt.Errorf("delta frame: %w", err)
	}

	if len(delta) < NopThreshold {
		e.count++
		return buildFrame(FrameNop, width, height, nil), nil
	}

	key, err := compress.Compress(rgb565)
	if err != nil {
		return EncodedFrame{}, fmt.Errorf("key frame: %w", err)
	}
	e.commit(rgb565)

	if len(delta) >= len(key) {
		return buildFrame(FrameKey, width, height, key), nil
	}
	return buildFrame(FrameDelta, width, height, delta), nil
}

// Reset forces the next frame to be a key frame
func (e *DeltaEncoder) Reset() {
	e.prev = e.prev[:0]
	e.count = 0
}

// FrameCount returns the number of frames emitted since the last reset
func (e *DeltaEncoder) FrameCount() uint32 {
	return e.count
}

func (e *DeltaEncoder) commit(rgb565 []byte) {
	e.prev = append(e.prev[:0], rgb565...)
	e.count++
}

func buildFrame(kind FrameKind, width, height uint16, payload []byte) EncodedFrame {
	data := make([]byte, FrameHeaderLen, FrameHeaderLen+len(payload))
	copy(data, kind.magic())
	binary.BigEndian.PutUint16(data[8:10], width)
	binary.BigEndian.PutUint16(data[10:12], height)
	data = append(data, payload...)
	return EncodedFrame{Kind: kind, Data: data}
}

// XORDelta returns the byte-wise XOR of a and b over their common length
func XORDelta(a, b []byte) []byte {
	n := min(len(a), len(b))
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// ParseFrame splits a wire frame into its kind, dimensions and payload
func ParseFrame(data []byte) (FrameKind, uint16, uint16, []byte, error) {
	if len(data) < FrameHeaderLen {
		return 0, 0, 0, nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	var kind FrameKind
	switch string(data[:8]) {
	case KeyMagic:
		kind = FrameKey
	case DeltaMagic:
		kind = FrameDelta
	case NopMagic:
		kind = FrameNop
	default:
		return 0, 0, 0, nil, fmt.Errorf("%w: %q", ErrUnknownFrame, data[:8])
	}

	width := binary.BigEndian.Uint16(data[8:10])
	height := binary.BigEndian.Uint16(data[10:12])
	return kind, width, height, data[FrameHeaderLen:], nil
}

// ApplyFrame reconstructs the receiver's frame buffer from a wire frame,
// the way the screen firmware does
func ApplyFrame(current, data []byte) ([]byte, FrameKind, error) {
	kind, _, _, payload, err := ParseFrame(data)
	if err != nil {
		return nil, 0, err
	}

	switch kind {
	case FrameNop:
		return current, kind, nil
	case FrameKey:
		pixels, err := compress.Decompress(payload)
		if err != nil {
			return nil, kind, err
		}
		return pixels, kind, nil
	default:
		delta, err := compress.Decompress(payload)
		if err != nil {
			return nil, kind, err
		}
		if len(delta) != len(current) {
			return nil, kind, fmt.Errorf("delta of %d bytes against %d byte frame", len(delta), len(current))
		}
		return XORDelta(current, delta), kind, nil
	}
}

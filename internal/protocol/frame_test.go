package protocol

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screen-streamer/internal/compress"
)

func TestHeader_Layout(t *testing.T) {
	h := Header{Width: 320, Height: 240, X: 16, Y: 8}
	b := h.Bytes()

	require.Len(t, b, HeaderLen)
	assert.Equal(t, HeaderMagic, binary.BigEndian.Uint64(b[0:8]))
	assert.Equal(t, []byte{0x01, 0x40, 0x00, 0xf0, 0x00, 0x10, 0x00, 0x08}, b[8:])
}

func TestHeader_Bijection(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		h := Header{
			Width:  uint16(rng.Intn(1 << 16)),
			Height: uint16(rng.Intn(1 << 16)),
			X:      uint16(rng.Intn(1 << 16)),
			Y:      uint16(rng.Intn(1 << 16)),
		}
		parsed, err := ParseHeader(h.Bytes())
		require.NoError(t, err)
		assert.Equal(t, h, parsed)
	}
}

func TestParseHeader_Errors(t *testing.T) {
	_, err := ParseHeader(make([]byte, 8))
	assert.ErrorIs(t, err, ErrShortFrame)

	_, err = ParseHeader(make([]byte, HeaderLen))
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestTrailer(t *testing.T) {
	assert.Equal(t, TrailerMagic, binary.BigEndian.Uint64(TrailerBytes()))
	assert.NotEqual(t, HeaderMagic, TrailerMagic)
}

func TestEncodeDecodeFrame(t *testing.T) {
	pixels := make([]byte, 32*16*2)
	for i := range pixels {
		pixels[i] = byte(i % 13)
	}
	h := Header{Width: 32, Height: 16, X: 4, Y: 2}

	frame, err := EncodeFrame(pixels, h)
	require.NoError(t, err)

	wire := frame.Bytes()
	assert.Equal(t, HeaderLen+len(frame.Payload)+TrailerLen, len(wire))

	parts := frame.Parts()
	require.Len(t, parts, 3)
	assert.Equal(t, wire, append(append(append([]byte{}, parts[0]...), parts[1]...), parts[2]...))

	gotHeader, gotPixels, err := DecodeFrame(wire)
	require.NoError(t, err)
	assert.Equal(t, h, gotHeader)
	assert.Equal(t, pixels, gotPixels)
}

func TestEncodeFrame_SizeCeiling(t *testing.T) {
	noise := make([]byte, 320*240*2)
	rand.New(rand.NewSource(3)).Read(noise)

	_, err := EncodeFrame(noise, Header{Width: 320, Height: 240})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	flat := make([]byte, 320*240*2)
	frame, err := EncodeFrame(flat, Header{Width: 320, Height: 240})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(frame.Payload), MaxCompressedPayload)
}

func TestEncodeFrame_PayloadCarriesSizePrefix(t *testing.T) {
	frame, err := EncodeFrame(make([]byte, 100), Header{Width: 10, Height: 5})
	require.NoError(t, err)
	assert.Equal(t, uint32(100), binary.LittleEndian.Uint32(frame.Payload[:compress.SizePrefixLen]))
}

func TestDecodeFrame_Errors(t *testing.T) {
	_, _, err := DecodeFrame([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortFrame)

	frame, err := EncodeFrame(make([]byte, 8), Header{Width: 2, Height: 2})
	require.NoError(t, err)
	wire := frame.Bytes()
	wire[len(wire)-1] ^= 0xff

	_, _, err = DecodeFrame(wire)
	assert.ErrorIs(t, err, ErrBadMagic)
}

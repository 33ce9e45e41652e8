package pixel

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func TestQuantizeChannel_StepBound(t *testing.T) {
	var rounded5, truncated5, rounded6, truncated6 int

	for v := 0; v < 256; v++ {
		q5 := int(QuantizeChannel5(uint8(v)))
		q6 := int(QuantizeChannel6(uint8(v)))
		require.LessOrEqual(t, q5, 31)
		require.LessOrEqual(t, q6, 63)

		assert.LessOrEqual(t, absDiff(q5<<3, v), 7, "5-bit v=%d", v)
		assert.LessOrEqual(t, absDiff(q6<<2, v), 3, "6-bit v=%d", v)

		rounded5 += absDiff(q5<<3, v)
		truncated5 += absDiff((v>>3)<<3, v)
		rounded6 += absDiff(q6<<2, v)
		truncated6 += absDiff((v>>2)<<2, v)
	}

	assert.Less(t, rounded5, truncated5)
	assert.Less(t, rounded6, truncated6)
}

func TestExpandChannel_Replication(t *testing.T) {
	assert.Equal(t, uint8(0), ExpandChannel5(0))
	assert.Equal(t, uint8(255), ExpandChannel5(31))
	assert.Equal(t, uint8(0), ExpandChannel6(0))
	assert.Equal(t, uint8(255), ExpandChannel6(63))
	assert.Equal(t, uint8(0x84), ExpandChannel5(0x10))
	assert.Equal(t, uint8(0x82), ExpandChannel6(0x20))
}

func TestChannelRoundTrip_Bounded(t *testing.T) {
	for v := 0; v < 256; v++ {
		r := int(ExpandChannel5(QuantizeChannel5(uint8(v))))
		g := int(ExpandChannel6(QuantizeChannel6(uint8(v))))
		assert.LessOrEqual(t, absDiff(r, v), 11, "5-bit v=%d", v)
		assert.LessOrEqual(t, absDiff(g, v), 5, "6-bit v=%d", v)
	}
}

func TestPack565_Layout(t *testing.T) {
	tests := []struct {
		name     string
		r, g, b  uint8
		expected uint16
	}{
		{"black", 0, 0, 0, 0x0000},
		{"white", 255, 255, 255, 0xffff},
		{"red", 255, 0, 0, 0xf800},
		{"green", 0, 255, 0, 0x07e0},
		{"blue", 0, 0, 255, 0x001f},
		{"rounds up", 4, 2, 4, 0x0821},
		{"truncation would floor", 3, 1, 3, 0x0000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Pack565(tt.r, tt.g, tt.b))
		})
	}
}

func TestEncodeRGB565_BigEndian(t *testing.T) {
	rgb := []byte{255, 0, 0, 0, 0, 255}
	out := EncodeRGB565(rgb, 2, 1)

	require.Len(t, out, 4)
	assert.Equal(t, []byte{0xf8, 0x00, 0x00, 0x1f}, out)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	const w, h = 16, 8
	rgb := make([]byte, w*h*3)
	for i := range rgb {
		rgb[i] = byte(i * 7)
	}

	encoded := EncodeRGB565(rgb, w, h)
	require.Len(t, encoded, w*h*2)

	decoded := DecodeRGB565(encoded, w, h)
	require.Len(t, decoded, len(rgb))

	for i := 0; i < len(rgb); i += 3 {
		assert.LessOrEqual(t, absDiff(int(decoded[i]), int(rgb[i])), 11)
		assert.LessOrEqual(t, absDiff(int(decoded[i+1]), int(rgb[i+1])), 5)
		assert.LessOrEqual(t, absDiff(int(decoded[i+2]), int(rgb[i+2])), 11)
	}
}

func TestDecodeRGB565_ShortInput(t *testing.T) {
	assert.Len(t, DecodeRGB565([]byte{0xff, 0xff, 0x12}, 2, 1), 3)
	assert.Empty(t, DecodeRGB565(nil, 4, 4))
	assert.Empty(t, EncodeRGB565([]byte{1, 2, 3}, 0, 0))
}

func TestFill565(t *testing.T) {
	out := Fill565(0xf800, 3, 2)
	require.Len(t, out, 12)
	for i := 0; i < len(out); i += 2 {
		assert.Equal(t, byte(0xf8), out[i])
		assert.Equal(t, byte(0x00), out[i+1])
	}
}

func TestRGB888_GenericImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	img.Set(1, 0, color.NRGBA{R: 40, G: 50, B: 60, A: 255})

	assert.Equal(t, []byte{10, 20, 30, 40, 50, 60}, RGB888(img))
}

func TestRGB888_SubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(2, 2, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	sub := img.SubImage(image.Rect(2, 2, 3, 3))
	assert.Equal(t, []byte{1, 2, 3}, RGB888(sub))
}

func TestToImage_FromImage(t *testing.T) {
	buf := Fill565(0x07e0, 4, 4)
	img := ToImage(buf, 4, 4)

	assert.Equal(t, color.RGBA{R: 0, G: 255, B: 0, A: 255}, img.RGBAAt(3, 3))
	assert.Equal(t, buf, FromImage(img))
}

func TestResize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))

	same := Resize(src, 10, 10)
	assert.Same(t, src, same.(*image.RGBA))

	scaled := Resize(src, 4, 3)
	assert.Equal(t, image.Rect(0, 0, 4, 3), scaled.Bounds())
}

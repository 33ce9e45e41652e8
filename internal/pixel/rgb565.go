// internal/pixel/rgb565.go
package pixel

// BytesPerPixel565 is the size of one packed RGB565 pixel
const BytesPerPixel565 = 2

// QuantizeChannel5 rounds an 8-bit channel to 5 bits
func QuantizeChannel5(v uint8) uint16 {
	return uint16(min(int(v)+4, 255) >> 3)
}

// QuantizeChannel6 rounds an 8-bit channel to 6 bits
func QuantizeChannel6(v uint8) uint16 {
	return uint16(min(int(v)+2, 255) >> 2)
}

// ExpandChannel5 widens a 5-bit channel to 8 bits by bit replication
func ExpandChannel5(v uint16) uint8 {
	v &= 0x1f
	return uint8(v<<3 | v>>2)
}

// ExpandChannel6 widens a 6-bit channel to 8 bits by bit replication
func ExpandChannel6(v uint16) uint8 {
	v &= 0x3f
	return uint8(v<<2 | v>>4)
}

// Pack565 packs one RGB888 pixel into its 16-bit RGB565 value
func Pack565(r, g, b uint8) uint16 {
	return QuantizeChannel5(r)<<11 | QuantizeChannel6(g)<<5 | QuantizeChannel5(b)
}

// Unpack565 splits a 16-bit RGB565 value back into 8-bit channels
func Unpack565(v uint16) (r, g, b uint8) {
	return ExpandChannel5(v >> 11), ExpandChannel6(v >> 5), ExpandChannel5(v)
}

// EncodeRGB565 converts a packed RGB888 buffer into big-endian RGB565.
// Only whole pixels covered by both the buffer and width*height are converted.
func EncodeRGB565(rgb888 []byte, width, height int) []byte {
	pixels := pixelCount(len(rgb888)/3, width, height)
	out := make([]byte, pixels*BytesPerPixel565)

	for i := 0; i < pixels; i++ {
		v := Pack565(rgb888[i*3], rgb888[i*3+1], rgb888[i*3+2])
		out[i*2] = byte(v >> 8)
		out[i*2+1] = byte(v)
	}
	return out
}

// DecodeRGB565 converts a big-endian RGB565 buffer back to packed RGB888
func DecodeRGB565(rgb565 []byte, width, height int) []byte {
	pixels := pixelCount(len(rgb565)/BytesPerPixel565, width, height)
	out := make([]byte, pixels*3)

	for i := 0; i < pixels; i++ {
		v := uint16(rgb565[i*2])<<8 | uint16(rgb565[i*2+1])
		out[i*3], out[i*3+1], out[i*3+2] = Unpack565(v)
	}
	return out
}

// Fill565 returns a width*height buffer of a single RGB565 color
func Fill565(color uint16, width, height int) []byte {
	n := pixelCount(width*height, width, height)
	out := make([]byte, n*BytesPerPixel565)
	for i := 0; i < n; i++ {
		out[i*2] = byte(color >> 8)
		out[i*2+1] = byte(color)
	}
	return out
}

func pixelCount(available, width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	return min(available, width*height)
}

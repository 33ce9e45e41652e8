// internal/pixel/image.go
package pixel

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// RGB888 flattens an image into packed row-major R,G,B bytes
func RGB888(img image.Image) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)

	if rgba, ok := img.(*image.RGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, y):rgba.PixOffset(b.Max.X, y)]
			for i := 0; i < len(row); i += 4 {
				out = append(out, row[i], row[i+1], row[i+2])
			}
		}
		return out
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			out = append(out, c.R, c.G, c.B)
		}
	}
	return out
}

// FromImage converts an image straight to big-endian RGB565
func FromImage(img image.Image) []byte {
	b := img.Bounds()
	return EncodeRGB565(RGB888(img), b.Dx(), b.Dy())
}

// ToImage expands an RGB565 buffer into an RGBA image
func ToImage(rgb565 []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	rgb := DecodeRGB565(rgb565, width, height)
	for i := 0; i < len(rgb)/3; i++ {
		img.Pix[i*4] = rgb[i*3]
		img.Pix[i*4+1] = rgb[i*3+1]
		img.Pix[i*4+2] = rgb[i*3+2]
		img.Pix[i*4+3] = 0xff
	}
	return img
}

// Resize scales src to exactly width x height. An image already at the
// target size is returned as is.
func Resize(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return src
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), src, b, draw.Src, nil)
	return out
}

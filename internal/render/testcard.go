// internal/render/testcard.go
package render

import (
	"image"
	"image/color"
	"image/draw"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	glyphWidth  = 7
	labelHeight = 12
)

// Bars are the test card's vertical color bars, left to right
var Bars = []color.RGBA{
	{R: 255, G: 255, B: 255, A: 255},
	{R: 255, G: 255, B: 0, A: 255},
	{R: 0, G: 255, B: 255, A: 255},
	{R: 0, G: 255, B: 0, A: 255},
	{R: 255, G: 0, B: 255, A: 255},
	{R: 255, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 255, A: 255},
	{R: 0, G: 0, B: 0, A: 255},
}

// TestCard draws color bars with a clock and optional caption lines
func TestCard(width, height int, now time.Time, lines ...string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	barWidth := max(width/len(Bars), 1)
	for i, c := range Bars {
		x0 := i * barWidth
		x1 := x0 + barWidth
		if i == len(Bars)-1 {
			x1 = width
		}
		draw.Draw(img, image.Rect(x0, 0, x1, height), image.NewUniform(c), image.Point{}, draw.Src)
	}

	AddLabel(img, 2, 2, now.Format("15:04:05"))
	for i, line := range lines {
		AddLabel(img, 2, 2+(i+1)*(labelHeight+2), line)
	}
	return img
}

// AddLabel writes white text on a black box with its top-left at x, y
func AddLabel(img *image.RGBA, x, y int, label string) {
	draw.Draw(img, image.Rect(x, y, x+len(label)*glyphWidth+3, y+labelHeight), &image.Uniform{C: color.RGBA{A: 255}}, image.Point{}, draw.Src)
	(&font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x+2, y+10),
	}).DrawString(label)
}

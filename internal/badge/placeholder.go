package badge

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

var (
	gradientTop    = color.NRGBA{R: 76, G: 29, B: 149, A: 255}
	gradientBottom = color.NRGBA{R: 37, G: 99, B: 235, A: 255}
)

// placeholder synthesizes an avatar for participants without an uploaded
// photo: their initials over a vertical gradient. Deterministic for a given
// name and size.
func (r *Renderer) placeholder(name string, size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	span := size - 1
	if span < 1 {
		span = 1
	}
	for y := 0; y < size; y++ {
		t := float64(y) / float64(span)
		c := color.NRGBA{
			R: lerp(gradientTop.R, gradientBottom.R, t),
			G: lerp(gradientTop.G, gradientBottom.G, t),
			B: lerp(gradientTop.B, gradientBottom.B, t),
			A: 255,
		}
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, c)
		}
	}

	text := initials(name)
	if text == "" {
		return img
	}
	face, err := newFace(r.bold, float64(size)*0.38)
	if err != nil {
		return img
	}
	defer face.Close()

	advance := font.MeasureString(face, text)
	metrics := face.Metrics()
	x := (size - advance.Ceil()) / 2
	y := (size + metrics.Ascent.Ceil() - metrics.Descent.Ceil()) / 2
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
	return img
}

// initials picks the first letters of the first two words of a name.
func initials(name string) string {
	var out []rune
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			out = append(out, []rune(strings.ToUpper(string(r)))...)
			break
		}
		if len(out) == 2 {
			break
		}
	}
	return string(out)
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

package svt

import (
	"image"

	"github.com/charmbracelet/x/mosaic"
)

// Preview renders img as unicode half blocks fitted inside size (columns
// by rows). It needs no graphics protocol, so it works as a fallback when
// the terminal does not speak the Kitty protocol.
func Preview(img image.Image, size image.Point, dither bool) string {
	w, h := previewSize(img.Bounds().Size(), size)
	if w == 0 || h == 0 {
		return ""
	}
	m := mosaic.New().Dither(dither).Width(w).Height(h)
	return m.Render(img)
}

// previewSize fits src into the box. Every cell shows two vertical pixels.
func previewSize(src, box image.Point) (int, int) {
	if src.X <= 0 || src.Y <= 0 || box.X <= 0 || box.Y <= 0 {
		return 0, 0
	}
	effH := float64(box.Y) * 2
	ratio := min(float64(box.X)/float64(src.X), effH/float64(src.Y))
	w := max(int(float64(src.X)*ratio), 1)
	h := max(int(float64(src.Y)*ratio/2), 1)
	return w, h
}

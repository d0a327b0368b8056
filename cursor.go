package svt

import (
	"image"
	"strings"
)

const cursorColor = "\x1b[36m"

type boxGlyphs struct {
	tl, tr, bl, br, h, v rune
}

var (
	roundedBox = boxGlyphs{'╭', '╮', '╰', '╯', '─', '│'}
	blankBox   = boxGlyphs{' ', ' ', ' ', ' ', ' ', ' '}
)

// tileCursorSeq draws (or blanks) a rounded border along the edge cells of
// tile idx inside canvas. It only writes text cells and leaves the image and
// its id alone.
func tileCursorSeq(g Grid, idx int, canvas image.Rectangle, draw bool) []byte {
	if g.Cols <= 0 || g.Rows <= 0 || idx < 0 || idx >= g.PerPage() {
		return nil
	}

	tile := TileCells(idx, g, canvas.Size()).Add(canvas.Min)
	if tile.Dx() < 2 || tile.Dy() < 2 {
		return nil
	}

	box := blankBox
	var b strings.Builder
	if draw {
		box = roundedBox
		b.WriteString(cursorColor)
	} else {
		b.WriteString("\x1b[0m")
	}

	left, right := tile.Min.X, tile.Max.X-1
	top, bottom := tile.Min.Y, tile.Max.Y-1

	put := func(x, y int, r rune) {
		b.WriteString(cursorTo(x, y))
		b.WriteRune(r)
	}

	for _, y := range []int{top, bottom} {
		l, r := box.tl, box.tr
		if y == bottom {
			l, r = box.bl, box.br
		}
		put(left, y, l)
		for x := left + 1; x < right; x++ {
			put(x, y, box.h)
		}
		put(right, y, r)
	}
	for y := top + 1; y < bottom; y++ {
		put(left, y, box.v)
		put(right, y, box.v)
	}

	b.WriteString("\x1b[0m")
	return []byte(b.String())
}

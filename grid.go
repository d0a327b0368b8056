package svt

import (
	"image"
	"math"
)

// FitMode selects how an image is scaled into the image area.
type FitMode int

const (
	// FitNormal shrinks images that overflow and leaves smaller ones alone.
	FitNormal FitMode = iota
	// FitFill scales every image up or down to the largest size that fits.
	FitFill
)

// Next toggles between FitNormal and FitFill.
func (m FitMode) Next() FitMode {
	if m == FitNormal {
		return FitFill
	}
	return FitNormal
}

func (m FitMode) String() string {
	if m == FitFill {
		return "fit"
	}
	return "normal"
}

// ViewMode selects between the single image view and the thumbnail grid.
type ViewMode int

const (
	ViewSingle ViewMode = iota
	ViewTile
)

func (v ViewMode) String() string {
	if v == ViewTile {
		return "tile"
	}
	return "single"
}

const (
	minTileWidth  = 16
	minTileHeight = 4
	minGridSide   = 2
	maxGridSide   = 6
)

// Grid is the number of tile columns and rows on one page.
type Grid struct {
	Cols, Rows int
}

// PerPage returns the number of tiles on a full page.
func (g Grid) PerPage() int {
	return g.Cols * g.Rows
}

// ImageArea is the terminal minus the one-row status line, in cells.
func ImageArea(term image.Point) image.Rectangle {
	h := max(term.Y-1, 0)
	return image.Rect(0, 0, max(term.X, 0), h)
}

// StatusRow returns the zero-based row index of the status line.
func StatusRow(term image.Point) int {
	return max(term.Y-1, 0)
}

// CalculateTileGrid picks a grid whose tiles are at least 16 cells wide and
// roughly square on screen, given the cell height/width ratio.
func CalculateTileGrid(term image.Point, cellAspect float64) Grid {
	area := ImageArea(term)
	if cellAspect <= 0 {
		cellAspect = DefaultCellAspectRatio
	}

	minH := max(int(math.Round(minTileWidth/cellAspect)), minTileHeight)

	cols := area.Dx() / minTileWidth
	rows := area.Dy() / minH

	return Grid{
		Cols: min(max(cols, minGridSide), maxGridSide),
		Rows: min(max(rows, minGridSide), maxGridSide),
	}
}

// TargetPixels is the pixel box an image may occupy inside area.
func TargetPixels(area image.Rectangle, cell image.Point) image.Point {
	return image.Pt(area.Dx()*cell.X, area.Dy()*cell.Y)
}

// ComputeTarget scales orig to fit inside bounds. FitNormal never enlarges.
// Both sides are floored and kept at least one pixel.
func ComputeTarget(orig, bounds image.Point, mode FitMode) image.Point {
	if orig.X <= 0 || orig.Y <= 0 {
		return image.Pt(1, 1)
	}
	if mode == FitNormal && orig.X <= bounds.X && orig.Y <= bounds.Y {
		return orig
	}

	scale := math.Min(float64(bounds.X)/float64(orig.X), float64(bounds.Y)/float64(orig.Y))
	return scalePoint(orig, scale)
}

// CapPixels shrinks target uniformly so that its area does not exceed
// maxPixels. A zero cap disables the limit.
func CapPixels(target image.Point, maxPixels int64) image.Point {
	total := int64(target.X) * int64(target.Y)
	if maxPixels <= 0 || total <= maxPixels {
		return target
	}
	return scalePoint(target, math.Sqrt(float64(maxPixels)/float64(total)))
}

func scalePoint(p image.Point, scale float64) image.Point {
	return image.Pt(
		max(int(math.Floor(float64(p.X)*scale)), 1),
		max(int(math.Floor(float64(p.Y)*scale)), 1),
	)
}

// PlacementArea converts a rendered pixel size to the cell rectangle it
// occupies within area. Single view centres it, tile view pins it to the
// top-left corner.
func PlacementArea(actual, cell image.Point, area image.Rectangle, view ViewMode) image.Rectangle {
	if cell.X <= 0 || cell.Y <= 0 || area.Empty() {
		return image.Rectangle{}
	}

	w := min(ceilDiv(actual.X, cell.X), area.Dx())
	h := min(ceilDiv(actual.Y, cell.Y), area.Dy())

	origin := area.Min
	if view == ViewSingle {
		origin = origin.Add(image.Pt((area.Dx()-w)/2, (area.Dy()-h)/2))
	}
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(w, h))}
}

// TileCells returns the cell rectangle of tile index i within a canvas of
// canvas cells. Tile edges land on whole cells so the cursor overlay and the
// composited thumbnails line up.
func TileCells(i int, g Grid, canvas image.Point) image.Rectangle {
	if g.Cols <= 0 || g.Rows <= 0 {
		return image.Rectangle{}
	}
	col, row := i%g.Cols, i/g.Cols
	return image.Rect(
		col*canvas.X/g.Cols,
		row*canvas.Y/g.Rows,
		(col+1)*canvas.X/g.Cols,
		(row+1)*canvas.Y/g.Rows,
	)
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

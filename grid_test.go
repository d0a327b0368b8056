package svt

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateTileGrid(t *testing.T) {
	tests := []struct {
		name   string
		term   image.Point
		aspect float64
		want   Grid
	}{
		{"large terminal clamps columns", image.Pt(120, 40), 2.0, Grid{Cols: 6, Rows: 4}},
		{"classic 80x24", image.Pt(80, 24), 2.0, Grid{Cols: 5, Rows: 2}},
		{"tiny terminal keeps minimum", image.Pt(20, 5), 2.0, Grid{Cols: 2, Rows: 2}},
		{"square cells", image.Pt(80, 40), 1.0, Grid{Cols: 5, Rows: 2}},
		{"invalid aspect uses default", image.Pt(80, 24), 0, Grid{Cols: 5, Rows: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateTileGrid(tt.term, tt.aspect))
		})
	}
}

func TestComputeTarget(t *testing.T) {
	tests := []struct {
		name   string
		orig   image.Point
		bounds image.Point
		mode   FitMode
		want   image.Point
	}{
		{"normal keeps small images", image.Pt(100, 50), image.Pt(200, 200), FitNormal, image.Pt(100, 50)},
		{"fill enlarges", image.Pt(100, 50), image.Pt(200, 200), FitFill, image.Pt(200, 100)},
		{"normal shrinks wide image", image.Pt(400, 100), image.Pt(200, 200), FitNormal, image.Pt(200, 50)},
		{"limited by height", image.Pt(400, 400), image.Pt(100, 50), FitNormal, image.Pt(50, 50)},
		{"never below one pixel", image.Pt(1024, 1), image.Pt(8, 8), FitNormal, image.Pt(8, 1)},
		{"degenerate source", image.Pt(0, 10), image.Pt(10, 10), FitNormal, image.Pt(1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeTarget(tt.orig, tt.bounds, tt.mode))
		})
	}
}

func TestCapPixels(t *testing.T) {
	assert.Equal(t, image.Pt(1000, 500), CapPixels(image.Pt(2000, 1000), 500_000))
	assert.Equal(t, image.Pt(100, 100), CapPixels(image.Pt(100, 100), 0))
	assert.Equal(t, image.Pt(100, 100), CapPixels(image.Pt(100, 100), 10_000))

	got := CapPixels(image.Pt(1920, 1080), 1_500_000)
	assert.LessOrEqual(t, int64(got.X)*int64(got.Y), int64(1_500_000))
}

func TestPlacementArea(t *testing.T) {
	cell := image.Pt(10, 20)
	area := image.Rect(0, 0, 20, 10)

	assert.Equal(t, image.Rect(5, 3, 15, 6), PlacementArea(image.Pt(100, 50), cell, area, ViewSingle))
	assert.Equal(t, image.Rect(0, 0, 10, 3), PlacementArea(image.Pt(100, 50), cell, area, ViewTile))
	assert.Equal(t, area, PlacementArea(image.Pt(1000, 1000), cell, area, ViewSingle))
	assert.Equal(t, image.Rectangle{}, PlacementArea(image.Pt(100, 50), image.Point{}, area, ViewSingle))
}

func TestTileCells(t *testing.T) {
	g := Grid{Cols: 3, Rows: 2}
	canvas := image.Pt(30, 20)

	assert.Equal(t, image.Rect(0, 0, 10, 10), TileCells(0, g, canvas))
	assert.Equal(t, image.Rect(20, 10, 30, 20), TileCells(5, g, canvas))
	assert.Equal(t, image.Rectangle{}, TileCells(0, Grid{}, canvas))
}

func TestImageArea(t *testing.T) {
	assert.Equal(t, image.Rect(0, 0, 80, 23), ImageArea(image.Pt(80, 24)))
	assert.Equal(t, 23, StatusRow(image.Pt(80, 24)))
	assert.True(t, ImageArea(image.Pt(80, 1)).Empty())
	assert.Equal(t, image.Pt(800, 460), TargetPixels(ImageArea(image.Pt(80, 24)), image.Pt(10, 20)))
}

func TestModes(t *testing.T) {
	assert.Equal(t, FitFill, FitNormal.Next())
	assert.Equal(t, FitNormal, FitFill.Next())
	assert.Equal(t, "fit", FitFill.String())
	assert.Equal(t, "tile", ViewTile.String())
}

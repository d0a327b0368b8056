package svt

import (
	"errors"
	"fmt"
	"image"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// DefaultCellSize is assumed when the terminal does not report one.
var DefaultCellSize = image.Pt(8, 16)

// DefaultTileThreads bounds concurrent thumbnail decodes.
const DefaultTileThreads = 4

type tileSlot struct {
	path  string
	inner image.Rectangle // canvas pixels available to the thumbnail
	thumb image.Image
}

// tileLayout computes the inner box of every tile on a page. Each tile keeps
// one cell of padding on every side for the cursor border.
func tileLayout(paths []string, g Grid, canvas, cell image.Point) []tileSlot {
	cells := image.Pt(canvas.X/cell.X, canvas.Y/cell.Y)
	n := min(len(paths), g.PerPage())

	slots := make([]tileSlot, 0, n)
	for i := range n {
		tc := TileCells(i, g, cells)
		px := image.Rect(tc.Min.X*cell.X, tc.Min.Y*cell.Y, tc.Max.X*cell.X, tc.Max.Y*cell.Y)
		inner := image.Rectangle{Min: px.Min.Add(cell), Max: px.Max.Sub(cell)}
		if inner.Dx() <= 0 || inner.Dy() <= 0 {
			continue
		}
		slots = append(slots, tileSlot{path: paths[i], inner: inner})
	}
	return slots
}

// renderTilePage composites the page's thumbnails onto one transparent
// canvas and encodes it as a single frame.
func (r *renderer) renderTilePage(req Request) (*Payload, stageTimes, error) {
	var times stageTimes

	if len(req.Tiles) == 0 || req.Grid.PerPage() == 0 {
		return nil, times, errors.New("empty tile page")
	}
	cell := req.Cell
	if cell.X <= 0 || cell.Y <= 0 {
		cell = DefaultCellSize
	}

	canvasSize := req.Target
	slots := tileLayout(req.Tiles, req.Grid, canvasSize, cell)

	start := time.Now()
	g := new(errgroup.Group)
	g.SetLimit(max(r.tileThreads, 1))
	for i := range slots {
		slot := &slots[i]
		box := slot.inner.Size()
		if !req.Fresh {
			if thumb, ok := r.thumbs.Get(slot.path, box); ok {
				slot.thumb = thumb
				continue
			}
		}
		g.Go(func() error {
			src, err := DecodeFile(slot.path)
			if err != nil {
				if r.trace != nil {
					r.trace.WithError(err).WithField("path", slot.path).Warn("tile decode failed")
				}
				return nil
			}
			slot.thumb = Thumbnail(src, box, req.TileFilter)
			r.thumbs.Set(slot.path, box, slot.thumb)
			return nil
		})
	}
	_ = g.Wait()
	times.decode = time.Since(start)

	start = time.Now()
	canvas := image.NewNRGBA(image.Rectangle{Max: canvasSize})
	bounds := canvas.Bounds()
	for _, slot := range slots {
		if slot.thumb == nil {
			continue
		}
		size := slot.thumb.Bounds().Size()
		at := slot.inner.Min.Add(slot.inner.Size().Sub(size).Div(2))
		dst := image.Rectangle{Min: at, Max: at.Add(size)}
		if !dst.In(bounds) {
			continue
		}
		draw.Draw(canvas, dst, slot.thumb, slot.thumb.Bounds().Min, draw.Over)
	}
	times.resize = time.Since(start)

	start = time.Now()
	chunks, err := EncodeTransmit(canvas, req.ID, req.Encode)
	if err != nil {
		return nil, times, fmt.Errorf("failed to encode tile page: %w", err)
	}
	times.encode = time.Since(start)

	return &Payload{
		Chunks: chunks,
		ID:     req.ID,
		Size:   canvasSize,
		Source: canvasSize,
		Epoch:  req.Epoch,
	}, times, nil
}

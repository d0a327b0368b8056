package svt

import (
	"fmt"
	"image"
	"time"

	"github.com/apex/log"
)

// Request asks the capture pipeline for one encoded frame. It is not
// modified after it has been sent.
type Request struct {
	Path   string      // image path, or a tile page path in tile view
	Epoch  uint64      // epoch active when the request was made
	Target image.Point // pixel box to fit into
	Fit    FitMode
	View   ViewMode

	Filter     Filter
	TileFilter Filter
	Tiles      []string    // paths on the page, tile view only
	Grid       Grid        // tile view only
	Cell       image.Point // cell size in pixels

	MaxPixels int64 // pixel cap for FitNormal, zero disables
	ID        ProtocolID
	Encode    TransmitOptions

	Fresh bool // bypass decoded-image and thumbnail caches
}

// Key returns the render cache key this request fills.
func (r Request) Key() CacheKey {
	return CacheKey{Path: r.Path, Target: r.Target, Fit: r.Fit, View: r.View}
}

// Result is the reply to a Request. Exactly one of Payload and Err is set.
type Result struct {
	Key     CacheKey
	Epoch   uint64
	Payload *Payload
	Err     error
}

type stageTimes struct {
	decode, resize, encode time.Duration
}

// decodeFunc loads the source of a single-view request.
type decodeFunc func(path string, fresh bool) (image.Image, error)

// renderer runs the decode, resize and encode stages. The worker and the
// prefetcher each own one.
type renderer struct {
	decode      decodeFunc
	thumbs      *ThumbCache
	tileThreads int
	trace       log.Interface // nil disables stage tracing
}

func (r *renderer) render(req Request) Result {
	res := Result{Key: req.Key(), Epoch: req.Epoch}

	var (
		payload *Payload
		times   stageTimes
		err     error
	)
	if req.View == ViewTile {
		payload, times, err = r.renderTilePage(req)
	} else {
		payload, times, err = r.renderSingle(req)
	}
	if err != nil {
		res.Err = err
		return res
	}

	if r.trace != nil {
		r.trace.WithFields(log.Fields{
			"path":   req.Path,
			"decode": times.decode,
			"resize": times.resize,
			"encode": times.encode,
			"orig":   fmt.Sprintf("%dx%d", payload.Source.X, payload.Source.Y),
			"target": fmt.Sprintf("%dx%d", req.Target.X, req.Target.Y),
			"actual": fmt.Sprintf("%dx%d", payload.Size.X, payload.Size.Y),
			"id":     req.ID,
		}).Info("render")
	}

	res.Payload = payload
	return res
}

func (r *renderer) renderSingle(req Request) (*Payload, stageTimes, error) {
	var times stageTimes

	start := time.Now()
	src, err := r.decode(req.Path, req.Fresh)
	if err != nil {
		return nil, times, err
	}
	times.decode = time.Since(start)

	orig := src.Bounds().Size()
	target := ComputeTarget(orig, req.Target, req.Fit)
	if req.Fit == FitNormal {
		target = CapPixels(target, req.MaxPixels)
	}

	start = time.Now()
	frame := ResizeImage(src, target, req.Filter)
	times.resize = time.Since(start)

	start = time.Now()
	chunks, err := EncodeTransmit(frame, req.ID, req.Encode)
	if err != nil {
		return nil, times, fmt.Errorf("failed to encode %s: %w", req.Path, err)
	}
	times.encode = time.Since(start)

	return &Payload{
		Chunks: chunks,
		ID:     req.ID,
		Size:   frame.Bounds().Size(),
		Source: orig,
		Epoch:  req.Epoch,
	}, times, nil
}

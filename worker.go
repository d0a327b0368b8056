package svt

import (
	"image"
	"sync"

	"github.com/apex/log"
)

// WorkerOptions configures the capture worker.
type WorkerOptions struct {
	TileThreads int
	Thumbs      *ThumbCache   // shared with the prefetcher; created if nil
	Trace       log.Interface // stage timing trace, nil disables
	Logger      log.Interface
}

// Worker renders requests one at a time on a background goroutine. Only the
// newest pending request is kept: scheduling replaces a request that has
// not started yet, while a request already being rendered always finishes.
type Worker struct {
	reqCh  chan Request
	resCh  chan Result
	stopCh chan struct{}
	wg     sync.WaitGroup
	log    log.Interface

	r renderer

	// single-entry decoded image cache, touched only by loop
	lastPath  string
	lastImage image.Image
}

// NewWorker starts the capture worker.
func NewWorker(opts WorkerOptions) *Worker {
	if opts.Thumbs == nil {
		opts.Thumbs = NewThumbCache(DefaultThumbCacheSize)
	}
	if opts.TileThreads <= 0 {
		opts.TileThreads = DefaultTileThreads
	}
	if opts.Logger == nil {
		opts.Logger = log.Log
	}

	w := &Worker{
		reqCh:  make(chan Request, 1),
		resCh:  make(chan Result, 8),
		stopCh: make(chan struct{}),
		log:    opts.Logger,
	}
	w.r = renderer{
		decode:      w.decodeCached,
		thumbs:      opts.Thumbs,
		tileThreads: opts.TileThreads,
		trace:       opts.Trace,
	}

	w.wg.Add(1)
	go w.loop()
	return w
}

// Schedule enqueues req, replacing any request that is still waiting.
func (w *Worker) Schedule(req Request) {
	for {
		select {
		case w.reqCh <- req:
			return
		default:
		}
		select {
		case old := <-w.reqCh:
			w.log.WithFields(log.Fields{"path": old.Path, "epoch": old.Epoch}).Debug("superseded request dropped")
		default:
		}
	}
}

// Results delivers finished renders in completion order.
func (w *Worker) Results() <-chan Result {
	return w.resCh
}

// Thumbs exposes the thumbnail cache so reloads can invalidate it.
func (w *Worker) Thumbs() *ThumbCache {
	return w.r.thumbs
}

// Close stops the worker once the render in progress has finished.
func (w *Worker) Close() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Worker) loop() {
	defer w.wg.Done()

	for {
		select {
		case req := <-w.reqCh:
			res := w.r.render(req)
			if res.Err != nil {
				w.log.WithError(res.Err).WithField("path", req.Path).Debug("render failed")
			}
			select {
			case w.resCh <- res:
			case <-w.stopCh:
				return
			}
		case <-w.stopCh:
			return
		}
	}
}

func (w *Worker) decodeCached(path string, fresh bool) (image.Image, error) {
	if !fresh && path == w.lastPath && w.lastImage != nil {
		return w.lastImage, nil
	}
	img, err := DecodeFile(path)
	if err != nil {
		w.lastPath, w.lastImage = "", nil
		return nil, err
	}
	w.lastPath, w.lastImage = path, img
	return img, nil
}

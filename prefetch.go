package svt

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"
)

// DefaultPrefetchCount is how many neighbours on each side are pre-rendered.
const DefaultPrefetchCount = 5

// DefaultPrefetchThreads bounds concurrent prefetch renders.
const DefaultPrefetchThreads = 2

type prefetchBatch struct {
	gen  uint64
	reqs []Request
}

// Prefetcher renders neighbouring frames in the background so navigation
// usually lands on a cache hit. Cancel invalidates every batch submitted
// before it; renders already running finish but their results are dropped.
type Prefetcher struct {
	cmdCh  chan prefetchBatch
	resCh  chan Result
	stopCh chan struct{}
	wg     sync.WaitGroup
	gen    atomic.Uint64

	threads int
	r       renderer
	log     log.Interface
}

// NewPrefetcher starts the prefetch coordinator. thumbs may be shared with
// the capture worker.
func NewPrefetcher(threads int, thumbs *ThumbCache, logger log.Interface) *Prefetcher {
	if threads <= 0 {
		threads = DefaultPrefetchThreads
	}
	if thumbs == nil {
		thumbs = NewThumbCache(DefaultThumbCacheSize)
	}
	if logger == nil {
		logger = log.Log
	}

	p := &Prefetcher{
		cmdCh:   make(chan prefetchBatch, 1),
		resCh:   make(chan Result, 32),
		stopCh:  make(chan struct{}),
		threads: threads,
		log:     logger,
		r: renderer{
			decode:      func(path string, _ bool) (image.Image, error) { return DecodeFile(path) },
			thumbs:      thumbs,
			tileThreads: 1,
		},
	}

	p.wg.Add(1)
	go p.loop()
	return p
}

// Submit queues reqs under the current generation. It never blocks: a batch
// still waiting behind a running one is replaced.
func (p *Prefetcher) Submit(reqs []Request) {
	if len(reqs) == 0 {
		return
	}
	b := prefetchBatch{gen: p.gen.Load(), reqs: reqs}
	for {
		select {
		case p.cmdCh <- b:
			return
		default:
		}
		select {
		case old := <-p.cmdCh:
			p.log.WithField("requests", len(old.reqs)).Debug("queued prefetch batch replaced")
		default:
		}
	}
}

// Cancel invalidates every batch submitted so far.
func (p *Prefetcher) Cancel() {
	p.gen.Add(1)
}

// Results delivers renders from the current generation.
func (p *Prefetcher) Results() <-chan Result {
	return p.resCh
}

// Close stops the coordinator after in-flight renders complete.
func (p *Prefetcher) Close() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Prefetcher) loop() {
	defer p.wg.Done()

	for {
		select {
		case b := <-p.cmdCh:
			p.run(b)
		case <-p.stopCh:
			return
		}
	}
}

func (p *Prefetcher) run(b prefetchBatch) {
	if b.gen != p.gen.Load() {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(p.threads)
	for _, req := range b.reqs {
		g.Go(func() error {
			if b.gen != p.gen.Load() {
				return nil
			}
			res := p.r.render(req)
			if res.Err != nil {
				p.log.WithError(res.Err).WithField("path", req.Path).Debug("prefetch failed")
				return nil
			}
			if b.gen != p.gen.Load() {
				return nil
			}
			select {
			case p.resCh <- res:
			case <-p.stopCh:
			}
			return nil
		})
	}
	_ = g.Wait()
}

// NeighbourOrder returns the indices around current in the order they should
// be prefetched: +1, -1, +2, -2 and so on, wrapping at both ends. current
// itself and repeats are left out.
func NeighbourOrder(current, n, count int) []int {
	if n <= 1 || count <= 0 {
		return nil
	}
	seen := map[int]bool{current: true}
	out := make([]int, 0, count*2)
	for i := 1; i <= count; i++ {
		for _, idx := range []int{(current + i) % n, ((current-i)%n + n) % n} {
			if !seen[idx] {
				seen[idx] = true
				out = append(out, idx)
			}
		}
	}
	return out
}

// AdjacentPages returns the pages around page in prefetch order without
// wrapping past the first or last page.
func AdjacentPages(page, total, count int) []int {
	if total <= 1 || count <= 0 {
		return nil
	}
	out := make([]int, 0, count*2)
	for i := 1; i <= count; i++ {
		if page+i < total {
			out = append(out, page+i)
		}
		if page-i >= 0 {
			out = append(out, page-i)
		}
	}
	return out
}

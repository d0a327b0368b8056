package svt

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/apex/log"
)

// ErrNoImages is returned when there is nothing to show.
var ErrNoImages = errors.New("no images to display")

// NoticeDuration is how long a temporary status message stays up.
const NoticeDuration = 1500 * time.Millisecond

const (
	sepThin   = "\ue0b1"
	iconImage = "\ue60d"
)

// Output accepts writer tasks and reports their completion.
type Output interface {
	Send(Task) error
	Results() <-chan WriterResult
}

// Capture renders requests asynchronously.
type Capture interface {
	Schedule(Request)
	Results() <-chan Result
	Thumbs() *ThumbCache
}

// Prefetch renders neighbours in the background.
type Prefetch interface {
	Submit([]Request)
	Cancel()
	Results() <-chan Result
}

// Terminal describes the screen the viewer draws on.
type Terminal struct {
	Size image.Point // columns and rows
	Cell image.Point // pixels per cell
	Tmux bool
}

// AppOptions wires an App. Prefetch may be nil.
type AppOptions struct {
	Images   []string
	Config   Config
	Terminal Terminal
	ID       ProtocolID
	Output   Output
	Capture  Capture
	Prefetch Prefetch
	Logger   log.Interface
}

type prefetchSignature struct {
	view   ViewMode
	fit    FitMode
	target image.Point
	count  int
	anchor int
	grid   Grid
}

// App is the orchestrator. It owns navigation state, the render cache and
// the epoch, and is driven entirely from Run's goroutine.
type App struct {
	images []string
	cfg    Config
	term   Terminal
	id     ProtocolID
	log    log.Interface

	out      Output
	capture  Capture
	prefetch Prefetch

	cache *RenderCache
	latch *NavLatch
	epoch uint64

	index      int
	fit        FitMode
	view       ViewMode
	tileCursor int
	prevCursor int // -1 when no cursor is drawn

	transmitting  bool
	inflightKey   CacheKey
	inflightEpoch uint64
	displayed     CacheKey
	hasDisplayed  bool
	lastArea      image.Rectangle
	wantRender    bool
	pending       *CacheKey
	freshKey      *CacheKey
	failed        map[CacheKey]error

	prefetchSig *prefetchSignature

	notice      string
	noticeInd   Indicator
	noticeTimer *time.Timer
	lastStatus  StatusTask

	quit bool
}

// NewApp validates opts and builds an App ready to Run.
func NewApp(opts AppOptions) (*App, error) {
	if len(opts.Images) == 0 {
		return nil, ErrNoImages
	}
	if opts.Output == nil || opts.Capture == nil {
		return nil, errors.New("app needs an output and a capture worker")
	}
	if opts.Terminal.Cell.X <= 0 || opts.Terminal.Cell.Y <= 0 {
		opts.Terminal.Cell = DefaultCellSize
	}
	if opts.Logger == nil {
		opts.Logger = log.Log
	}

	return &App{
		images:     opts.Images,
		cfg:        opts.Config,
		term:       opts.Terminal,
		id:         opts.ID,
		log:        opts.Logger,
		out:        opts.Output,
		capture:    opts.Capture,
		prefetch:   opts.Prefetch,
		cache:      NewRenderCache(opts.Config.RenderCacheSize),
		latch:      NewNavLatch(opts.Config.NavLatch()),
		prevCursor: -1,
		failed:     make(map[CacheKey]error),
	}, nil
}

// Run drives the viewer until the user quits, actions is closed, ctx is
// done or the output fails.
func (a *App) Run(ctx context.Context, actions <-chan Action) error {
	a.send(ClearAllTask{Tmux: a.term.Tmux})
	a.updateStatus()
	a.render()

	var prefetchResults <-chan Result
	if a.prefetch != nil {
		prefetchResults = a.prefetch.Results()
	}

	for !a.quit {
		var noticeC <-chan time.Time
		if a.noticeTimer != nil {
			noticeC = a.noticeTimer.C
		}

		select {
		case act, ok := <-actions:
			if !ok {
				a.quit = true
				break
			}
			a.handleAction(act)
		case res := <-a.capture.Results():
			a.handleResult(res)
		case res := <-prefetchResults:
			a.handlePrefetch(res)
		case wr := <-a.out.Results():
			if err := a.handleWriterResult(wr); err != nil {
				return err
			}
		case gen := <-a.latch.C:
			a.onLatch(gen)
		case <-noticeC:
			a.noticeTimer = nil
			a.notice = ""
			a.updateStatus()
		case <-ctx.Done():
			a.shutdown()
			return ctx.Err()
		}
	}

	a.shutdown()
	return nil
}

func (a *App) shutdown() {
	a.latch.Cancel()
	if a.prefetch != nil {
		a.prefetch.Cancel()
	}
	a.send(ClearAllTask{Area: a.lastArea, Tmux: a.term.Tmux})
}

func (a *App) send(t Task) {
	if err := a.out.Send(t); err != nil {
		a.log.WithError(err).Debug("writer rejected task")
	}
}

// Epoch returns the current epoch.
func (a *App) Epoch() uint64 {
	return a.epoch
}

func (a *App) handleAction(act Action) {
	n := act.N()
	switch act.Kind {
	case ActionQuit:
		a.quit = true
	case ActionDown, ActionRight:
		a.step(act.Kind, n)
	case ActionUp, ActionLeft:
		a.step(act.Kind, -n)
	case ActionPageNext, ActionPagePrev:
		if act.Kind == ActionPagePrev {
			n = -n
		}
		if a.view == ViewTile {
			if a.MoveTilePage(n) {
				a.navigate()
			}
		} else {
			a.MoveBy(n)
			a.navigate()
		}
	case ActionSelect:
		if a.view == ViewTile {
			a.SelectTile()
			a.navigate()
		}
	case ActionFirst, ActionLast:
		target := 0
		if act.Kind == ActionLast {
			target = len(a.images) - 1
		}
		if act.Count > 0 {
			target = act.Count - 1
		}
		a.GoTo(target)
		a.navigate()
	case ActionToggleFit:
		a.fit = a.fit.Next()
		a.navigate()
	case ActionToggleView:
		a.ToggleView()
		a.navigate()
	case ActionReload:
		a.reload()
	case ActionCopyPath:
		a.copyPath()
	case ActionCopyImage:
		a.copyImage()
	case ActionResize:
		a.resize(act.Size)
	case ActionFileChanged:
		if a.isVisible(act.Path) {
			a.reload()
		}
	}
}

// step handles the lowercase motions. In tile view j/k move by whole rows
// and only a page change triggers a new render.
func (a *App) step(kind ActionKind, delta int) {
	if a.view == ViewSingle {
		a.MoveBy(delta)
		a.navigate()
		return
	}

	var changed bool
	if kind == ActionDown || kind == ActionUp {
		changed = a.MoveTileCursorRow(delta)
	} else {
		changed = a.MoveTileCursor(delta)
	}
	if changed {
		a.navigate()
		return
	}
	a.drawTileCursor()
	a.updateStatus()
}

// navigate starts a new epoch and restarts the latch. Queued image output
// is cancelled unless a transmission is on the wire, which must finish.
func (a *App) navigate() {
	a.epoch++
	a.pending = nil
	a.prefetchSig = nil
	if a.prefetch != nil {
		a.prefetch.Cancel()
	}
	if !a.transmitting {
		a.send(CancelImageTask{Epoch: a.epoch})
	}
	a.latch.Trigger()
	a.updateStatus()
}

func (a *App) onLatch(gen uint64) {
	if !a.latch.Current(gen) {
		return
	}
	a.render()
}

// MoveBy moves the single-view selection by delta, wrapping at both ends.
func (a *App) MoveBy(delta int) {
	n := len(a.images)
	a.index = ((a.index+delta)%n + n) % n
}

// GoTo selects index i, clamped to the list, in both views.
func (a *App) GoTo(i int) {
	i = min(max(i, 0), len(a.images)-1)
	a.index = i
	a.tileCursor = i
	a.prevCursor = -1
}

// ToggleView switches between single and tile view, carrying the selection.
func (a *App) ToggleView() {
	if a.view == ViewSingle {
		a.view = ViewTile
		a.tileCursor = a.index
	} else {
		a.index = a.tileCursor
		a.view = ViewSingle
	}
	a.prevCursor = -1
}

// SelectTile opens the tile under the cursor in single view.
func (a *App) SelectTile() {
	a.index = min(a.tileCursor, len(a.images)-1)
	a.view = ViewSingle
	a.prevCursor = -1
}

// MoveTileCursor moves the tile cursor by delta with wrap-around and
// reports whether it landed on another page.
func (a *App) MoveTileCursor(delta int) bool {
	per := a.grid().PerPage()
	if per == 0 {
		return false
	}
	n := len(a.images)
	oldPage := a.tileCursor / per
	a.prevCursor = a.tileCursor
	a.tileCursor = ((a.tileCursor+delta)%n + n) % n
	return a.tileCursor/per != oldPage
}

// MoveTileCursorRow moves the cursor by delta whole rows.
func (a *App) MoveTileCursorRow(delta int) bool {
	return a.MoveTileCursor(delta * a.grid().Cols)
}

// MoveTilePage jumps delta pages without wrapping and puts the cursor on the
// first tile. It reports whether the page changed.
func (a *App) MoveTilePage(delta int) bool {
	per := a.grid().PerPage()
	if per == 0 {
		return false
	}
	page := a.tileCursor / per
	last := (len(a.images) - 1) / per
	next := min(max(page+delta, 0), last)
	if next == page {
		return false
	}
	a.prevCursor = a.tileCursor
	a.tileCursor = next * per
	return true
}

func (a *App) grid() Grid {
	return CalculateTileGrid(a.term.Size, a.cfg.CellAspectRatio)
}

func (a *App) imageArea() image.Rectangle {
	return ImageArea(a.term.Size)
}

func (a *App) target() image.Point {
	return TargetPixels(a.imageArea(), a.term.Cell)
}

func (a *App) pageStart() int {
	per := a.grid().PerPage()
	return a.tileCursor / per * per
}

func (a *App) pageTiles(start int) []string {
	end := min(start+a.grid().PerPage(), len(a.images))
	return a.images[start:end]
}

// currentKey is the cache key of what should be on screen now. It never
// depends on the tile cursor position within a page.
func (a *App) currentKey() CacheKey {
	if a.view == ViewTile {
		return CacheKey{Path: TilePagePath(a.pageStart()), Target: a.target(), Fit: a.fit, View: ViewTile}
	}
	return CacheKey{Path: a.images[a.index], Target: a.target(), Fit: a.fit, View: ViewSingle}
}

func (a *App) request(key CacheKey) Request {
	req := Request{
		Path:       key.Path,
		Epoch:      a.epoch,
		Target:     key.Target,
		Fit:        key.Fit,
		View:       key.View,
		Filter:     ParseFilter(a.cfg.ResizeFilter),
		TileFilter: ParseFilter(a.cfg.TileFilter),
		Cell:       a.term.Cell,
		ID:         a.id,
		Encode:     a.cfg.TransmitOptions(a.term.Tmux),
	}
	if a.term.Tmux {
		req.MaxPixels = a.cfg.TmuxKittyMaxPixels
	}
	if key.View == ViewTile {
		req.Grid = a.grid()
	}
	return req
}

func (a *App) tileRequest(key CacheKey, start int) Request {
	req := a.request(key)
	req.Tiles = a.pageTiles(start)
	return req
}

// render shows the current key: from the cache when possible, otherwise
// by asking the capture worker.
func (a *App) render() {
	if a.imageArea().Empty() {
		return
	}
	key := a.currentKey()

	if a.showing(key) {
		if !a.transmitting {
			a.afterDisplay()
		}
		return
	}

	if p, ok := a.cache.Get(key); ok {
		a.transmit(key, p)
		return
	}

	if err, ok := a.failed[key]; ok {
		a.setError(err)
		return
	}
	if a.pending != nil && *a.pending == key {
		return
	}

	var req Request
	if key.View == ViewTile {
		req = a.tileRequest(key, a.pageStart())
	} else {
		req = a.request(key)
	}
	if a.freshKey != nil && *a.freshKey == key {
		req.Fresh = true
		a.freshKey = nil
	}
	a.pending = &key
	a.capture.Schedule(req)
	a.updateStatus()
}

// showing reports whether key is on screen or on its way there.
func (a *App) showing(key CacheKey) bool {
	if a.transmitting {
		return a.inflightKey == key
	}
	return a.hasDisplayed && a.displayed == key
}

func (a *App) transmit(key CacheKey, p *Payload) {
	if a.transmitting {
		a.wantRender = true
		return
	}
	area := PlacementArea(p.Size, a.term.Cell, a.imageArea(), key.View)
	a.send(TransmitTask{
		Payload: p,
		Area:    area,
		OldArea: a.lastArea,
		Epoch:   a.epoch,
		Tmux:    a.term.Tmux,
	})
	a.transmitting = true
	a.inflightKey = key
	a.inflightEpoch = a.epoch
	a.updateStatus()
}

func (a *App) handleResult(res Result) {
	if res.Epoch != a.epoch {
		a.log.WithFields(log.Fields{"path": res.Key.Path, "epoch": res.Epoch, "current": a.epoch}).Debug("stale result dropped")
		return
	}
	if a.pending != nil && *a.pending == res.Key {
		a.pending = nil
	}

	if res.Err != nil {
		a.failed[res.Key] = res.Err
		if res.Key == a.currentKey() {
			a.setError(res.Err)
		}
		return
	}

	delete(a.failed, res.Key)
	a.cache.Put(res.Key, res.Payload)
	if res.Key == a.currentKey() && !a.showing(res.Key) {
		a.transmit(res.Key, res.Payload)
	}
}

func (a *App) handlePrefetch(res Result) {
	if res.Err != nil || res.Epoch != a.epoch || a.cache.Contains(res.Key) {
		return
	}
	a.cache.Put(res.Key, res.Payload)
	if a.pending != nil && *a.pending == res.Key && !a.showing(res.Key) {
		a.pending = nil
		a.transmit(res.Key, res.Payload)
	}
}

func (a *App) handleWriterResult(r WriterResult) error {
	switch r.Kind {
	case WriteFailed:
		return fmt.Errorf("terminal output failed: %w", r.Err)
	case CopyImageDone:
		if r.Err != nil {
			a.showNotice("Failed to copy image: "+r.Err.Error(), IndicatorBusy)
		} else {
			a.showNotice("Copied image to clipboard", IndicatorReady)
		}
	case TransmitDone:
		if !a.transmitting || r.Epoch != a.inflightEpoch {
			return nil
		}
		a.transmitting = false
		a.displayed = a.inflightKey
		a.hasDisplayed = true
		a.lastArea = r.Area

		// placement overwrote any cursor drawn in the area
		a.prevCursor = -1

		if a.wantRender {
			a.wantRender = false
			a.render()
			a.updateStatus()
			return nil
		}
		if a.displayed != a.currentKey() {
			// the latch or an outstanding render will catch up
			a.updateStatus()
			return nil
		}
		a.afterDisplay()
	}
	return nil
}

// afterDisplay runs once the current key is fully on screen.
func (a *App) afterDisplay() {
	if a.view == ViewTile {
		a.drawTileCursor()
	}
	a.updateStatus()
	a.prefetchNeighbours()
}

func (a *App) drawTileCursor() {
	g := a.grid()
	per := g.PerPage()
	if per == 0 || a.view != ViewTile {
		return
	}
	prev := -1
	if a.prevCursor >= 0 && a.prevCursor/per == a.tileCursor/per {
		prev = a.prevCursor % per
	}
	a.send(TileCursorTask{
		Grid:   g,
		Cursor: a.tileCursor % per,
		Prev:   prev,
		Canvas: a.imageArea(),
	})
	a.prevCursor = a.tileCursor
}

func (a *App) prefetchNeighbours() {
	if a.prefetch == nil || a.cfg.PrefetchCount <= 0 {
		return
	}

	sig := prefetchSignature{
		view:   a.view,
		fit:    a.fit,
		target: a.target(),
		count:  a.cfg.PrefetchCount,
	}

	var reqs []Request
	if a.view == ViewSingle {
		sig.anchor = a.index
		if a.prefetchSig != nil && *a.prefetchSig == sig {
			return
		}
		for _, i := range NeighbourOrder(a.index, len(a.images), a.cfg.PrefetchCount) {
			key := CacheKey{Path: a.images[i], Target: sig.target, Fit: a.fit, View: ViewSingle}
			if !a.cache.Contains(key) {
				reqs = append(reqs, a.request(key))
			}
		}
	} else {
		g := a.grid()
		per := g.PerPage()
		total := (len(a.images) + per - 1) / per
		sig.anchor = a.tileCursor / per
		sig.grid = g
		if a.prefetchSig != nil && *a.prefetchSig == sig {
			return
		}
		for _, page := range AdjacentPages(sig.anchor, total, a.cfg.PrefetchCount) {
			start := page * per
			key := CacheKey{Path: TilePagePath(start), Target: sig.target, Fit: a.fit, View: ViewTile}
			if !a.cache.Contains(key) {
				reqs = append(reqs, a.tileRequest(key, start))
			}
		}
	}

	a.prefetchSig = &sig
	a.prefetch.Submit(reqs)
}

// reload forgets the rendered frames of the current selection and renders
// it again from disk.
func (a *App) reload() {
	key := a.currentKey()
	if a.view == ViewTile {
		a.cache.Remove(key)
		a.capture.Thumbs().Forget(a.pageTiles(a.pageStart())...)
		delete(a.failed, key)
	} else {
		path := key.Path
		a.cache.RemoveFunc(func(k CacheKey) bool { return k.Path == path })
		for k := range a.failed {
			if k.Path == path {
				delete(a.failed, k)
			}
		}
	}
	a.hasDisplayed = false
	if a.inflightKey == key {
		a.inflightKey = CacheKey{}
	}
	a.freshKey = &key
	a.navigate()
}

// resize drops everything tied to the old geometry.
func (a *App) resize(size image.Point) {
	if size == a.term.Size {
		return
	}
	a.send(ClearAllTask{Area: a.lastArea, Tmux: a.term.Tmux})
	a.term.Size = size
	a.lastArea = image.Rectangle{}
	a.hasDisplayed = false
	a.transmitting = false
	a.wantRender = false
	a.prevCursor = -1
	a.cache.Clear()
	clear(a.failed)
	a.lastStatus = StatusTask{}
	a.navigate()
}

func (a *App) selectedPath() string {
	if a.view == ViewTile {
		return a.images[min(a.tileCursor, len(a.images)-1)]
	}
	return a.images[a.index]
}

func (a *App) isVisible(path string) bool {
	if a.view == ViewSingle {
		return path == a.images[a.index]
	}
	for _, p := range a.pageTiles(a.pageStart()) {
		if p == path {
			return true
		}
	}
	return false
}

func (a *App) copyPath() {
	path := a.selectedPath()
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	a.send(CopyPathTask{Path: path, Tmux: a.term.Tmux})
	a.showNotice("Copied path to clipboard", IndicatorReady)
}

func (a *App) copyImage() {
	path := a.selectedPath()
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	a.send(CopyImageTask{Path: path})
	a.showNotice("Copying image...", IndicatorBusy)
}

func (a *App) setError(err error) {
	a.showNotice(err.Error(), IndicatorBusy)
}

func (a *App) showNotice(text string, ind Indicator) {
	a.notice = text
	a.noticeInd = ind
	if a.noticeTimer != nil {
		a.noticeTimer.Stop()
	}
	a.noticeTimer = time.NewTimer(NoticeDuration)
	a.updateStatus()
}

// indicator summarises the viewer state for the status badge.
func (a *App) indicator() Indicator {
	if a.transmitting || a.pending != nil || !a.hasDisplayed || a.displayed != a.currentKey() {
		return IndicatorBusy
	}
	if a.view == ViewTile {
		return IndicatorTile
	}
	if a.fit == FitFill {
		return IndicatorFit
	}
	return IndicatorReady
}

// StatusText is the text shown right of the indicator.
func (a *App) StatusText() string {
	n := len(a.images)
	if a.view == ViewTile {
		start := a.pageStart()
		end := min(start+a.grid().PerPage(), n)
		name := filepath.Base(a.images[min(a.tileCursor, n-1)])
		return fmt.Sprintf("[%d-%d/%d] %s %s %s", start+1, end, n, sepThin, iconImage, name)
	}

	text := fmt.Sprintf("%d/%d %s %s %s", a.index+1, n, sepThin, iconImage, filepath.Base(a.images[a.index]))
	if p, ok := a.cache.Peek(a.currentKey()); ok {
		text += fmt.Sprintf(" [%dx%d]", p.Source.X, p.Source.Y)
	}
	if a.cfg.Debug {
		if a.term.Tmux {
			text += " tmux"
		}
		text += fmt.Sprintf(" cell:%dx%d id:%d", a.term.Cell.X, a.term.Cell.Y, uint32(a.id))
	}
	return text
}

func (a *App) updateStatus() {
	st := StatusTask{Text: a.StatusText(), Term: a.term.Size, Indicator: a.indicator()}
	if a.notice != "" {
		st.Text, st.Indicator = a.notice, a.noticeInd
	}
	if st == a.lastStatus {
		return
	}
	a.lastStatus = st
	a.send(st)
}

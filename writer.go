package svt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"sync/atomic"

	"github.com/apex/log"
)

const (
	writerBufferSize = 64 * 1024
	writerQueueSize  = 1024
	writerResultSize = 64
)

// ErrWriterClosed is returned by Send once the writer has been closed.
var ErrWriterClosed = errors.New("writer closed")

// TransmissionState reports whether an image transmission is on the wire.
type TransmissionState int32

const (
	Idle TransmissionState = iota
	Transmitting
)

func (s TransmissionState) String() string {
	if s == Transmitting {
		return "transmitting"
	}
	return "idle"
}

type lane int

const (
	laneStatus lane = iota
	laneImage
	laneAux
)

// Task is a unit of work for the Writer.
type Task interface {
	lane() lane
}

// StatusTask redraws the bottom status row. Only the most recent pending
// status is ever written.
type StatusTask struct {
	Text      string
	Term      image.Point // terminal size in cells
	Indicator Indicator
}

// TransmitTask replaces whatever is on screen with Payload placed at Area.
// OldArea is the rectangle of the image currently displayed, if any.
type TransmitTask struct {
	Payload *Payload
	Area    image.Rectangle
	OldArea image.Rectangle
	Epoch   uint64
	Tmux    bool
}

// PlaceRowsTask paints placeholder rows for an image the terminal already holds.
type PlaceRowsTask struct {
	Area image.Rectangle
	ID   ProtocolID
}

// EraseRowsTask blanks the cells of Area.
type EraseRowsTask struct {
	Area image.Rectangle
}

// DeleteByIDTask frees the terminal-side image for ID.
type DeleteByIDTask struct {
	ID   ProtocolID
	Tmux bool
}

// CancelImageTask discards queued image work. It is ignored while a
// transmission is in progress.
type CancelImageTask struct {
	Epoch uint64
}

// CopyPathTask puts Path on the system clipboard through OSC 52.
type CopyPathTask struct {
	Path string
	Tmux bool
}

// CopyImageTask hands the file at Path to the OS clipboard sink.
type CopyImageTask struct {
	Path string
}

// ClearAllTask erases Area and deletes every image this client placed.
// It preempts any image work and is meant for shutdown.
type ClearAllTask struct {
	Area image.Rectangle
	Tmux bool
}

// TileCursorTask moves the tile cursor overlay. Prev is -1 when nothing was
// drawn before.
type TileCursorTask struct {
	Grid   Grid
	Cursor int
	Prev   int
	Canvas image.Rectangle
}

func (StatusTask) lane() lane      { return laneStatus }
func (TransmitTask) lane() lane    { return laneImage }
func (PlaceRowsTask) lane() lane   { return laneImage }
func (EraseRowsTask) lane() lane   { return laneImage }
func (DeleteByIDTask) lane() lane  { return laneImage }
func (TileCursorTask) lane() lane  { return laneImage }
func (CancelImageTask) lane() lane { return laneAux }
func (CopyPathTask) lane() lane    { return laneAux }
func (CopyImageTask) lane() lane   { return laneAux }
func (ClearAllTask) lane() lane    { return laneAux }

// ResultKind identifies what a WriterResult reports.
type ResultKind int

const (
	TransmitDone ResultKind = iota
	CopyImageDone
	WriteFailed
)

// WriterResult is emitted when a transmission completes, when the clipboard
// sink finishes, or when the output stream fails.
type WriterResult struct {
	Kind  ResultKind
	Epoch uint64
	Area  image.Rectangle
	Err   error
}

// ImageSink receives image copies outside the terminal stream.
type ImageSink interface {
	CopyImage(ctx context.Context, path string) error
}

type job struct {
	seqs      [][]byte
	next      int
	transmit  bool
	chunksEnd int  // index just past the last transmit chunk
	aborted   bool // finish the chunks, skip placement and result
	result    WriterResult
}

// Writer is the only component that writes to the terminal. Every other
// component hands it tasks; it serializes them onto the stream one
// self-contained sequence at a time.
type Writer struct {
	out     *bufio.Writer
	sink    ImageSink
	log     log.Interface
	in      chan Task
	results chan WriterResult

	closeOnce sync.Once
	closed    chan struct{}
	state     atomic.Int32

	// owned by Run
	status   *StatusTask
	queue    []Task
	current  *job
	minEpoch uint64
	stopping bool
}

// NewWriter wraps out. A nil sink makes CopyImageTask report an error.
func NewWriter(out io.Writer, sink ImageSink, logger log.Interface) *Writer {
	if logger == nil {
		logger = log.Log
	}
	return &Writer{
		out:     bufio.NewWriterSize(out, writerBufferSize),
		sink:    sink,
		log:     logger,
		in:      make(chan Task, writerQueueSize),
		results: make(chan WriterResult, writerResultSize),
		closed:  make(chan struct{}),
	}
}

// Send queues t. It never writes to the terminal itself.
func (w *Writer) Send(t Task) error {
	select {
	case <-w.closed:
		return ErrWriterClosed
	default:
	}
	select {
	case w.in <- t:
		return nil
	case <-w.closed:
		return ErrWriterClosed
	}
}

// Close asks Run to finish the tasks already queued and return. Tasks sent
// after Close are rejected.
func (w *Writer) Close() {
	w.closeOnce.Do(func() { close(w.closed) })
}

// Results delivers completion notices.
func (w *Writer) Results() <-chan WriterResult {
	return w.results
}

// State reports the current transmission state.
func (w *Writer) State() TransmissionState {
	return TransmissionState(w.state.Load())
}

// Run owns the output stream until Close is called, ctx is done or a write
// fails. A write failure is returned and also reported as a WriteFailed result.
func (w *Writer) Run(ctx context.Context) error {
	for {
		if w.idle() {
			if w.stopping {
				return w.flush()
			}
			select {
			case t := <-w.in:
				w.apply(ctx, t)
			case <-w.closed:
				w.stopping = true
			case <-ctx.Done():
				return ctx.Err()
			}
		}

	drain:
		for {
			select {
			case t := <-w.in:
				w.apply(ctx, t)
			default:
				break drain
			}
		}

		if err := w.step(ctx); err != nil {
			w.emit(ctx, WriterResult{Kind: WriteFailed, Err: err})
			return err
		}
	}
}

func (w *Writer) idle() bool {
	return w.status == nil && w.current == nil && len(w.queue) == 0
}

// step writes at most the pending status and one image sequence.
func (w *Writer) step(ctx context.Context) error {
	if w.status != nil {
		st := w.status
		w.status = nil
		if _, err := w.out.Write(renderStatus(st.Text, st.Term, st.Indicator)); err != nil {
			return fmt.Errorf("failed to write status: %w", err)
		}
		if err := w.flush(); err != nil {
			return err
		}
	}

	if w.current == nil && len(w.queue) > 0 {
		t := w.queue[0]
		w.queue = w.queue[1:]
		w.current = w.build(t)
		if w.current != nil && w.current.transmit {
			w.state.Store(int32(Transmitting))
		}
	}

	if w.current == nil {
		return nil
	}

	j := w.current
	if j.next < len(j.seqs) {
		if _, err := w.out.Write(j.seqs[j.next]); err != nil {
			return fmt.Errorf("failed to write sequence: %w", err)
		}
		j.next++
	}
	if j.next < len(j.seqs) {
		return nil
	}

	if err := w.flush(); err != nil {
		return err
	}
	w.current = nil
	if j.transmit {
		w.state.Store(int32(Idle))
		if !j.aborted {
			w.emit(ctx, j.result)
		}
	}
	return nil
}

// preempt drops the current job. A transmission that already started keeps
// its remaining chunks so the terminal never sees a truncated upload.
func (w *Writer) preempt() {
	j := w.current
	if j == nil {
		return
	}
	if j.transmit && j.next > 0 && j.next < j.chunksEnd {
		j.seqs = j.seqs[:j.chunksEnd]
		j.aborted = true
		return
	}
	w.current = nil
	if j.transmit {
		w.state.Store(int32(Idle))
	}
}

func (w *Writer) apply(ctx context.Context, t Task) {
	switch t := t.(type) {
	case StatusTask:
		w.status = &t
	case CancelImageTask:
		if w.State() == Transmitting {
			w.log.WithField("epoch", t.Epoch).Debug("cancel ignored during transmission")
			return
		}
		w.minEpoch = max(w.minEpoch, t.Epoch)
		kept := w.queue[:0]
		for _, q := range w.queue {
			if q.lane() != laneImage {
				kept = append(kept, q)
			}
		}
		w.queue = kept
	case TransmitTask:
		if t.Epoch < w.minEpoch {
			w.log.WithField("epoch", t.Epoch).Debug("dropping stale transmit")
			return
		}
		w.queue = append(w.queue, t)
	case ClearAllTask:
		w.preempt()
		kept := w.queue[:0]
		for _, q := range w.queue {
			if q.lane() != laneImage {
				kept = append(kept, q)
			}
		}
		w.queue = append(kept, t)
	case CopyImageTask:
		w.copyImage(ctx, t.Path)
	default:
		w.queue = append(w.queue, t)
	}
}

// build turns a dequeued task into the sequences written for it.
func (w *Writer) build(t Task) *job {
	switch t := t.(type) {
	case TransmitTask:
		return transmitJob(t)
	case PlaceRowsTask:
		return &job{seqs: PlaceRows(t.Area, t.ID)}
	case EraseRowsTask:
		return &job{seqs: EraseRows(t.Area)}
	case DeleteByIDTask:
		return &job{seqs: [][]byte{DeleteByID(t.ID, t.Tmux)}}
	case TileCursorTask:
		var seqs [][]byte
		if t.Prev >= 0 && t.Prev != t.Cursor {
			seqs = append(seqs, tileCursorSeq(t.Grid, t.Prev, t.Canvas, false))
		}
		seqs = append(seqs, tileCursorSeq(t.Grid, t.Cursor, t.Canvas, true))
		return &job{seqs: seqs}
	case CopyPathTask:
		return &job{seqs: [][]byte{OSC52([]byte(t.Path), t.Tmux)}}
	case ClearAllTask:
		seqs := EraseRows(t.Area)
		seqs = append(seqs, DeleteAll(t.Tmux), []byte("\x1b[0m"))
		return &job{seqs: seqs}
	}
	return nil
}

// transmitJob lays out erase, delete, transmit and place in the only order
// that never leaves the id pointing at a half-sent image.
func transmitJob(t TransmitTask) *job {
	var seqs [][]byte
	seqs = append(seqs, EraseRows(t.OldArea)...)
	seqs = append(seqs, DeleteByID(t.Payload.ID, t.Tmux))
	seqs = append(seqs, t.Payload.Chunks...)
	end := len(seqs)
	seqs = append(seqs, PlaceRows(t.Area, t.Payload.ID)...)
	return &job{
		seqs:      seqs,
		transmit:  true,
		chunksEnd: end,
		result:    WriterResult{Kind: TransmitDone, Epoch: t.Epoch, Area: t.Area},
	}
}

func (w *Writer) copyImage(ctx context.Context, path string) {
	go func() {
		var err error
		if w.sink == nil {
			err = errors.New("no image clipboard available")
		} else {
			err = w.sink.CopyImage(ctx, path)
		}
		w.emit(ctx, WriterResult{Kind: CopyImageDone, Err: err})
	}()
}

func (w *Writer) emit(ctx context.Context, r WriterResult) {
	select {
	case w.results <- r:
	case <-ctx.Done():
	}
}

func (w *Writer) flush() error {
	if err := w.out.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}

package svt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLog = &log.Logger{Handler: discard.Default, Level: log.DebugLevel}

// gateWriter records writes and blocks every Write until open is closed.
type gateWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	open chan struct{}
}

func newGateWriter(blocked bool) *gateWriter {
	g := &gateWriter{open: make(chan struct{})}
	if !blocked {
		close(g.open)
	}
	return g
}

func (g *gateWriter) Write(p []byte) (int, error) {
	<-g.open
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buf.Write(p)
}

func (g *gateWriter) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.buf.String()
}

type errWriter struct{ err error }

func (e errWriter) Write([]byte) (int, error) { return 0, e.err }

type fakeSink struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (s *fakeSink) CopyImage(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
	return s.err
}

func testPayload(id ProtocolID, n, size int) *Payload {
	chunks := make([][]byte, n)
	for i := range chunks {
		chunks[i] = []byte(fmt.Sprintf("<chunk%02d:%s>", i, strings.Repeat("A", size)))
	}
	return &Payload{Chunks: chunks, ID: id, Size: image.Pt(20, 20)}
}

func startWriter(t *testing.T, w *Writer) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not stop")
		return nil
	}
}

func collectResults(w *Writer) []WriterResult {
	var out []WriterResult
	for {
		select {
		case r := <-w.Results():
			out = append(out, r)
		default:
			return out
		}
	}
}

func TestWriterTransmitOrder(t *testing.T) {
	out := newGateWriter(false)
	w := NewWriter(out, nil, quietLog)
	id := ProtocolID(0x00203040)

	area := image.Rect(0, 0, 2, 1)
	old := image.Rect(0, 2, 3, 3)
	require.NoError(t, w.Send(TransmitTask{Payload: testPayload(id, 2, 4), Area: area, OldArea: old, Epoch: 1}))
	w.Close()
	require.NoError(t, waitRun(t, startWriter(t, w)))

	s := out.String()
	erase := strings.Index(s, string(EraseRows(old)[0]))
	del := strings.Index(s, string(DeleteByID(id, false)))
	c0 := strings.Index(s, "<chunk00")
	c1 := strings.Index(s, "<chunk01")
	place := strings.Index(s, string(PlaceRows(area, id)[0]))

	for _, i := range []int{erase, del, c0, c1, place} {
		require.GreaterOrEqual(t, i, 0)
	}
	assert.Less(t, erase, del)
	assert.Less(t, del, c0)
	assert.Less(t, c0, c1)
	assert.Less(t, c1, place)

	res := collectResults(w)
	require.Len(t, res, 1)
	assert.Equal(t, WriterResult{Kind: TransmitDone, Epoch: 1, Area: area}, res[0])
	assert.Equal(t, Idle, w.State())
}

func TestWriterCancelWhileIdleDropsQueuedImages(t *testing.T) {
	out := newGateWriter(false)
	w := NewWriter(out, nil, quietLog)

	require.NoError(t, w.Send(TransmitTask{Payload: testPayload(1, 1, 4), Area: image.Rect(0, 0, 1, 1), Epoch: 1}))
	require.NoError(t, w.Send(CancelImageTask{Epoch: 2}))
	require.NoError(t, w.Send(TransmitTask{Payload: testPayload(1, 1, 4), Area: image.Rect(0, 0, 1, 1), Epoch: 1}))
	require.NoError(t, w.Send(TransmitTask{Payload: testPayload(1, 1, 4), Area: image.Rect(0, 0, 1, 1), Epoch: 2}))
	w.Close()
	require.NoError(t, waitRun(t, startWriter(t, w)))

	res := collectResults(w)
	require.Len(t, res, 1, "only the transmit at the cancelled epoch survives")
	assert.Equal(t, uint64(2), res[0].Epoch)
	assert.Equal(t, 1, strings.Count(out.String(), "<chunk00"))
}

func TestWriterCancelIgnoredDuringTransmission(t *testing.T) {
	out := newGateWriter(true)
	w := NewWriter(out, nil, quietLog)
	done := startWriter(t, w)

	// large enough to overflow the output buffer and block mid-job
	p := testPayload(7, 24, 4096)
	area := image.Rect(0, 0, 4, 2)
	require.NoError(t, w.Send(TransmitTask{Payload: p, Area: area, Epoch: 1}))
	require.Eventually(t, func() bool { return w.State() == Transmitting }, time.Second, time.Millisecond)

	require.NoError(t, w.Send(CancelImageTask{Epoch: 2}))
	require.NoError(t, w.Send(StatusTask{Text: "first", Term: image.Pt(40, 10)}))
	require.NoError(t, w.Send(StatusTask{Text: "second", Term: image.Pt(40, 10)}))
	close(out.open)
	w.Close()
	require.NoError(t, waitRun(t, done))

	s := out.String()
	for i := range p.Chunks {
		assert.Contains(t, s, fmt.Sprintf("<chunk%02d:", i))
	}
	place := strings.Index(s, string(PlaceRows(area, 7)[0]))
	require.GreaterOrEqual(t, place, 0, "transmission must run to completion")

	assert.NotContains(t, s, "first", "only the newest status is written")
	status := strings.Index(s, "second")
	require.GreaterOrEqual(t, status, 0)
	assert.Less(t, status, place, "status preempts the remaining image sequences")

	res := collectResults(w)
	require.Len(t, res, 1)
	assert.Equal(t, TransmitDone, res[0].Kind)
	assert.Equal(t, uint64(1), res[0].Epoch)
}

func TestWriterClearAllPreemptsQueuedImages(t *testing.T) {
	out := newGateWriter(false)
	w := NewWriter(out, nil, quietLog)

	clearArea := image.Rect(0, 0, 5, 2)
	require.NoError(t, w.Send(TransmitTask{Payload: testPayload(3, 1, 4), Area: image.Rect(0, 0, 1, 1), Epoch: 1}))
	require.NoError(t, w.Send(PlaceRowsTask{Area: image.Rect(0, 0, 1, 1), ID: 3}))
	require.NoError(t, w.Send(ClearAllTask{Area: clearArea}))
	w.Close()
	require.NoError(t, waitRun(t, startWriter(t, w)))

	s := out.String()
	assert.NotContains(t, s, "<chunk00")
	assert.NotContains(t, s, string(placeholderRune))
	assert.Contains(t, s, string(EraseRows(clearArea)[1]))
	assert.Contains(t, s, string(DeleteAll(false)))
	assert.Empty(t, collectResults(w))
}

func TestWriterClearAllFinishesStartedUpload(t *testing.T) {
	out := newGateWriter(true)
	w := NewWriter(out, nil, quietLog)
	done := startWriter(t, w)

	p := testPayload(9, 24, 4096)
	area := image.Rect(0, 0, 4, 2)
	require.NoError(t, w.Send(TransmitTask{Payload: p, Area: area, Epoch: 1}))
	require.Eventually(t, func() bool { return w.State() == Transmitting }, time.Second, time.Millisecond)

	require.NoError(t, w.Send(ClearAllTask{}))
	close(out.open)
	w.Close()
	require.NoError(t, waitRun(t, done))

	s := out.String()
	last := strings.Index(s, fmt.Sprintf("<chunk%02d:", len(p.Chunks)-1))
	clearAt := strings.Index(s, string(DeleteAll(false)))
	require.GreaterOrEqual(t, last, 0, "every chunk of a started upload is written")
	assert.Greater(t, clearAt, last)
	assert.NotContains(t, s, string(placeholderRune), "the preempted image is never placed")
	assert.Empty(t, collectResults(w))
}

func TestWriterTileCursor(t *testing.T) {
	out := newGateWriter(false)
	w := NewWriter(out, nil, quietLog)
	g := Grid{Cols: 2, Rows: 2}
	canvas := image.Rect(0, 0, 20, 10)

	require.NoError(t, w.Send(TileCursorTask{Grid: g, Cursor: 1, Prev: 0, Canvas: canvas}))
	w.Close()
	require.NoError(t, waitRun(t, startWriter(t, w)))

	s := out.String()
	blank := strings.Index(s, string(tileCursorSeq(g, 0, canvas, false)))
	drawn := strings.Index(s, string(tileCursorSeq(g, 1, canvas, true)))
	require.GreaterOrEqual(t, blank, 0)
	assert.Greater(t, drawn, blank)
}

func TestWriterCopy(t *testing.T) {
	out := newGateWriter(false)
	sink := &fakeSink{}
	w := NewWriter(out, sink, quietLog)
	done := startWriter(t, w)

	require.NoError(t, w.Send(CopyPathTask{Path: "/tmp/a.png"}))
	require.NoError(t, w.Send(CopyImageTask{Path: "/tmp/b.png"}))

	select {
	case r := <-w.Results():
		assert.Equal(t, CopyImageDone, r.Kind)
		assert.NoError(t, r.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("no copy result")
	}
	w.Close()
	require.NoError(t, waitRun(t, done))

	assert.Contains(t, out.String(), string(OSC52([]byte("/tmp/a.png"), false)))
	assert.Equal(t, []string{"/tmp/b.png"}, sink.paths)
}

func TestWriterCopyWithoutSink(t *testing.T) {
	w := NewWriter(newGateWriter(false), nil, quietLog)
	done := startWriter(t, w)

	require.NoError(t, w.Send(CopyImageTask{Path: "/tmp/b.png"}))
	select {
	case r := <-w.Results():
		assert.Equal(t, CopyImageDone, r.Kind)
		assert.Error(t, r.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("no copy result")
	}
	w.Close()
	require.NoError(t, waitRun(t, done))
}

func TestWriterWriteFailure(t *testing.T) {
	boom := errors.New("boom")
	w := NewWriter(errWriter{err: boom}, nil, quietLog)
	done := startWriter(t, w)

	require.NoError(t, w.Send(StatusTask{Text: "hi", Term: image.Pt(10, 5)}))
	err := waitRun(t, done)
	assert.ErrorIs(t, err, boom)

	res := collectResults(w)
	require.Len(t, res, 1)
	assert.Equal(t, WriteFailed, res[0].Kind)
	assert.ErrorIs(t, res[0].Err, boom)
}

func TestWriterSendAfterClose(t *testing.T) {
	w := NewWriter(newGateWriter(false), nil, quietLog)
	w.Close()
	w.Close()
	assert.ErrorIs(t, w.Send(StatusTask{}), ErrWriterClosed)
}

func TestWriterContextCancel(t *testing.T) {
	w := NewWriter(newGateWriter(false), nil, quietLog)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()
	assert.ErrorIs(t, waitRun(t, done), context.Canceled)
}

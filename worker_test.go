package svt

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no result")
		return Result{}
	}
}

func TestWorkerRenders(t *testing.T) {
	path := writeTestImage(t, t.TempDir(), "a.png", 30, 30)
	w := NewWorker(WorkerOptions{Logger: quietLog})
	defer w.Close()

	req := Request{Path: path, Epoch: 4, Target: image.Pt(15, 15), ID: 9}
	w.Schedule(req)

	res := waitResult(t, w.Results())
	require.NoError(t, res.Err)
	assert.Equal(t, req.Key(), res.Key)
	assert.Equal(t, uint64(4), res.Epoch)
	assert.Equal(t, image.Pt(15, 15), res.Payload.Size)
}

func TestWorkerReportsErrors(t *testing.T) {
	w := NewWorker(WorkerOptions{Logger: quietLog})
	defer w.Close()

	w.Schedule(Request{Path: "/nonexistent/a.png", Epoch: 1, Target: image.Pt(10, 10)})
	res := waitResult(t, w.Results())
	assert.Error(t, res.Err)
	assert.Nil(t, res.Payload)
}

func TestWorkerScheduleKeepsNewest(t *testing.T) {
	// no loop running, so requests stay queued
	w := &Worker{reqCh: make(chan Request, 1), log: quietLog}

	w.Schedule(Request{Path: "a", Epoch: 1})
	w.Schedule(Request{Path: "b", Epoch: 2})
	w.Schedule(Request{Path: "c", Epoch: 3})

	require.Len(t, w.reqCh, 1)
	got := <-w.reqCh
	assert.Equal(t, "c", got.Path)
	assert.Equal(t, uint64(3), got.Epoch)
}

func TestWorkerDecodeCache(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImage(t, dir, "a.png", 10, 10)
	w := &Worker{log: quietLog}

	first, err := w.decodeCached(path, false)
	require.NoError(t, err)

	// replace the file behind the cache's back
	writeTestImage(t, dir, "a.png", 20, 20)

	again, err := w.decodeCached(path, false)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(10, 10), again.Bounds().Size())
	assert.True(t, first == again, "the cached image is returned as is")

	fresh, err := w.decodeCached(path, true)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 20), fresh.Bounds().Size(), "fresh requests bypass the cache")

	_, err = w.decodeCached(path+".missing", false)
	assert.Error(t, err)
	assert.Nil(t, w.lastImage)
}

func TestWorkerThumbsShared(t *testing.T) {
	thumbs := NewThumbCache(4)
	w := NewWorker(WorkerOptions{Thumbs: thumbs, Logger: quietLog})
	defer w.Close()
	assert.Same(t, thumbs, w.Thumbs())
}

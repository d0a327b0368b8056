package svt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveGen(t *testing.T, l *NavLatch) uint64 {
	t.Helper()
	select {
	case gen := <-l.C:
		return gen
	case <-time.After(2 * time.Second):
		t.Fatal("latch did not fire")
		return 0
	}
}

func TestNavLatchFires(t *testing.T) {
	l := NewNavLatch(10 * time.Millisecond)
	gen := l.Trigger()

	got := receiveGen(t, l)
	assert.Equal(t, gen, got)
	assert.True(t, l.Current(got))
}

func TestNavLatchCoalesces(t *testing.T) {
	l := NewNavLatch(30 * time.Millisecond)
	first := l.Trigger()
	l.Trigger()
	last := l.Trigger()

	got := receiveGen(t, l)
	assert.Equal(t, last, got, "only the newest trigger is delivered")
	assert.False(t, l.Current(first))

	select {
	case gen := <-l.C:
		t.Fatalf("unexpected second firing %d", gen)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestNavLatchStaleAfterRetrigger(t *testing.T) {
	l := NewNavLatch(0)
	gen := l.Trigger()
	got := receiveGen(t, l)
	require.Equal(t, gen, got)

	l.Trigger()
	assert.False(t, l.Current(got), "a delivered firing goes stale once the window restarts")
}

func TestNavLatchCancel(t *testing.T) {
	l := NewNavLatch(20 * time.Millisecond)
	gen := l.Trigger()
	l.Cancel()
	assert.False(t, l.Current(gen))

	select {
	case <-l.C:
		t.Fatal("cancelled latch fired")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestNavLatchNegativeDuration(t *testing.T) {
	l := NewNavLatch(-time.Second)
	assert.Equal(t, time.Duration(0), l.Duration())
	l.Trigger()
	receiveGen(t, l)
}

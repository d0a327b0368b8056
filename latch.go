package svt

import (
	"sync"
	"time"
)

// DefaultNavLatch is the default settle time before a render is requested.
const DefaultNavLatch = 150 * time.Millisecond

// NavLatch coalesces bursts of navigation into one render request. Each
// Trigger restarts the window; when it elapses the generation of the last
// trigger is delivered on C. Receivers check it with Current to ignore
// windows that were restarted or cancelled after firing.
type NavLatch struct {
	duration time.Duration
	timer    *time.Timer
	gen      uint64
	mu       sync.Mutex

	C chan uint64
}

// NewNavLatch creates a latch with the given window. A zero window fires on
// the next receive.
func NewNavLatch(duration time.Duration) *NavLatch {
	return &NavLatch{
		duration: max(duration, 0),
		C:        make(chan uint64, 1),
	}
}

// Trigger (re)starts the window and returns its generation.
func (l *NavLatch) Trigger() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
	}
	l.gen++
	gen := l.gen
	l.timer = time.AfterFunc(l.duration, func() { l.fire(gen) })
	return gen
}

func (l *NavLatch) fire(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// a timer that raced with Trigger or Cancel must not displace a newer
	// firing
	if gen != l.gen {
		return
	}
	select {
	case l.C <- gen:
	default:
		select {
		case <-l.C:
		default:
		}
		select {
		case l.C <- gen:
		default:
		}
	}
}

// Cancel stops a pending window. A firing already delivered becomes stale.
func (l *NavLatch) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.gen++
}

// Current reports whether gen belongs to the latest Trigger.
func (l *NavLatch) Current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return gen == l.gen
}

// Duration returns the latch window.
func (l *NavLatch) Duration() time.Duration {
	return l.duration
}

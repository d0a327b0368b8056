package svt

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// Passthrough holds the framing used around every APC/OSC sequence.
// Outside tmux it is a plain ESC introducer with no closing wrapper.
type Passthrough struct {
	Start  string // sequence introducer ("\x1b" or the tmux DCS prefix)
	Escape string // escape used before the ST backslash
	Close  string // trailing wrapper terminator
}

var (
	plainFraming = Passthrough{Start: "\x1b", Escape: "\x1b"}
	tmuxFraming  = Passthrough{Start: "\x1bPtmux;\x1b\x1b", Escape: "\x1b\x1b", Close: "\x1b\\"}
)

// FramingFor returns the sequence framing for a tmux or plain terminal.
func FramingFor(tmux bool) Passthrough {
	if tmux {
		return tmuxFraming
	}
	return plainFraming
}

var tmuxForced atomic.Bool

// ForceTmux makes InTmux report true whatever the environment says, for
// sessions where $TMUX is not inherited. Forcing also enables passthrough.
func ForceTmux(force bool) {
	tmuxForced.Store(force)
	if force {
		EnableTmuxPassthrough()
	}
}

// IsTmuxForced reports whether ForceTmux(true) is in effect.
func IsTmuxForced() bool {
	return tmuxForced.Load()
}

// InTmux reports whether output reaches the terminal through tmux.
func InTmux() bool {
	return tmuxForced.Load() || inTmuxEnv(os.Getenv)
}

func inTmuxEnv(getenv func(string) string) bool {
	return getenv("TMUX") != "" || getenv("TERM_PROGRAM") == "tmux"
}

const tmuxCommandTimeout = 2 * time.Second

var passthrough struct {
	once sync.Once
	ok   atomic.Bool
}

// EnableTmuxPassthrough sets allow-passthrough on the current pane, once per
// process. tmux swallows graphics sequences without it.
func EnableTmuxPassthrough() bool {
	passthrough.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), tmuxCommandTimeout)
		defer cancel()
		if err := exec.CommandContext(ctx, "tmux", "set", "-p", "allow-passthrough", "on").Run(); err == nil {
			passthrough.ok.Store(true)
		}
	})
	return passthrough.ok.Load()
}

// IsTmuxPassthroughEnabled reports whether EnableTmuxPassthrough succeeded.
func IsTmuxPassthroughEnabled() bool {
	return passthrough.ok.Load()
}

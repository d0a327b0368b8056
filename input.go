package svt

import (
	"bufio"
	"context"
	"errors"
	"image"
	"io"
)

// ActionKind is a user intent decoded from the keyboard or the terminal.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionQuit
	ActionDown     // j, space: next image, or next tile row
	ActionUp       // k, backspace
	ActionLeft     // h
	ActionRight    // l
	ActionPagePrev // H, K
	ActionPageNext // J, L
	ActionSelect   // enter in tile view
	ActionFirst    // g, or [count]g
	ActionLast     // G, or [count]G
	ActionToggleFit
	ActionReload
	ActionToggleView
	ActionCopyPath
	ActionCopyImage
	ActionResize
	ActionFileChanged
)

// Action is one decoded intent. Count is the numeric prefix typed before
// the key, zero when none was given.
type Action struct {
	Kind  ActionKind
	Count int
	Size  image.Point // new terminal size, ActionResize only
	Path  string      // ActionFileChanged only
}

// N returns the repeat count, defaulting to one.
func (a Action) N() int {
	return max(a.Count, 1)
}

// Special keys
const (
	KeyNone = iota
	KeyArrowLeft
	KeyArrowRight
	KeyArrowUp
	KeyArrowDown
	KeyPageUp
	KeyPageDown
	KeyHome
	KeyEnd
)

var specialKeys = map[[3]byte]int{
	{'[', 'A', 0}:   KeyArrowUp,
	{'[', 'B', 0}:   KeyArrowDown,
	{'[', 'C', 0}:   KeyArrowRight,
	{'[', 'D', 0}:   KeyArrowLeft,
	{'[', 'H', 0}:   KeyHome,
	{'[', 'F', 0}:   KeyEnd,
	{'[', '5', '~'}: KeyPageUp,
	{'[', '6', '~'}: KeyPageDown,
}

// Key is a single keypress.
type Key struct {
	Regular rune
	Special int
}

// KeyReader decodes keypresses from a raw-mode terminal.
type KeyReader struct {
	r *bufio.Reader
}

// NewKeyReader wraps r, normally os.Stdin after term.MakeRaw.
func NewKeyReader(r io.Reader) *KeyReader {
	return &KeyReader{r: bufio.NewReader(r)}
}

// ReadKey blocks for the next key, turning VT100 escape sequences into
// special keys. An unrecognised sequence is reported as a bare escape.
func (k *KeyReader) ReadKey() (Key, error) {
	r, _, err := k.r.ReadRune()
	if err != nil {
		return Key{}, err
	}
	if r != 0x1b || k.r.Buffered() == 0 {
		return Key{Regular: r}, nil
	}

	var seq [3]byte
	for i := range seq {
		if k.r.Buffered() == 0 {
			break
		}
		b, err := k.r.ReadByte()
		if err != nil {
			return Key{}, err
		}
		seq[i] = b
		if key, ok := specialKeys[seq]; ok {
			return Key{Special: key}, nil
		}
	}
	return Key{Regular: 0x1b}, nil
}

// Keymap turns keys into actions and accumulates vim-style counts.
type Keymap struct {
	count int
}

// Feed consumes one key. It returns false while a count is being typed or
// when the key is unbound; an unbound key also discards the count.
func (m *Keymap) Feed(k Key) (Action, bool) {
	r := k.Regular
	if k.Special == KeyNone && r >= '0' && r <= '9' && (r != '0' || m.count != 0) {
		m.count = min(m.count*10+int(r-'0'), 1_000_000)
		return Action{}, false
	}

	count := m.count
	m.count = 0

	kind := keyAction(k)
	if kind == ActionNone {
		return Action{}, false
	}
	return Action{Kind: kind, Count: count}, true
}

func keyAction(k Key) ActionKind {
	switch k.Special {
	case KeyArrowDown:
		return ActionDown
	case KeyArrowUp:
		return ActionUp
	case KeyArrowLeft:
		return ActionLeft
	case KeyArrowRight:
		return ActionRight
	case KeyPageUp:
		return ActionPagePrev
	case KeyPageDown:
		return ActionPageNext
	case KeyHome:
		return ActionFirst
	case KeyEnd:
		return ActionLast
	}

	switch k.Regular {
	case 'q', 0x03:
		return ActionQuit
	case 'j', ' ':
		return ActionDown
	case 'k', 0x7f, 0x08:
		return ActionUp
	case 'h':
		return ActionLeft
	case 'l':
		return ActionRight
	case 'H', 'K':
		return ActionPagePrev
	case 'J', 'L':
		return ActionPageNext
	case '\r', '\n':
		return ActionSelect
	case 'g':
		return ActionFirst
	case 'G':
		return ActionLast
	case 'f':
		return ActionToggleFit
	case 'r':
		return ActionReload
	case 't':
		return ActionToggleView
	case 'y':
		return ActionCopyPath
	case 'Y':
		return ActionCopyImage
	}
	return ActionNone
}

// ReadActions decodes keys from r until it fails or ctx is done, sending
// each action on out. io.EOF is reported as a nil error.
func ReadActions(ctx context.Context, r io.Reader, out chan<- Action) error {
	keys := NewKeyReader(r)
	var km Keymap
	for {
		k, err := keys.ReadKey()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		a, ok := km.Feed(k)
		if !ok {
			continue
		}
		select {
		case out <- a:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

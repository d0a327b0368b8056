package svt

import (
	"image"
	"os"
	"strings"

	"github.com/svt-term/svt/pkg/csi"
	"golang.org/x/term"
)

// KittySupported checks if the current terminal supports the Kitty graphics
// protocol. Known terminals are recognised from the environment; anything
// else is asked directly when stdin is a terminal.
func KittySupported(tmux bool) bool {
	if kittyFromEnv(os.Getenv) {
		return true
	}
	if !csi.QuerySupported() {
		return false
	}
	return csi.QueryKitty(tmux)
}

func kittyFromEnv(getenv func(string) string) bool {
	switch {
	case getenv("KITTY_WINDOW_ID") != "":
		return true
	case strings.Contains(strings.ToLower(getenv("TERM")), "kitty"):
		return true
	case strings.Contains(strings.ToLower(getenv("TERM")), "ghostty"):
		return true
	}
	switch getenv("TERM_PROGRAM") {
	case "ghostty", "WezTerm", "rio":
		return true
	}
	return false
}

// DetectTerminal measures the terminal attached to stdout. Sizes that
// cannot be determined fall back to 80x24 cells of DefaultCellSize.
func DetectTerminal(tmux bool) Terminal {
	t := Terminal{Size: image.Pt(80, 24), Cell: DefaultCellSize, Tmux: tmux}

	if cols, rows, err := term.GetSize(int(os.Stdout.Fd())); err == nil && cols > 0 && rows > 0 {
		t.Size = image.Pt(cols, rows)
	}
	if cell, ok := csi.CellSize(tmux); ok {
		t.Cell = cell
	}
	return t
}

// TerminalSize returns the current size of the terminal behind fd in cells.
func TerminalSize(fd int) (image.Point, error) {
	ws, err := csi.GetWinsize(fd)
	if err != nil {
		return image.Point{}, err
	}
	return ws.Size(), nil
}

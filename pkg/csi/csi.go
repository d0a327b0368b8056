/*
Package csi queries the controlling terminal for the geometry and graphics
support the viewer needs.
*/
package csi

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

// QueryTimeout is the default timeout for CSI queries
const QueryTimeout = 100 * time.Millisecond

// ErrNoResponse is returned when the terminal did not answer in time.
var ErrNoResponse = errors.New("csi: no response from terminal")

const (
	seqCellSize     = "\x1b[16t"
	seqTextAreaSize = "\x1b[14t"
	kittyQueryID    = "31"
	seqKittyQuery   = "\x1b_Gi=" + kittyQueryID + ",s=1,v=1,a=q,t=d,f=24;AAAA\x1b\\"
	seqDA1          = "\x1b[c"
)

// Wrap frames seq for tmux passthrough, doubling every ESC.
func Wrap(seq string, tmux bool) string {
	if !tmux || !strings.HasPrefix(seq, "\x1b") {
		return seq
	}
	return "\x1bPtmux;\x1b" + strings.ReplaceAll(seq, "\x1b", "\x1b\x1b") + "\x1b\\"
}

// Query writes seq to /dev/tty in raw mode and returns whatever the terminal
// answers before timeout.
func Query(seq string, tmux bool, timeout time.Duration) (string, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("csi: failed to open tty: %w", err)
	}
	defer tty.Close()

	oldState, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		return "", fmt.Errorf("csi: failed to enter raw mode: %w", err)
	}
	defer term.Restore(int(tty.Fd()), oldState)

	if _, err := tty.WriteString(Wrap(seq, tmux)); err != nil {
		return "", fmt.Errorf("csi: failed to send query: %w", err)
	}

	responseChan := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		n, err := tty.Read(buf)
		if err != nil || n == 0 {
			responseChan <- ""
			return
		}
		responseChan <- string(buf[:n])
	}()

	select {
	case resp := <-responseChan:
		if resp == "" {
			return "", ErrNoResponse
		}
		return resp, nil
	case <-time.After(timeout):
		return "", ErrNoResponse
	}
}

// ParseSizeReport extracts (width, height) from a window-ops report such as
// "ESC[6;H;Wt" for the given report code.
func ParseSizeReport(resp string, code int) (image.Point, bool) {
	prefix := fmt.Sprintf("\x1b[%d;", code)
	i := strings.Index(resp, prefix)
	if i < 0 {
		return image.Point{}, false
	}
	body := resp[i+len(prefix):]
	end := strings.IndexByte(body, 't')
	if end < 0 {
		return image.Point{}, false
	}
	parts := strings.Split(body[:end], ";")
	if len(parts) != 2 {
		return image.Point{}, false
	}
	h, err1 := strconv.Atoi(parts[0])
	w, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return image.Point{}, false
	}
	return image.Pt(w, h), true
}

// ParseKittyResponse reports whether resp acknowledges the graphics query.
func ParseKittyResponse(resp string) bool {
	return strings.Contains(resp, "\x1b_Gi="+kittyQueryID+";OK")
}

// QueryCellSize asks for the character cell size in pixels with CSI 16t.
func QueryCellSize(tmux bool) (image.Point, bool) {
	resp, err := Query(seqCellSize, tmux, QueryTimeout)
	if err != nil {
		return image.Point{}, false
	}
	return ParseSizeReport(resp, 6)
}

// QueryTextAreaSize asks for the text area size in pixels with CSI 14t.
func QueryTextAreaSize(tmux bool) (image.Point, bool) {
	resp, err := Query(seqTextAreaSize, tmux, QueryTimeout)
	if err != nil {
		return image.Point{}, false
	}
	return ParseSizeReport(resp, 4)
}

// QueryKitty sends a graphics query chased by DA1 so terminals without
// graphics support still answer promptly.
func QueryKitty(tmux bool) bool {
	resp, err := Query(seqKittyQuery+seqDA1, tmux, QueryTimeout)
	if err != nil {
		return false
	}
	return ParseKittyResponse(resp)
}

// CellSize derives the pixel size of one cell. The winsize ioctl is tried
// first since it needs no round trip, then CSI 16t, then CSI 14t divided by
// the grid size.
func CellSize(tmux bool) (image.Point, bool) {
	ws, err := GetWinsize(int(os.Stdout.Fd()))
	if err == nil {
		if c, ok := ws.Cell(); ok {
			return c, true
		}
	}
	if c, ok := QueryCellSize(tmux); ok {
		return c, true
	}
	if err != nil {
		return image.Point{}, false
	}
	px, ok := QueryTextAreaSize(tmux)
	if !ok {
		return image.Point{}, false
	}
	ws.XPixel, ws.YPixel = px.X, px.Y
	return ws.Cell()
}

// Winsize is the terminal geometry in cells and pixels.
type Winsize struct {
	Cols, Rows     int
	XPixel, YPixel int
}

// Size returns the grid size in cells.
func (w Winsize) Size() image.Point {
	return image.Pt(w.Cols, w.Rows)
}

// Cell divides the pixel size by the grid. Values outside 4..64 pixels are
// treated as bogus.
func (w Winsize) Cell() (image.Point, bool) {
	if w.Cols <= 0 || w.Rows <= 0 || w.XPixel <= 0 || w.YPixel <= 0 {
		return image.Point{}, false
	}
	c := image.Pt(w.XPixel/w.Cols, w.YPixel/w.Rows)
	if c.X < 4 || c.X > 64 || c.Y < 4 || c.Y > 64 {
		return image.Point{}, false
	}
	return c, true
}

// QuerySupported checks if a terminal likely answers CSI queries
func QuerySupported() bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	switch os.Getenv("TERM_PROGRAM") {
	case "Apple_Terminal", "vscode":
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

package svt

import (
	"image"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
)

// Indicator is the state badge on the left of the status bar.
type Indicator int

const (
	IndicatorBusy Indicator = iota
	IndicatorReady
	IndicatorFit
	IndicatorTile
)

// Nerd Font glyphs.
const (
	iconReady = "\U000F012C" // nf-md-check
	iconBusy  = "\uF110"     // nf-fa-spinner
	iconFit   = "\U000F004C" // nf-md-arrow_expand_all
	iconTile  = "\U000F11D9" // nf-md-view_grid_outline
	powerline = "\uE0B0"

	// columns taken by " X " plus the separator
	indicatorWidth = 4
)

var (
	colorBase  = termenv.ANSIColor(0)
	colorLight = termenv.ANSIColor(15)
)

func (i Indicator) glyph() (string, termenv.Color) {
	switch i {
	case IndicatorReady:
		return iconReady, termenv.ANSIColor(2)
	case IndicatorFit:
		return iconFit, termenv.ANSIColor(5)
	case IndicatorTile:
		return iconTile, termenv.ANSIColor(6)
	default:
		return iconBusy, termenv.ANSIColor(3)
	}
}

func (i Indicator) String() string {
	switch i {
	case IndicatorReady:
		return "ready"
	case IndicatorFit:
		return "fit"
	case IndicatorTile:
		return "tile"
	default:
		return "busy"
	}
}

// renderStatus draws the status bar on the last terminal row.
func renderStatus(text string, term image.Point, ind Indicator) []byte {
	if term.X <= 0 || term.Y <= 0 {
		return nil
	}

	row := strconv.Itoa(term.Y)
	icon, accent := ind.glyph()
	clipped := runewidth.Truncate(text, max(term.X-indicatorWidth-1, 0), "")

	var b strings.Builder
	// clear the row with the base background
	b.WriteString("\x1b[" + row + ";1H\x1b[40m\x1b[" + strconv.Itoa(term.X) + "X")
	b.WriteString("\x1b[" + row + ";1H")
	b.WriteString(termenv.ANSI.String(" " + icon + " ").Foreground(colorBase).Background(accent).String())
	b.WriteString(termenv.ANSI.String(powerline).Foreground(accent).Background(colorBase).String())
	b.WriteString(termenv.ANSI.String(" " + clipped).Foreground(colorLight).Background(colorBase).String())
	return []byte(b.String())
}

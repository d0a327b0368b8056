package svt

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
)

const (
	// DefaultChunkSize is the number of base64 bytes carried by one APC chunk.
	DefaultChunkSize = 4096

	// placeholderRune is the Unicode placeholder kitty replaces with image cells.
	placeholderRune = '\U0010EEEE'
)

// TransmitOptions controls how a frame is encoded for transmission.
type TransmitOptions struct {
	Compress  bool // deflate the pixel buffer (o=z)
	Level     int  // zlib level, 0-9
	Tmux      bool // wrap every chunk for tmux passthrough
	ChunkSize int  // base64 bytes per chunk, multiple of 4
}

func (o TransmitOptions) chunkSize() int {
	size := o.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	// a chunk must hold at least one base64 quantum
	return max(size-size%4, 4)
}

// EncodeTransmit builds the complete, chunked transmit-and-display sequence
// for img under id. Every returned slice is one self-terminated APC sequence
// and may be written on its own.
func EncodeTransmit(img image.Image, id ProtocolID, opts TransmitOptions) ([][]byte, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("cannot transmit empty image")
	}

	raw, format := pixelBuffer(img)

	compressed := false
	if opts.Compress {
		data, err := zlibCompress(raw, opts.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to encode frame: %w", err)
		}
		raw = data
		compressed = true
	}

	// base64 turns every 3 raw bytes into 4, so slicing the raw buffer at
	// 3/4 of the chunk size yields pieces that concatenate into one stream.
	pieces := ParallelBase64Encode(raw, opts.chunkSize()/4*3)
	frame := FramingFor(opts.Tmux)

	chunks := make([][]byte, 0, len(pieces))
	for i, piece := range pieces {
		more := 0
		if i < len(pieces)-1 {
			more = 1
		}

		var b strings.Builder
		b.Grow(len(piece) + 128)
		b.WriteString(frame.Start)
		if i == 0 {
			fmt.Fprintf(&b, "_Gq=2,a=T,C=1,U=1,f=%d,s=%d,v=%d,i=%d", format, bounds.Dx(), bounds.Dy(), uint32(id))
			if compressed {
				b.WriteString(",o=z")
			}
			fmt.Fprintf(&b, ",m=%d;", more)
		} else {
			fmt.Fprintf(&b, "_Gm=%d;", more)
		}
		b.WriteString(piece)
		b.WriteString(frame.Escape)
		b.WriteString("\\")
		b.WriteString(frame.Close)
		chunks = append(chunks, []byte(b.String()))
	}

	return chunks, nil
}

// pixelBuffer flattens img into tightly packed RGB (f=24) when it is fully
// opaque and RGBA (f=32) otherwise.
func pixelBuffer(img image.Image) ([]byte, int) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) || nrgba.Stride != w*4 {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
	}

	if !isOpaque(img) {
		return nrgba.Pix, 32
	}

	rgb := make([]byte, 0, w*h*3)
	for i := 0; i < len(nrgba.Pix); i += 4 {
		rgb = append(rgb, nrgba.Pix[i], nrgba.Pix[i+1], nrgba.Pix[i+2])
	}
	return rgb, 24
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

// PlaceRows returns one sequence per row of area that paints placeholder
// cells bound to id. The id's low three bytes travel as the truecolor
// foreground and the high byte as the third diacritic.
func PlaceRows(area image.Rectangle, id ProtocolID) [][]byte {
	if area.Dx() <= 0 || area.Dy() <= 0 {
		return nil
	}

	r, g, b := id.RGB()
	extra := diacritic(int(id.Extra()))

	rows := make([][]byte, 0, area.Dy())
	for y := 0; y < area.Dy(); y++ {
		var sb strings.Builder
		sb.Grow(area.Dx()*12 + 64)
		fmt.Fprintf(&sb, "\x1b[38;2;%d;%d;%dm", r, g, b)
		sb.WriteString(cursorTo(area.Min.X, area.Min.Y+y))
		row := diacritic(y)
		for x := 0; x < area.Dx(); x++ {
			sb.WriteRune(placeholderRune)
			sb.WriteRune(row)
			sb.WriteRune(diacritic(x))
			sb.WriteRune(extra)
		}
		sb.WriteString("\x1b[0m")
		rows = append(rows, []byte(sb.String()))
	}
	return rows
}

// EraseRows returns one sequence per row of area that blanks its cells.
func EraseRows(area image.Rectangle) [][]byte {
	if area.Dx() <= 0 || area.Dy() <= 0 {
		return nil
	}

	rows := make([][]byte, 0, area.Dy())
	for y := 0; y < area.Dy(); y++ {
		rows = append(rows, []byte(cursorTo(area.Min.X, area.Min.Y+y)+"\x1b["+strconv.Itoa(area.Dx())+"X"))
	}
	return rows
}

// DeleteByID frees the terminal-side image stored under id.
func DeleteByID(id ProtocolID, tmux bool) []byte {
	f := FramingFor(tmux)
	return []byte(fmt.Sprintf("%s_Gq=2,a=d,d=i,i=%d%s\\%s", f.Start, uint32(id), f.Escape, f.Close))
}

// DeleteAll removes every placement and then every image the terminal holds
// for this client.
func DeleteAll(tmux bool) []byte {
	f := FramingFor(tmux)
	return []byte(fmt.Sprintf("%[1]s_Gq=2,a=d,d=a%[2]s\\%[3]s%[1]s_Gq=2,a=d,d=A%[2]s\\%[3]s", f.Start, f.Escape, f.Close))
}

// cursorTo moves the cursor to the zero-based cell (x, y).
func cursorTo(x, y int) string {
	return "\x1b[" + strconv.Itoa(y+1) + ";" + strconv.Itoa(x+1) + "H"
}

package svt

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultEncodingWorkers bounds the goroutines used by ParallelBase64Encode.
const DefaultEncodingWorkers = 4

// scratch holds encode buffers sized for one transmission chunk.
var scratch = sync.Pool{
	New: func() any {
		b := make([]byte, 0, DefaultChunkSize)
		return &b
	},
}

// Base64Encode returns the standard base64 encoding of src.
func Base64Encode(src []byte) string {
	bp := scratch.Get().(*[]byte)
	defer scratch.Put(bp)

	n := base64.StdEncoding.EncodedLen(len(src))
	buf := (*bp)[:0]
	if cap(buf) < n {
		buf = make([]byte, 0, n)
	}
	buf = base64.StdEncoding.AppendEncode(buf, src)
	*bp = buf
	return string(buf)
}

// ChunkedBase64Encode encodes data as consecutive pieces of piece raw bytes.
// When piece is a multiple of 3 the results concatenate into one valid base64
// stream, padded only at the very end.
func ChunkedBase64Encode(data []byte, piece int) []string {
	out := make([]string, pieceCount(len(data), piece))
	for i := range out {
		out[i] = Base64Encode(pieceAt(data, piece, i))
	}
	return out
}

// ParallelBase64Encode is ChunkedBase64Encode with pieces encoded concurrently.
// Output order matches the input.
func ParallelBase64Encode(data []byte, piece int) []string {
	if len(data) <= 2*piece {
		return ChunkedBase64Encode(data, piece)
	}

	out := make([]string, pieceCount(len(data), piece))
	var g errgroup.Group
	g.SetLimit(DefaultEncodingWorkers)
	for i := range out {
		g.Go(func() error {
			out[i] = Base64Encode(pieceAt(data, piece, i))
			return nil
		})
	}
	_ = g.Wait() // encoding cannot fail
	return out
}

func pieceCount(n, piece int) int {
	return (n + piece - 1) / piece
}

func pieceAt(data []byte, piece, i int) []byte {
	start := i * piece
	return data[start:min(start+piece, len(data))]
}

// zlibCompress deflates raw at level (0-9).
func zlibCompress(raw []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(raw) / 2)

	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("zlib level %d: %w", level, err)
	}
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	return buf.Bytes(), nil
}

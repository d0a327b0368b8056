package svt

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"image"
	"image/color"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / width),
				G: uint8((y * 255) / height),
				B: uint8((x + y) % 255),
				A: 255,
			})
		}
	}
	return img
}

var chunkPayload = regexp.MustCompile(`^\x1b_G([^;]*);([A-Za-z0-9+/=]*)\x1b\\$`)

// splitChunks returns the control string and base64 payload of every chunk.
func splitChunks(t *testing.T, chunks [][]byte) (controls []string, payload string) {
	t.Helper()
	var b strings.Builder
	for _, c := range chunks {
		m := chunkPayload.FindSubmatch(c)
		require.NotNil(t, m, "malformed chunk %q", c)
		controls = append(controls, string(m[1]))
		b.Write(m[2])
	}
	return controls, b.String()
}

func TestEncodeTransmitSingleChunk(t *testing.T) {
	img := createTestImage(4, 2)
	id := ProtocolID(0x00102030)

	chunks, err := EncodeTransmit(img, id, TransmitOptions{})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	controls, payload := splitChunks(t, chunks)
	assert.Equal(t, "q=2,a=T,C=1,U=1,f=24,s=4,v=2,i=1056816,m=0", controls[0])

	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	assert.Len(t, raw, 4*2*3)
	assert.Equal(t, []byte{img.Pix[0], img.Pix[1], img.Pix[2]}, raw[:3])
}

func TestEncodeTransmitChunking(t *testing.T) {
	img := createTestImage(64, 64)
	opts := TransmitOptions{ChunkSize: 512}

	chunks, err := EncodeTransmit(img, ProtocolID(42), opts)
	require.NoError(t, err)

	controls, payload := splitChunks(t, chunks)
	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err, "concatenated chunks must form one base64 stream")
	assert.Len(t, raw, 64*64*3)

	require.Greater(t, len(chunks), 2)
	assert.True(t, strings.HasPrefix(controls[0], "q=2,a=T,"))
	assert.True(t, strings.HasSuffix(controls[0], ",m=1"))
	for _, c := range controls[1 : len(controls)-1] {
		assert.Equal(t, "m=1", c)
	}
	assert.Equal(t, "m=0", controls[len(controls)-1])

	for _, c := range chunks {
		m := chunkPayload.FindSubmatch(c)
		assert.LessOrEqual(t, len(m[2]), 512)
	}
}

func TestEncodeTransmitCompressed(t *testing.T) {
	img := createTestImage(16, 16)
	chunks, err := EncodeTransmit(img, ProtocolID(7), TransmitOptions{Compress: true, Level: 6})
	require.NoError(t, err)

	controls, payload := splitChunks(t, chunks)
	assert.Contains(t, controls[0], ",o=z,")

	data, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	r, err := zlib.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, raw, 16*16*3)
}

func TestEncodeTransmitAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	img.Set(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 128})

	chunks, err := EncodeTransmit(img, ProtocolID(1), TransmitOptions{})
	require.NoError(t, err)
	controls, payload := splitChunks(t, chunks)
	assert.Contains(t, controls[0], "f=32")

	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	assert.Len(t, raw, 3*3*4)
	assert.Equal(t, []byte{10, 20, 30, 128}, raw[16:20])
}

func TestEncodeTransmitTmux(t *testing.T) {
	chunks, err := EncodeTransmit(createTestImage(2, 2), ProtocolID(9), TransmitOptions{Tmux: true})
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	s := string(chunks[0])
	assert.True(t, strings.HasPrefix(s, "\x1bPtmux;\x1b\x1b_Gq=2,"))
	assert.True(t, strings.HasSuffix(s, "\x1b\x1b\\\x1b\\"))
}

func TestEncodeTransmitEmpty(t *testing.T) {
	_, err := EncodeTransmit(image.NewRGBA(image.Rectangle{}), ProtocolID(1), TransmitOptions{})
	assert.Error(t, err)
}

func TestPlaceRows(t *testing.T) {
	id := ProtocolID(0x02102030)
	area := image.Rect(3, 1, 5, 3)

	rows := PlaceRows(area, id)
	require.Len(t, rows, 2)

	first := string(rows[0])
	assert.True(t, strings.HasPrefix(first, "\x1b[38;2;16;32;48m\x1b[2;4H"))
	assert.True(t, strings.HasSuffix(first, "\x1b[0m"))

	cells := []rune(strings.TrimSuffix(strings.TrimPrefix(first, "\x1b[38;2;16;32;48m\x1b[2;4H"), "\x1b[0m"))
	require.Len(t, cells, 2*4)
	assert.Equal(t, []rune{placeholderRune, diacritic(0), diacritic(0), diacritic(2)}, cells[:4])
	assert.Equal(t, []rune{placeholderRune, diacritic(0), diacritic(1), diacritic(2)}, cells[4:])

	second := []rune(string(rows[1]))
	assert.Contains(t, string(second), string([]rune{placeholderRune, diacritic(1), diacritic(0)}))
	assert.Contains(t, string(rows[1]), "\x1b[3;4H")

	assert.Nil(t, PlaceRows(image.Rectangle{}, id))
}

func TestEraseRows(t *testing.T) {
	rows := EraseRows(image.Rect(2, 0, 12, 2))
	require.Len(t, rows, 2)
	assert.Equal(t, "\x1b[1;3H\x1b[10X", string(rows[0]))
	assert.Equal(t, "\x1b[2;3H\x1b[10X", string(rows[1]))
	assert.Nil(t, EraseRows(image.Rectangle{}))
}

func TestDeleteSequences(t *testing.T) {
	assert.Equal(t, "\x1b_Gq=2,a=d,d=i,i=5\x1b\\", string(DeleteByID(ProtocolID(5), false)))
	assert.Equal(t, "\x1bPtmux;\x1b\x1b_Gq=2,a=d,d=i,i=5\x1b\x1b\\\x1b\\", string(DeleteByID(ProtocolID(5), true)))
	assert.Equal(t, "\x1b_Gq=2,a=d,d=a\x1b\\\x1b_Gq=2,a=d,d=A\x1b\\", string(DeleteAll(false)))
}

func TestDiacriticOutOfRange(t *testing.T) {
	assert.Equal(t, rowColumnDiacritics[0], diacritic(-1))
	assert.Equal(t, rowColumnDiacritics[0], diacritic(len(rowColumnDiacritics)))
	assert.Equal(t, rowColumnDiacritics[5], diacritic(5))
}

func TestChunkedBase64Encode(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefghij"), 100)
	want := base64.StdEncoding.EncodeToString(data)

	for _, size := range []int{3, 48, 96, 3000} {
		assert.Equal(t, want, strings.Join(ChunkedBase64Encode(data, size), ""), "chunk size %d", size)
		assert.Equal(t, want, strings.Join(ParallelBase64Encode(data, size), ""), "chunk size %d", size)
	}
}

func TestTransmitOptionsChunkSize(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{0, DefaultChunkSize},
		{-8, DefaultChunkSize},
		{1, 4},
		{3, 4},
		{7, 4},
		{4097, 4096},
		{8192, 8192},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TransmitOptions{ChunkSize: tt.size}.chunkSize(), "chunk size %d", tt.size)
	}
}

func TestEncodeTransmitTinyChunkSize(t *testing.T) {
	img := createTestImage(2, 2)
	full, err := EncodeTransmit(img, ProtocolID(7), TransmitOptions{})
	require.NoError(t, err)
	_, want := splitChunks(t, full)

	for _, size := range []int{1, 2, 3} {
		chunks, err := EncodeTransmit(img, ProtocolID(7), TransmitOptions{ChunkSize: size})
		require.NoError(t, err, "chunk size %d", size)
		_, payload := splitChunks(t, chunks)
		assert.Equal(t, want, payload, "chunk size %d", size)
		assert.Len(t, chunks, len(want)/4, "chunk size %d", size)
	}
}

package svt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveProtocolID(t *testing.T) {
	for _, seed := range []uint32{0, 1, 42, 1 << 20, 0xFFFFFFFF} {
		id := DeriveProtocolID(seed, DefaultIDMinComponent)
		assert.True(t, id.Satisfies(DefaultIDMinComponent), "seed %d gave %s", seed, id)
		assert.Equal(t, id, DeriveProtocolID(seed, DefaultIDMinComponent), "derivation must be deterministic")
	}
}

func TestDeriveProtocolIDFallback(t *testing.T) {
	id := DeriveProtocolID(7, 255)
	assert.True(t, id.Satisfies(255))
}

func TestProtocolIDBytes(t *testing.T) {
	id := ProtocolID(0x01A0B0C0)
	r, g, b := id.RGB()
	assert.Equal(t, uint8(0xA0), r)
	assert.Equal(t, uint8(0xB0), g)
	assert.Equal(t, uint8(0xC0), b)
	assert.Equal(t, uint8(0x01), id.Extra())
	assert.Equal(t, "27308224", id.String())

	assert.False(t, ProtocolID(0x00000F10).Satisfies(16))
}

func TestNewProtocolID(t *testing.T) {
	assert.True(t, NewProtocolID(DefaultIDMinComponent).Satisfies(DefaultIDMinComponent))
}

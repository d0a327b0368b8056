package svt

import (
	"fmt"
	"math/bits"
	"os"
)

// DefaultIDMinComponent is the smallest value allowed in each colour byte of
// the protocol id. Placeholder cells carry the id as a truecolor foreground,
// and terminals that quantize very dark colours can merge low ids together.
const DefaultIDMinComponent = 16

const (
	idMultiplier  = 0x9E3779B1
	idMaxAttempts = 10000
	idFallback    = ProtocolID(0x10101010)
)

// ProtocolID is the single image id this process uses for every transmission.
// It is derived once at startup and never reassigned.
type ProtocolID uint32

// NewProtocolID derives the id for this process from its pid.
func NewProtocolID(minComponent uint8) ProtocolID {
	return DeriveProtocolID(uint32(os.Getpid()), minComponent)
}

// DeriveProtocolID mixes seed into an id whose r, g and b bytes are all at
// least minComponent. It walks successive seeds until one qualifies and falls
// back to a fixed value if none does.
func DeriveProtocolID(seed uint32, minComponent uint8) ProtocolID {
	idx := seed
	for range idMaxAttempts {
		id := ProtocolID(bits.RotateLeft32(idx*idMultiplier, 8))
		if id.Satisfies(minComponent) {
			return id
		}
		idx++
	}

	if idFallback.Satisfies(minComponent) {
		return idFallback
	}
	m := uint32(minComponent)
	return ProtocolID(0x10<<24 | m<<16 | m<<8 | m)
}

// RGB returns the three colour bytes encoded as the placeholder foreground.
func (id ProtocolID) RGB() (r, g, b uint8) {
	return uint8(id >> 16), uint8(id >> 8), uint8(id)
}

// Extra returns the high byte, carried as the third placeholder diacritic.
func (id ProtocolID) Extra() uint8 {
	return uint8(id >> 24)
}

// Satisfies reports whether every colour byte is at least minComponent.
func (id ProtocolID) Satisfies(minComponent uint8) bool {
	r, g, b := id.RGB()
	return r >= minComponent && g >= minComponent && b >= minComponent
}

func (id ProtocolID) String() string {
	return fmt.Sprintf("%d", uint32(id))
}

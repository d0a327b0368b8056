package svt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInTmuxEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"plain", map[string]string{"TERM": "xterm-kitty"}, false},
		{"tmux socket", map[string]string{"TMUX": "/tmp/tmux-1000/default,1234,0"}, true},
		{"term program", map[string]string{"TERM_PROGRAM": "tmux"}, true},
		{"other program", map[string]string{"TERM_PROGRAM": "WezTerm"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inTmuxEnv(func(k string) string { return tt.env[k] }))
		})
	}
}

func TestFramingFor(t *testing.T) {
	plain := FramingFor(false)
	assert.Equal(t, "\x1b", plain.Start)
	assert.Empty(t, plain.Close)

	tmux := FramingFor(true)
	assert.Equal(t, "\x1bPtmux;\x1b\x1b", tmux.Start)
	assert.Equal(t, "\x1b\x1b", tmux.Escape)
	assert.Equal(t, "\x1b\\", tmux.Close)
}

package svt

// OSC52 builds a clipboard write of data. Under tmux the sequence is sent
// through the passthrough wrapper so it reaches the outer terminal.
func OSC52(data []byte, tmux bool) []byte {
	f := FramingFor(tmux)
	return []byte(f.Start + "]52;c;" + Base64Encode(data) + "\x07" + f.Close)
}

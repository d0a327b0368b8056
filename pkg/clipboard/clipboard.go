// Package clipboard copies image files to the system clipboard as PNG.
package clipboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrUnavailable is returned when no image-capable clipboard tool exists.
var ErrUnavailable = errors.New("clipboard: no image clipboard utility found")

// backend is implemented per platform/tool.
type backend interface {
	copyPNG(ctx context.Context, data []byte) error
	name() string
}

type detector struct {
	goos     string
	getenv   func(string) string
	lookPath func(string) error
	readFile func(string) ([]byte, error)
}

func defaultDetector() detector {
	return detector{
		goos:   runtime.GOOS,
		getenv: os.Getenv,
		lookPath: func(bin string) error {
			_, err := exec.LookPath(bin)
			return err
		},
		readFile: os.ReadFile,
	}
}

// Sink copies images through the best tool found at construction.
type Sink struct {
	b backend
}

// New picks a backend for the current platform.
func New() (*Sink, error) {
	b, err := chooseBackend(defaultDetector())
	if err != nil {
		return nil, err
	}
	return &Sink{b: b}, nil
}

// Backend names the tool in use.
func (s *Sink) Backend() string {
	return s.b.name()
}

// CopyImage places the image at path on the clipboard, converting it to PNG
// first when needed.
func (s *Sink) CopyImage(ctx context.Context, path string) error {
	data, err := PNGBytes(path)
	if err != nil {
		return err
	}
	if err := s.b.copyPNG(ctx, data); err != nil {
		return fmt.Errorf("clipboard: %s failed: %w", s.b.name(), err)
	}
	return nil
}

// PNGBytes returns the file as PNG data. PNG files are passed through.
func PNGBytes(path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return os.ReadFile(path)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("clipboard: failed to decode %s: %w", path, err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("clipboard: failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func chooseBackend(det detector) (backend, error) {
	switch det.goos {
	case "darwin":
		if det.lookPath("osascript") == nil {
			return osascriptBackend{}, nil
		}
		return nil, fmt.Errorf("%w: osascript not found", ErrUnavailable)

	case "linux":
		if isWSL(det) && det.lookPath("powershell.exe") == nil && det.lookPath("wslpath") == nil {
			return wslBackend{}, nil
		}
		if isWayland(det) && det.lookPath("wl-copy") == nil {
			return wlBackend{}, nil
		}
		if det.getenv("DISPLAY") != "" && det.lookPath("xclip") == nil {
			return xclipBackend{}, nil
		}
		if det.lookPath("wl-copy") == nil {
			return wlBackend{}, nil
		}
		return nil, fmt.Errorf("%w (install wl-clipboard or xclip)", ErrUnavailable)

	default:
		return nil, fmt.Errorf("%w on %s", ErrUnavailable, det.goos)
	}
}

func isWSL(det detector) bool {
	if det.getenv("WSL_DISTRO_NAME") != "" || det.getenv("WSL_INTEROP") != "" {
		return true
	}
	data, err := det.readFile("/proc/version")
	return err == nil && bytes.Contains(bytes.ToLower(data), []byte("microsoft"))
}

func isWayland(det detector) bool {
	if strings.ToLower(det.getenv("XDG_SESSION_TYPE")) == "wayland" {
		return true
	}
	return det.getenv("WAYLAND_DISPLAY") != ""
}

// ==== Backends ====

func runWithStdin(ctx context.Context, data []byte, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// withTempPNG hands fn a file holding data, for tools that only read paths.
func withTempPNG(data []byte, fn func(path string) error) error {
	f, err := os.CreateTemp("", "svt-clip-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return fn(f.Name())
}

type wlBackend struct{}

func (wlBackend) copyPNG(ctx context.Context, data []byte) error {
	return runWithStdin(ctx, data, "wl-copy", "--type", "image/png")
}

func (wlBackend) name() string { return "wl-copy" }

type xclipBackend struct{}

func (xclipBackend) copyPNG(ctx context.Context, data []byte) error {
	return runWithStdin(ctx, data, "xclip", "-selection", "clipboard", "-t", "image/png", "-i")
}

func (xclipBackend) name() string { return "xclip" }

type osascriptBackend struct{}

func (osascriptBackend) copyPNG(ctx context.Context, data []byte) error {
	return withTempPNG(data, func(path string) error {
		script := fmt.Sprintf(`set the clipboard to (read (POSIX file %q) as «class PNGf»)`, path)
		return exec.CommandContext(ctx, "osascript", "-e", script).Run()
	})
}

func (osascriptBackend) name() string { return "osascript" }

type wslBackend struct{}

func (wslBackend) copyPNG(ctx context.Context, data []byte) error {
	return withTempPNG(data, func(path string) error {
		out, err := exec.CommandContext(ctx, "wslpath", "-w", path).Output()
		if err != nil {
			return err
		}
		win := strings.ReplaceAll(strings.TrimSpace(string(out)), "'", "''")
		script := "Add-Type -AssemblyName System.Windows.Forms; Add-Type -AssemblyName System.Drawing; " +
			"[System.Windows.Forms.Clipboard]::SetImage([System.Drawing.Image]::FromFile('" + win + "'))"
		return exec.CommandContext(ctx, "powershell.exe", "-NoProfile", "-STA", "-Command", script).Run()
	})
}

func (wslBackend) name() string { return "wsl-clipboard" }

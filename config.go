package svt

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultCellAspectRatio is the usual height/width ratio of a terminal cell.
const DefaultCellAspectRatio = 2.0

const envPrefix = "SVT_"

// Config holds the viewer settings. Values come from the defaults, then the
// config file, then SVT_* environment variables, and are clamped last.
type Config struct {
	NavLatchMS         int     `toml:"nav_latch_ms"`
	ForceAltScreen     bool    `toml:"force_alt_screen"`
	NoAltScreen        bool    `toml:"no_alt_screen"`
	RenderCacheSize    int     `toml:"render_cache_size"`
	PrefetchCount      int     `toml:"prefetch_count"`
	Debug              bool    `toml:"debug"`
	KGPNoCompress      bool    `toml:"kgp_no_compress"`
	CompressLevel      int     `toml:"compress_level"`
	TmuxKittyMaxPixels int64   `toml:"tmux_kitty_max_pixels"`
	TraceWorker        bool    `toml:"trace_worker"`
	CellAspectRatio    float64 `toml:"cell_aspect_ratio"`
	ResizeFilter       string  `toml:"resize_filter"`
	TileFilter         string  `toml:"tile_filter"`
	PrefetchThreads    int     `toml:"prefetch_threads"`
	TileThreads        int     `toml:"tile_threads"`
	IDMinComponent     int     `toml:"kgp_id_min_component"`
	ChunkSize          int     `toml:"chunk_size"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		NavLatchMS:         int(DefaultNavLatch / time.Millisecond),
		RenderCacheSize:    DefaultRenderCacheSize,
		PrefetchCount:      DefaultPrefetchCount,
		CompressLevel:      6,
		TmuxKittyMaxPixels: 1_500_000,
		CellAspectRatio:    DefaultCellAspectRatio,
		ResizeFilter:       "triangle",
		TileFilter:         "nearest",
		PrefetchThreads:    DefaultPrefetchThreads,
		TileThreads:        DefaultTileThreads,
		IDMinComponent:     DefaultIDMinComponent,
		ChunkSize:          DefaultChunkSize,
	}
}

// DefaultConfigPath returns ~/.config/svt/config.toml, honouring
// XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "svt", "config.toml")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "svt", "config.toml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "svt", "config.toml")
}

// LoadConfig reads path (the default path when empty) and applies the
// process environment. A missing file is not an error. A malformed file
// is reported, and the returned config then holds defaults plus env.
func LoadConfig(path string) (Config, error) {
	return loadConfig(path, os.LookupEnv)
}

func loadConfig(path string, lookup func(string) (string, bool)) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := DefaultConfig()
	var loadErr error

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		fileCfg := DefaultConfig()
		if err := toml.Unmarshal(data, &fileCfg); err != nil {
			loadErr = fmt.Errorf("parsing config %s: %w", path, err)
		} else {
			cfg = fileCfg
		}
	case !errors.Is(err, fs.ErrNotExist):
		loadErr = fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg.applyEnv(lookup)
	cfg.clamp()
	return cfg, loadErr
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	ints := map[string]*int{
		"NAV_LATCH_MS":         &c.NavLatchMS,
		"RENDER_CACHE_SIZE":    &c.RenderCacheSize,
		"PREFETCH_COUNT":       &c.PrefetchCount,
		"COMPRESS_LEVEL":       &c.CompressLevel,
		"PREFETCH_THREADS":     &c.PrefetchThreads,
		"TILE_THREADS":         &c.TileThreads,
		"KGP_ID_MIN_COMPONENT": &c.IDMinComponent,
		"CHUNK_SIZE":           &c.ChunkSize,
	}
	for name, dst := range ints {
		if v, ok := lookup(envPrefix + name); ok {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = n
			}
		}
	}

	// presence alone enables a flag
	flags := map[string]*bool{
		"FORCE_ALT_SCREEN": &c.ForceAltScreen,
		"NO_ALT_SCREEN":    &c.NoAltScreen,
		"DEBUG":            &c.Debug,
		"KGP_NO_COMPRESS":  &c.KGPNoCompress,
		"TRACE_WORKER":     &c.TraceWorker,
	}
	for name, dst := range flags {
		if _, ok := lookup(envPrefix + name); ok {
			*dst = true
		}
	}

	if v, ok := lookup(envPrefix + "TMUX_KITTY_MAX_PIXELS"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			c.TmuxKittyMaxPixels = n
		}
	}
	if v, ok := lookup(envPrefix + "CELL_ASPECT_RATIO"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.CellAspectRatio = f
		}
	}
	if v, ok := lookup(envPrefix + "RESIZE_FILTER"); ok {
		c.ResizeFilter = v
	}
	if v, ok := lookup(envPrefix + "TILE_FILTER"); ok {
		c.TileFilter = v
	}
}

func (c *Config) clamp() {
	c.NavLatchMS = clampInt(c.NavLatchMS, 0, 5000)
	c.RenderCacheSize = clampInt(c.RenderCacheSize, 1, 500)
	c.PrefetchCount = max(c.PrefetchCount, 0)
	c.CompressLevel = clampInt(c.CompressLevel, 0, 9)
	c.TmuxKittyMaxPixels = max(c.TmuxKittyMaxPixels, 0)
	c.PrefetchThreads = clampInt(c.PrefetchThreads, 1, 8)
	c.TileThreads = clampInt(c.TileThreads, 1, 8)
	c.IDMinComponent = clampInt(c.IDMinComponent, 0, 128)
	c.ChunkSize = clampInt(c.ChunkSize, 512, 65536)
	c.ChunkSize -= c.ChunkSize % 4

	if math.IsNaN(c.CellAspectRatio) {
		c.CellAspectRatio = DefaultCellAspectRatio
	}
	c.CellAspectRatio = min(max(c.CellAspectRatio, 1.0), 4.0)
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// NavLatch returns the settle window as a duration.
func (c Config) NavLatch() time.Duration {
	return time.Duration(c.NavLatchMS) * time.Millisecond
}

// CompressionLevel returns the zlib level, or ok=false when compression is
// disabled.
func (c Config) CompressionLevel() (level int, ok bool) {
	if c.KGPNoCompress {
		return 0, false
	}
	return c.CompressLevel, true
}

// UseAltScreen decides whether to switch to the alternate screen. tmux
// defaults to the main screen unless forced.
func (c Config) UseAltScreen(tmux bool) bool {
	return c.ForceAltScreen || (!c.NoAltScreen && !tmux)
}

// TransmitOptions derives the encoder settings.
func (c Config) TransmitOptions(tmux bool) TransmitOptions {
	level, ok := c.CompressionLevel()
	return TransmitOptions{Compress: ok, Level: level, Tmux: tmux, ChunkSize: c.ChunkSize}
}

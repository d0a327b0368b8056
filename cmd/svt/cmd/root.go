/*
Copyright © 2026 svt authors

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/discard"
	"github.com/apex/log/handlers/logfmt"
	"github.com/spf13/cobra"
	"github.com/svt-term/svt"
	"github.com/svt-term/svt/pkg/clipboard"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// traceLogPath receives stage timings when trace_worker is enabled.
const traceLogPath = "/tmp/svt_worker.log"

var (
	verbose    bool
	configPath string
	watch      bool
	forceTmux  bool
)

func init() {
	log.SetHandler(clihander.Default)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $XDG_CONFIG_HOME/svt/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&forceTmux, "tmux", false, "Force tmux passthrough framing")
	rootCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Reload images when they change on disk")
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "svt [flags] <image|dir>...",
	Short: "Simple viewer in terminal for the Kitty graphics protocol",
	Long: `Browse images in a Kitty graphics capable terminal.

Keys: j/k next/prev, h/l, H/L page, g/G first/last (with counts), f fit,
t tiles, enter open tile, r reload, y copy path, Y copy image, q quit.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runViewer,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func setup() (svt.Config, bool) {
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
	cfg, err := svt.LoadConfig(configPath)
	if err != nil {
		log.WithError(err).Warn("ignoring config file")
	}
	if verbose {
		cfg.Debug = true
	}

	if forceTmux {
		svt.ForceTmux(true)
	}
	tmux := svt.InTmux()
	if tmux && !svt.EnableTmuxPassthrough() {
		log.Warn("could not enable tmux allow-passthrough; images may not appear")
	}
	return cfg, tmux
}

func runViewer(cmd *cobra.Command, args []string) error {
	images, err := svt.CollectImages(args)
	if err != nil {
		return err
	}
	cfg, tmux := setup()

	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("svt needs an interactive terminal")
	}
	if !svt.KittySupported(tmux) {
		log.Warn("terminal did not report Kitty graphics support")
	}
	tinfo := svt.DetectTerminal(tmux)
	log.WithFields(log.Fields{
		"images": len(images),
		"size":   tinfo.Size,
		"cell":   tinfo.Cell,
		"tmux":   tmux,
	}).Debug("starting viewer")

	trace, closeTrace, err := openTrace(cfg)
	if err != nil {
		return err
	}
	defer closeTrace()

	sink, err := clipboard.New()
	if err != nil {
		log.WithError(err).Debug("image clipboard unavailable")
	}

	restore, err := enterScreen(cfg.UseAltScreen(tmux))
	if err != nil {
		return err
	}
	defer restore()

	// the cli handler would scribble over the viewer
	prevHandler := log.Log.(*log.Logger).Handler
	if trace != nil {
		log.SetHandler(trace.Handler)
	} else {
		log.SetHandler(discard.Default)
	}
	defer log.SetHandler(prevHandler)

	return view(cmd.Context(), images, cfg, tinfo, sink, trace)
}

func view(ctx context.Context, images []string, cfg svt.Config, tinfo svt.Terminal, sink *clipboard.Sink, trace *log.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var imageSink svt.ImageSink
	if sink != nil {
		imageSink = sink
	}

	thumbs := svt.NewThumbCache(svt.DefaultThumbCacheSize)
	writer := svt.NewWriter(os.Stdout, imageSink, log.Log)
	workerOpts := svt.WorkerOptions{TileThreads: cfg.TileThreads, Thumbs: thumbs, Logger: log.Log}
	if trace != nil {
		workerOpts.Trace = trace
	}
	worker := svt.NewWorker(workerOpts)
	defer worker.Close()

	var prefetch svt.Prefetch
	if cfg.PrefetchCount > 0 {
		p := svt.NewPrefetcher(cfg.PrefetchThreads, thumbs, log.Log)
		defer p.Close()
		prefetch = p
	}

	app, err := svt.NewApp(svt.AppOptions{
		Images:   images,
		Config:   cfg,
		Terminal: tinfo,
		ID:       svt.NewProtocolID(uint8(cfg.IDMinComponent)),
		Output:   writer,
		Capture:  worker,
		Prefetch: prefetch,
		Logger:   log.Log,
	})
	if err != nil {
		return err
	}

	actions := make(chan svt.Action, 16)

	// stdin reads cannot be interrupted, so this goroutine is left behind
	// on exit and dies with the process
	go func() {
		if err := svt.ReadActions(ctx, os.Stdin, actions); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Debug("input reader stopped")
		}
		select {
		case actions <- svt.Action{Kind: svt.ActionQuit}:
		case <-ctx.Done():
		}
	}()

	go forwardResizes(ctx, actions)

	if watch {
		w, err := svt.NewWatcher(images, svt.DefaultWatchDebounce, log.Log)
		if err != nil {
			log.WithError(err).Warn("file watching disabled")
		} else {
			defer w.Close()
			go func() {
				if err := w.Run(ctx, actions); err != nil && !errors.Is(err, context.Canceled) {
					log.WithError(err).Debug("watcher stopped")
				}
			}()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return writer.Run(gctx)
	})
	g.Go(func() error {
		defer writer.Close()
		return app.Run(gctx, actions)
	})
	return g.Wait()
}

func forwardResizes(ctx context.Context, actions chan<- svt.Action) {
	sig := make(chan os.Signal, 1)
	notifyResize(sig)
	for {
		select {
		case <-sig:
			size, err := svt.TerminalSize(int(os.Stdout.Fd()))
			if err != nil {
				continue
			}
			select {
			case actions <- svt.Action{Kind: svt.ActionResize, Size: size}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// enterScreen puts the terminal in raw mode, optionally on the alternate
// screen, and hides the cursor.
func enterScreen(alt bool) (func(), error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to enter raw mode: %w", err)
	}

	enter, leave := screenSequences(alt)
	fmt.Fprint(os.Stdout, enter)

	return func() {
		fmt.Fprint(os.Stdout, leave)
		term.Restore(fd, oldState)
	}, nil
}

func screenSequences(alt bool) (enter, leave string) {
	enter, leave = "\x1b[?25l\x1b[2J", "\x1b[0m\x1b[2J\x1b[H\x1b[?25h"
	if alt {
		enter = "\x1b[?1049h" + enter
		leave += "\x1b[?1049l"
	}
	return enter, leave
}

// openTrace returns a logfmt logger writing to traceLogPath when stage
// tracing or debug output is enabled.
func openTrace(cfg svt.Config) (*log.Logger, func(), error) {
	if !cfg.TraceWorker && !cfg.Debug {
		return nil, func() {}, nil
	}
	f, err := os.OpenFile(traceLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open trace log: %w", err)
	}
	return newTraceLogger(f), func() { f.Close() }, nil
}

func newTraceLogger(w io.Writer) *log.Logger {
	l := &log.Logger{Handler: logfmt.New(w), Level: log.InfoLevel}
	if verbose {
		l.Level = log.DebugLevel
	}
	l.WithField("start", time.Now().Format(time.RFC3339)).Info("trace opened")
	return l
}

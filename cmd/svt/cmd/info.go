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
	"fmt"
	"image"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/apex/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/svt-term/svt"
)

var previewPath string

func init() {
	infoCmd.Flags().StringVarP(&previewPath, "preview", "p", "", "Render a half-block preview of an image")
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show terminal detection results and the effective config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, tmux := setup()
		t := svt.DetectTerminal(tmux)
		kitty := svt.KittySupported(tmux)

		printInfo(os.Stdout, t, kitty, cfg)

		if previewPath == "" {
			return nil
		}
		img, err := svt.DecodeFile(previewPath)
		if err != nil {
			return err
		}
		log.WithField("size", img.Bounds().Size()).Debug("preview")
		fmt.Println(svt.Preview(img, image.Pt(t.Size.X, t.Size.Y-1), false))
		return nil
	},
}

func printInfo(w io.Writer, t svt.Terminal, kitty bool, cfg svt.Config) {
	out := termenv.NewOutput(w)
	heading := func(s string) {
		fmt.Fprintln(w, out.String(s).Bold())
	}
	yesNo := func(b bool) termenv.Style {
		if b {
			return out.String("yes").Foreground(termenv.ANSIGreen)
		}
		return out.String("no").Foreground(termenv.ANSIRed)
	}

	heading("Terminal Environment:")
	fmt.Fprintf(w, "  TERM: %s\n", os.Getenv("TERM"))
	fmt.Fprintf(w, "  TERM_PROGRAM: %s\n", os.Getenv("TERM_PROGRAM"))
	fmt.Fprintf(w, "  In tmux: %s\n", yesNo(t.Tmux))
	if t.Tmux {
		fmt.Fprintf(w, "  Passthrough enabled: %s\n", yesNo(svt.IsTmuxPassthroughEnabled()))
	}
	fmt.Fprintln(w)

	heading("Graphics:")
	fmt.Fprintf(w, "  Kitty graphics: %s\n", yesNo(kitty))
	fmt.Fprintf(w, "  Window: %dx%d cells\n", t.Size.X, t.Size.Y)
	fmt.Fprintf(w, "  Cell: %dx%d pixels\n", t.Cell.X, t.Cell.Y)
	g := svt.CalculateTileGrid(t.Size, cfg.CellAspectRatio)
	fmt.Fprintf(w, "  Tile grid: %dx%d\n", g.Cols, g.Rows)
	fmt.Fprintf(w, "  Protocol id: %s\n", svt.NewProtocolID(uint8(cfg.IDMinComponent)))
	fmt.Fprintln(w)

	path := configPath
	if path == "" {
		path = svt.DefaultConfigPath()
	}
	heading("Config (" + path + "):")
	enc := toml.NewEncoder(w)
	enc.Indent = "  "
	if err := enc.Encode(cfg); err != nil {
		log.WithError(err).Warn("failed to print config")
	}
}

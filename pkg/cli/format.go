// Package cli provides output helpers for the nrx command: colours for
// status lines and aligned tables for the export summary.
package cli

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ColorEnabled reports whether w should receive ANSI colours: w is a
// terminal and NO_COLOR (no-color.org) is unset.
func ColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Palette applies colours when enabled and passes text through otherwise.
type Palette struct {
	Enabled bool
}

// NewPalette returns a palette for w.
func NewPalette(w io.Writer) Palette {
	return Palette{Enabled: ColorEnabled(w)}
}

func (p Palette) wrap(code, s string) string {
	if !p.Enabled {
		return s
	}
	return code + s + "\033[0m"
}

// Green wraps s in ANSI green.
func (p Palette) Green(s string) string { return p.wrap("\033[32m", s) }

// Yellow wraps s in ANSI yellow.
func (p Palette) Yellow(s string) string { return p.wrap("\033[33m", s) }

// Red wraps s in ANSI red.
func (p Palette) Red(s string) string { return p.wrap("\033[31m", s) }

// Bold wraps s in ANSI bold.
func (p Palette) Bold(s string) string { return p.wrap("\033[1m", s) }

// DotPad pads name with dots to the given width.
// Example: DotPad("interface map", 24) → "interface map .........."
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	dots := width - len(name) - 1
	return name + " " + strings.Repeat(".", dots)
}

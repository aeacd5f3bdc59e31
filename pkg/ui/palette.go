// Package ui renders lifecycle events and container listings for the terminal.
package ui

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Palette holds the colors used for CLI output
type Palette struct {
	Success *color.Color
	Warning *color.Color
	Error   *color.Color
	Info    *color.Color
	Header  *color.Color
	Prefix  *color.Color
}

// NewPalette returns the CLI colors, or a palette that prints plain text when
// enabled is false
func NewPalette(enabled bool) *Palette {
	p := &Palette{
		Success: color.New(color.FgGreen),
		Warning: color.New(color.FgYellow),
		Error:   color.New(color.FgRed),
		Info:    color.New(color.FgCyan),
		Header:  color.New(color.FgBlue, color.Bold),
		Prefix:  color.New(color.FgMagenta),
	}
	for _, c := range []*color.Color{p.Success, p.Warning, p.Error, p.Info, p.Header, p.Prefix} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// PaletteFor enables colors only when w is a terminal and NO_COLOR is unset
func PaletteFor(w io.Writer) *Palette {
	return NewPalette(IsTerminal(w) && os.Getenv("NO_COLOR") == "")
}

// IsTerminal reports whether w writes to a terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

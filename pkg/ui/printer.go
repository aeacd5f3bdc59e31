package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dyluth/dbuilder/pkg/events"
)

// Printer writes lifecycle events as human readable lines. Container output
// goes to out with every line prefixed by the container name; notices and
// errors go to errOut.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	name    string
	palette *Palette

	downloads   int
	atLineStart bool
}

// NewPrinter creates a printer for the container called name
func NewPrinter(out, errOut io.Writer, name string, palette *Palette) *Printer {
	return &Printer{
		out:         out,
		errOut:      errOut,
		name:        name,
		palette:     palette,
		atLineStart: true,
	}
}

// Attach subscribes the printer to every event on bus
func (p *Printer) Attach(bus *events.Bus) (detach func()) {
	return bus.Subscribe(p.Handle)
}

// Handle prints a single event
func (p *Printer) Handle(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Name {
	case events.Download:
		if p.downloads == 0 {
			p.notice(p.palette.Info.Sprintf("Building image %s...", p.name))
		}
		p.downloads++
	case events.Complete:
		p.notice(p.palette.Success.Sprintf("Built image %s", p.name))
		p.downloads = 0
	case events.StoppedAndRemoved:
		p.notice(p.palette.Warning.Sprintf("Removed stale container %s", shortID(e.Data)))
	case events.Run:
		p.notice(p.palette.Info.Sprintf("Created container %s (%s)", p.name, shortID(e.Data)))
	case events.Data:
		p.writeOutput(e.Data)
	case events.Error:
		msg := e.Data
		if e.Err != nil {
			msg = e.Err.Error()
		}
		p.notice(p.palette.Error.Sprintf("Error: %s", msg))
	}
}

func (p *Printer) notice(line string) {
	_, _ = fmt.Fprintln(p.errOut, line)
}

// writeOutput prefixes each line of container output. Chunks need not end
// on a line boundary.
func (p *Printer) writeOutput(data string) {
	var b strings.Builder
	prefix := p.palette.Prefix.Sprintf("%s | ", p.name)
	for len(data) > 0 {
		if p.atLineStart {
			b.WriteString(prefix)
			p.atLineStart = false
		}
		i := strings.IndexByte(data, '\n')
		if i < 0 {
			b.WriteString(data)
			break
		}
		b.WriteString(data[:i+1])
		data = data[i+1:]
		p.atLineStart = true
	}
	_, _ = io.WriteString(p.out, b.String())
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

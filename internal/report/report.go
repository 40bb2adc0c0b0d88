// Package report prints diagnostics for humans.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/jhump/annogen/processor"
)

// ColorMode selects whether output is colored.
type ColorMode string

const (
	ColorAuto ColorMode = "auto"
	ColorOn   ColorMode = "on"
	ColorOff  ColorMode = "off"
)

// ParseColorMode validates a color mode name.
func ParseColorMode(s string) (ColorMode, error) {
	switch m := ColorMode(s); m {
	case ColorAuto, ColorOn, ColorOff:
		return m, nil
	case "":
		return ColorAuto, nil
	default:
		return "", fmt.Errorf("unknown color mode %q, expecting auto, on or off", s)
	}
}

// UseColor reports whether output to w should be colored in the given mode.
// In auto mode, only terminals get color.
func UseColor(mode ColorMode, w io.Writer) bool {
	switch mode {
	case ColorOn:
		return true
	case ColorOff:
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Counts tallies the diagnostics printed, by severity.
type Counts struct {
	Errors, Warnings, Notes int
}

// Printer is a processor.Messager that writes each diagnostic as one line in
// the format used by the go command, "file:line:col: severity: message".
// File names are shown relative to Dir when possible.
type Printer struct {
	// Dir is the directory paths are shown relative to. If empty, paths are
	// shown as they are.
	Dir string

	mu     sync.Mutex
	w      io.Writer
	counts Counts
	sev    map[processor.Severity]*color.Color
	loc    *color.Color
}

var _ processor.Messager = (*Printer)(nil)

// NewPrinter returns a printer that writes to w.
func NewPrinter(w io.Writer, useColor bool) *Printer {
	p := &Printer{
		w: w,
		sev: map[processor.Severity]*color.Color{
			processor.SeverityError:   color.New(color.FgRed, color.Bold),
			processor.SeverityWarning: color.New(color.FgYellow, color.Bold),
			processor.SeverityNote:    color.New(color.FgCyan),
		},
		loc: color.New(color.Bold),
	}
	for _, c := range p.sev {
		setColor(c, useColor)
	}
	setColor(p.loc, useColor)
	return p
}

func setColor(c *color.Color, on bool) {
	if on {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
}

// Report prints the given diagnostic.
func (p *Printer) Report(d processor.Diagnostic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch d.Severity {
	case processor.SeverityError:
		p.counts.Errors++
	case processor.SeverityWarning:
		p.counts.Warnings++
	default:
		p.counts.Notes++
	}
	sev := d.Severity.String()
	if c, ok := p.sev[d.Severity]; ok {
		sev = c.Sprint(sev)
	}
	if !d.Pos.IsValid() {
		fmt.Fprintf(p.w, "%s: %s\n", sev, d.Message)
		return
	}
	pos := d.Pos
	pos.Filename = p.relative(pos.Filename)
	fmt.Fprintf(p.w, "%s: %s: %s\n", p.loc.Sprint(pos.String()), sev, d.Message)
}

// Counts returns the number of diagnostics printed so far.
func (p *Printer) Counts() Counts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts
}

func (p *Printer) relative(path string) string {
	if p.Dir == "" || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(p.Dir, path)
	if err != nil || filepath.IsAbs(rel) || len(rel) >= 2 && rel[:2] == ".." {
		return path
	}
	return rel
}

// Summary returns a one-line summary of the counts, like "2 errors, 1 warning".
func (c Counts) Summary() string {
	return fmt.Sprintf("%s, %s", plural(c.Errors, "error"), plural(c.Warnings, "warning"))
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

package processor

import (
	"context"
	"fmt"
	"go/token"
	"log/slog"
)

// Severity indicates how serious a diagnostic is. Only errors cause
// Config.Execute to report failure.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityNote:
		return "note"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Diagnostic is a message about a problem in annotated sources, attributed to
// a source position and, usually, to the element that caused it.
type Diagnostic struct {
	Severity Severity
	Pos      token.Position
	Message  string
	// Element is the annotated element the diagnostic is about. It may be nil.
	Element *AnnotatedElement
}

// String formats the diagnostic like compiler output: "file:line:col: error: msg".
func (d Diagnostic) String() string {
	if !d.Pos.IsValid() {
		return fmt.Sprintf("%v: %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("%v: %v: %s", d.Pos, d.Severity, d.Message)
}

// Errorf returns an error diagnostic for the given element at the given
// position.
func Errorf(el *AnnotatedElement, pos token.Position, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Severity: SeverityError, Pos: pos, Element: el, Message: fmt.Sprintf(format, args...)}
}

// Warnf returns a warning diagnostic for the given element at the given
// position.
func Warnf(el *AnnotatedElement, pos token.Position, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Pos: pos, Element: el, Message: fmt.Sprintf(format, args...)}
}

// DiagnosticFromError converts an error into an error diagnostic. If the
// error is an *ErrorWithPosition, its position is used in place of pos.
func DiagnosticFromError(el *AnnotatedElement, pos token.Position, err error) Diagnostic {
	if ewp, ok := err.(*ErrorWithPosition); ok {
		return Diagnostic{Severity: SeverityError, Pos: ewp.Pos(), Element: el, Message: ewp.Underlying().Error()}
	}
	return Diagnostic{Severity: SeverityError, Pos: pos, Element: el, Message: err.Error()}
}

// Messager receives diagnostics as they are reported.
type Messager interface {
	Report(d Diagnostic)
}

// MessagerFunc adapts a function to the Messager interface.
type MessagerFunc func(d Diagnostic)

func (f MessagerFunc) Report(d Diagnostic) {
	f(d)
}

// Collector is a Messager that accumulates all diagnostics it receives.
type Collector struct {
	Diagnostics []Diagnostic
}

func (c *Collector) Report(d Diagnostic) {
	c.Diagnostics = append(c.Diagnostics, d)
}

// Errors returns the collected diagnostics with error severity.
func (c *Collector) Errors() []Diagnostic {
	var errs []Diagnostic
	for _, d := range c.Diagnostics {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	return errs
}

type countingMessager struct {
	inner            Messager
	errors, warnings int
	// extraction diagnostics repeat every round since the same sources are
	// loaded again
	reported map[string]struct{}
}

func (m *countingMessager) Report(d Diagnostic) {
	switch d.Severity {
	case SeverityError:
		m.errors++
	case SeverityWarning:
		m.warnings++
	}
	if m.inner != nil {
		m.inner.Report(d)
	}
}

func (m *countingMessager) reportOnce(d Diagnostic) {
	key := d.String()
	if _, ok := m.reported[key]; ok {
		return
	}
	m.reported[key] = struct{}{}
	m.Report(d)
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

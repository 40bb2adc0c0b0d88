package report

import (
	"bytes"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhump/annogen/processor"
)

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false)
	p.Dir = "/work"
	p.Report(processor.Diagnostic{
		Severity: processor.SeverityError,
		Pos:      token.Position{Filename: "/work/pkg/a.go", Line: 3, Column: 4},
		Message:  "duplicate generated name",
	})
	p.Report(processor.Diagnostic{
		Severity: processor.SeverityWarning,
		Pos:      token.Position{Filename: "/elsewhere/b.go", Line: 1, Column: 1},
		Message:  "modified file kept",
	})
	p.Report(processor.Diagnostic{Severity: processor.SeverityNote, Message: "no position"})

	assert.Equal(t, "pkg/a.go:3:4: error: duplicate generated name\n"+
		"/elsewhere/b.go:1:1: warning: modified file kept\n"+
		"note: no position\n", buf.String())
	assert.Equal(t, Counts{Errors: 1, Warnings: 1, Notes: 1}, p.Counts())
	assert.Equal(t, "1 error, 1 warning", p.Counts().Summary())
	assert.Equal(t, "0 errors, 2 warnings", Counts{Warnings: 2}.Summary())
}

func TestPrinter_Color(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true)
	p.Report(processor.Diagnostic{Severity: processor.SeverityError, Message: "bad"})
	assert.Contains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "bad")
}

func TestColorMode(t *testing.T) {
	m, err := ParseColorMode("")
	require.NoError(t, err)
	assert.Equal(t, ColorAuto, m)
	_, err = ParseColorMode("always")
	assert.Error(t, err)

	var buf bytes.Buffer
	assert.True(t, UseColor(ColorOn, &buf))
	assert.False(t, UseColor(ColorOff, &buf))
	// a buffer is never a terminal
	assert.False(t, UseColor(ColorAuto, &buf))
}

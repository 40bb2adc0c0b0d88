package processor_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhump/annogen/internal/apttest"
	"github.com/jhump/annogen/processor"
)

// chain generates a new annotated type for each annotated type named GenN,
// until N reaches the "limit" option.
func chain(env *processor.Environment, round processor.Round) error {
	limit, _ := env.Options["limit"].(int)
	for _, el := range round.Elements {
		n, err := strconv.Atoi(strings.TrimPrefix(el.Name, "Gen"))
		if err != nil || n >= limit {
			continue
		}
		name := fmt.Sprintf("Gen%d", n+1)
		w, err := env.Filer.CreateSource(el.Context.Package.Path, strings.ToLower(name)+".go", el)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "package %s\n\n// @annogen.Builder\ntype %s struct{}\n", el.Context.Package.Name, name)
		if err := w.Close(); err != nil {
			return err
		}
	}
	return nil
}

// recorder records the elements of every round.
type recorder struct {
	rounds [][]string
}

func (r *recorder) process(_ *processor.Environment, round processor.Round) error {
	var names []string
	for _, el := range round.Elements {
		names = append(names, el.Name)
	}
	r.rounds = append(r.rounds, names)
	return nil
}

var rec recorder

func init() {
	processor.RegisterProcessor("test-chain", chain)
	processor.RegisterProcessor("test-record", rec.process)
	processor.RegisterProcessor("test-fail", func(*processor.Environment, processor.Round) error {
		return errors.New("boom")
	})
	processor.RegisterProcessor("test-duplicate", func(env *processor.Environment, round processor.Round) error {
		for i := 0; i < 2; i++ {
			if _, err := env.Filer.CreateSource("example.com/gen", "same.go"); err != nil {
				return err
			}
		}
		return nil
	})
	processor.RegisterProcessor("test-report", func(env *processor.Environment, round processor.Round) error {
		for _, el := range round.Elements {
			env.Messager.Report(processor.Warnf(el, el.Pos, "looked at %s", el.Name))
		}
		return nil
	})
}

func source(path string) apttest.Source {
	return apttest.Source{Path: path, Files: map[string]string{"gen.go": `package gen

// @annogen.Builder
type Gen0 struct{}
`}}
}

func TestExecute_Rounds(t *testing.T) {
	rec = recorder{}
	var out processor.MemoryOutput
	loader := &apttest.Loader{Sources: []apttest.Source{source("example.com/gen")}}
	cfg := processor.Config{
		Processors:    []string{"test-record", "test-chain"},
		Options:       map[string]map[string]interface{}{"test-chain": {"limit": 3}},
		Loader:        loader,
		OutputFactory: out.Factory(),
	}
	res, err := cfg.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Rounds)
	assert.Equal(t, 4, loader.Loads)
	// elements are only seen in the round in which they first appear
	assert.Equal(t, [][]string{{"Gen0"}, {"Gen1"}, {"Gen2"}, {"Gen3"}}, rec.rounds)
	assert.Equal(t, []string{
		"/src/example.com/gen/gen1.go",
		"/src/example.com/gen/gen2.go",
		"/src/example.com/gen/gen3.go",
	}, out.Paths())
	require.Len(t, res.Files, 3)
	assert.Equal(t, []string{"type example.com/gen.Gen1"}, res.Files[1].Origins)
	assert.Equal(t, "example.com/gen", res.Files[1].Package)
}

func TestExecute_MaxRounds(t *testing.T) {
	cfg := processor.Config{
		Processors:    []string{"test-chain"},
		Options:       map[string]map[string]interface{}{"test-chain": {"limit": 10}},
		MaxRounds:     2,
		Loader:        &apttest.Loader{Sources: []apttest.Source{source("example.com/gen")}},
		OutputFactory: (&processor.MemoryOutput{}).Factory(),
	}
	res, err := cfg.Execute(context.Background())
	require.ErrorIs(t, err, processor.ErrFatal)
	assert.Contains(t, err.Error(), "did not complete after 2 rounds")
	assert.Len(t, res.Files, 2)
}

func TestExecute_MaxRoundsReachedExactly(t *testing.T) {
	// the last round generates nothing, so no further round is needed
	cfg := processor.Config{
		Processors:    []string{"test-chain"},
		Options:       map[string]map[string]interface{}{"test-chain": {"limit": 1}},
		MaxRounds:     2,
		Loader:        &apttest.Loader{Sources: []apttest.Source{source("example.com/gen")}},
		OutputFactory: (&processor.MemoryOutput{}).Factory(),
	}
	res, err := cfg.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rounds)
}

func TestExecute_Diagnostics(t *testing.T) {
	var msgs processor.Collector
	loader := &apttest.Loader{Sources: []apttest.Source{
		source("example.com/gen"),
		{Path: "example.com/bad", Files: map[string]string{"bad.go": `package bad

// @annogen.Builder(
type Bad struct{}
`}},
	}}
	cfg := processor.Config{
		Processors:    []string{"test-report"},
		Loader:        loader,
		OutputFactory: (&processor.MemoryOutput{}).Factory(),
		Messager:      &msgs,
	}
	res, err := cfg.Execute(context.Background())
	assert.Equal(t, processor.ErrDiagnostics, err)
	assert.Equal(t, []string{"example.com/bad", "example.com/gen"}, res.Packages)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Warnings)
	require.Len(t, msgs.Diagnostics, 2)
	assert.Equal(t, processor.SeverityError, msgs.Diagnostics[0].Severity)
	assert.Equal(t, "/src/example.com/bad/bad.go", msgs.Diagnostics[0].Pos.Filename)
	assert.Equal(t, "looked at Gen0", msgs.Diagnostics[1].Message)
	assert.Len(t, msgs.Errors(), 1)
	assert.True(t, strings.HasPrefix(msgs.Diagnostics[1].String(), "/src/example.com/gen/gen.go:4:6: warning: "))
}

func TestExecute_ProcessorError(t *testing.T) {
	cfg := processor.Config{
		Processors: []string{"test-fail"},
		Loader:     &apttest.Loader{Sources: []apttest.Source{source("example.com/gen")}},
	}
	_, err := cfg.Execute(context.Background())
	require.ErrorIs(t, err, processor.ErrFatal)
	assert.EqualError(t, err, "annotation processing failed: processor test-fail: boom")
}

func TestExecute_ProcessorErrorKeepsCounts(t *testing.T) {
	var msgs processor.Collector
	cfg := processor.Config{
		Processors: []string{"test-fail"},
		Loader: &apttest.Loader{Sources: []apttest.Source{
			source("example.com/gen"),
			{Path: "example.com/bad", Files: map[string]string{"bad.go": `package bad

// @annogen.Builder(
type Bad struct{}
`}},
		}},
		Messager: &msgs,
	}
	res, err := cfg.Execute(context.Background())
	require.ErrorIs(t, err, processor.ErrFatal)
	require.NotNil(t, res)
	// the malformed annotation is reported before the processor fails
	assert.Equal(t, 1, res.Errors)
	assert.Zero(t, res.Warnings)
	assert.Len(t, msgs.Diagnostics, 1)
}

func TestExecute_UnknownProcessor(t *testing.T) {
	cfg := processor.Config{
		Processors: []string{"test-nope"},
		Loader:     &apttest.Loader{},
	}
	_, err := cfg.Execute(context.Background())
	assert.EqualError(t, err, `unknown processor "test-nope"`)
}

func TestExecute_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loader := &apttest.Loader{Sources: []apttest.Source{source("example.com/gen")}}
	cfg := processor.Config{Processors: []string{"test-record"}, Loader: loader}
	_, err := cfg.Execute(ctx)
	require.ErrorIs(t, err, processor.ErrFatal)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, loader.Loads)
}

func TestExecute_OutputDir(t *testing.T) {
	dir := t.TempDir()
	cfg := processor.Config{
		Processors: []string{"test-chain"},
		Options:    map[string]map[string]interface{}{"test-chain": {"limit": 1}},
		Loader:     &apttest.Loader{Sources: []apttest.Source{source("example.com/gen")}},
		OutputDir:  dir,
	}
	res, err := cfg.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	path := filepath.Join(dir, "example.com", "gen", "gen1.go")
	assert.Equal(t, path, res.Files[0].Path)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, res.Files[0].Content, content)
}

func TestExecute_DuplicateFile(t *testing.T) {
	cfg := processor.Config{
		Processors:    []string{"test-duplicate"},
		Loader:        &apttest.Loader{Sources: []apttest.Source{source("example.com/gen")}},
		OutputFactory: (&processor.MemoryOutput{}).Factory(),
	}
	_, err := cfg.Execute(context.Background())
	require.ErrorIs(t, err, processor.ErrFatal)
	assert.Contains(t, err.Error(), "file /src/example.com/gen/same.go was already generated")
}

func TestRegistry(t *testing.T) {
	names := processor.RegisteredProcessorNames()
	assert.Contains(t, names, "test-chain")
	assert.IsIncreasing(t, names)
	assert.Len(t, processor.AllRegisteredProcessors(), len(names))
	assert.NotNil(t, processor.LookupProcessor("test-chain"))
	assert.Nil(t, processor.LookupProcessor("test-nope"))
	assert.Panics(t, func() {
		processor.RegisterProcessor("test-chain", chain)
	})
}

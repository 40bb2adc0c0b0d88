package processor

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

var (
	// ErrFatal is wrapped by errors that abort processing, such as failures
	// to load packages or to write output files.
	ErrFatal = errors.New("annotation processing failed")

	// ErrDiagnostics is returned by Config.Execute when processing ran to
	// completion but one or more error diagnostics were reported.
	ErrDiagnostics = errors.New("annotation processing reported errors")
)

// DefaultMaxRounds is the number of rounds after which Config.Execute gives up
// if processors keep generating sources with new annotated elements.
const DefaultMaxRounds = 10

// ErrorWithPosition is an error that has source position information associated
// with it. The position indicates the location in a source file where the error
// was encountered.
type ErrorWithPosition struct {
	err error
	pos token.Position
}

// Error implements the error interface. It includes position information in the
// returned message.
func (e *ErrorWithPosition) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.pos.Filename, e.pos.Line, e.pos.Column, e.err.Error())
}

// Underlying returns the underlying error.
func (e *ErrorWithPosition) Underlying() error {
	return e.err
}

// Unwrap returns the underlying error, for use with errors.Is and errors.As.
func (e *ErrorWithPosition) Unwrap() error {
	return e.err
}

// Pos returns the location in source where the underlying error was
// encountered.
func (e *ErrorWithPosition) Pos() token.Position {
	return e.pos
}

// NewErrorWithPosition returns the given error, but associates it with the
// given source code location.
func NewErrorWithPosition(pos token.Position, err error) *ErrorWithPosition {
	return &ErrorWithPosition{err: err, pos: pos}
}

// OutputFactory is a function that creates a writer to an output for the
// given location. Output factories typically use os.OpenFile to create files
// but this function allows the behavior to be customized.
type OutputFactory func(path string) (io.WriteCloser, error)

// DefaultOutputFactory returns an OutputFactory that writes files to disk,
// creating parent directories as needed. Existing files are truncated.
func DefaultOutputFactory() OutputFactory {
	return func(path string) (io.WriteCloser, error) {
		if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
			return nil, fmt.Errorf("could not create output directory %s: %w", filepath.Dir(path), err)
		}
		return os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0666)
	}
}

// Processor is a function that acts on annotations and is invoked once per
// round by Config.Execute. Typical processor implementations validate
// annotations, report problems via env.Messager, and generate code via
// env.Filer.
//
// Problems with annotated sources should be reported as diagnostics. A
// returned error aborts processing entirely.
type Processor func(env *Environment, round Round) error

// Environment gives a processor access to the facilities of the run.
type Environment struct {
	// Messager receives diagnostics.
	Messager Messager
	// Filer creates generated source files.
	Filer *Filer
	// Logger is scoped to the processor being invoked.
	Logger *slog.Logger
	// Options are the processor-specific options from the configuration.
	Options map[string]interface{}
}

// Round is the immutable input for one processing round.
type Round struct {
	// Number is the one-based round number.
	Number int
	// Packages are all packages loaded for this round.
	Packages []*Context
	// Elements are the annotated elements not seen in an earlier round, in
	// source order.
	Elements []*AnnotatedElement
}

// Config represents the configuration for running one or more Processors.
// Callers should configure the exported fields and then call the Execute
// method to actually invoke the processors.
type Config struct {
	// Patterns are the package patterns to process, like "./...". They are
	// only used when Loader is nil.
	Patterns []string
	// Dir is the directory in which patterns are resolved.
	Dir string
	// BuildTags are passed to the build system when loading packages.
	BuildTags []string
	// IncludeTests causes test files to be processed, too.
	IncludeTests bool
	// OutputDir, if not empty, is a root directory where generated files are
	// written, in sub-directories named after their package import paths.
	// By default, files are written next to the sources of their package.
	OutputDir string

	// Processors are the names of the registered processors to run. If empty,
	// all registered processors are run.
	Processors []string
	// Options are processor options, keyed by processor name.
	Options map[string]map[string]interface{}
	// MaxRounds limits the number of rounds. Zero means DefaultMaxRounds.
	MaxRounds int

	// Loader loads the packages for each round. If nil, a PackagesLoader
	// is created from Patterns, Dir, BuildTags, and IncludeTests.
	Loader Loader
	// OutputFactory creates output files. If nil, DefaultOutputFactory is used.
	OutputFactory OutputFactory
	// Messager receives all diagnostics. If nil, they are only counted.
	Messager Messager
	// Logger receives progress logs. If nil, nothing is logged.
	Logger *slog.Logger
}

// Result summarizes a processing run.
type Result struct {
	// Rounds is the number of rounds that ran, including the final round.
	Rounds int
	// Packages are the import paths of all processed packages.
	Packages []string
	// Files are the generated files, in the order they were written.
	Files []GeneratedFile
	// Errors and Warnings count the diagnostics reported.
	Errors, Warnings int
}

type namedProcessor struct {
	name string
	fn   Processor
}

// Execute invokes the configured processors for the configured packages,
// writing outputs using the configured OutputFactory.
//
// Processing happens in rounds. After a round in which files were generated,
// packages are loaded again and any annotated elements that appear in the
// generated files are processed in the next round. Processing finishes with
// the first round that has no new annotated elements.
//
// The returned error wraps ErrFatal if processing was aborted. It is
// ErrDiagnostics if all rounds ran but errors were reported.
func (cfg *Config) Execute(ctx context.Context) (*Result, error) {
	procs, err := cfg.resolveProcessors()
	if err != nil {
		return nil, err
	}
	maxRounds := cfg.MaxRounds
	if maxRounds == 0 {
		maxRounds = DefaultMaxRounds
	} else if maxRounds < 0 {
		return nil, fmt.Errorf("max rounds must not be negative, got %d", maxRounds)
	}
	loader := cfg.Loader
	if loader == nil {
		loader = &PackagesLoader{
			Dir:          cfg.Dir,
			Patterns:     cfg.Patterns,
			BuildTags:    cfg.BuildTags,
			IncludeTests: cfg.IncludeTests,
		}
	}
	factory := cfg.OutputFactory
	if factory == nil {
		factory = DefaultOutputFactory()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(discardHandler{})
	}

	msgr := &countingMessager{inner: cfg.Messager, reported: map[string]struct{}{}}
	filer := newFiler(factory, cfg.OutputDir)
	seen := map[string]struct{}{}
	res := &Result{}
	finish := func() {
		res.Files = filer.Files()
		res.Errors, res.Warnings = msgr.errors, msgr.warnings
	}

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			finish()
			return res, fmt.Errorf("%w: %w", ErrFatal, err)
		}

		pkgs, err := loader.Load(ctx, filer.overlay())
		if err != nil {
			finish()
			return res, fmt.Errorf("%w: loading packages: %w", ErrFatal, err)
		}
		res.Rounds = n
		if n == 1 {
			for _, pkg := range pkgs {
				res.Packages = append(res.Packages, pkg.Path)
			}
		}

		round := Round{Number: n}
		for _, pkg := range pkgs {
			for _, terr := range pkg.TypeErrors {
				logger.Warn("type error", "package", pkg.Path, "error", terr)
			}
			c := NewContext(pkg)
			for _, d := range c.Diagnostics() {
				msgr.reportOnce(d)
			}
			round.Packages = append(round.Packages, c)
			for _, el := range c.Elements() {
				if _, ok := seen[el.Key()]; ok {
					continue
				}
				seen[el.Key()] = struct{}{}
				round.Elements = append(round.Elements, el)
			}
		}

		if len(round.Elements) == 0 {
			logger.Debug("final round", "round", n)
			break
		}
		if n > maxRounds {
			finish()
			return res, fmt.Errorf("%w: processing did not complete after %d rounds", ErrFatal, maxRounds)
		}
		logger.Debug("starting round", "round", n, "elements", len(round.Elements))

		filer.setPackages(pkgs)
		written := len(filer.files)
		for _, p := range procs {
			env := &Environment{
				Messager: msgr,
				Filer:    filer,
				Logger:   logger.With("processor", p.name),
				Options:  cfg.Options[p.name],
			}
			if err := p.fn(env, round); err != nil {
				finish()
				return res, fmt.Errorf("%w: processor %s: %w", ErrFatal, p.name, err)
			}
		}
		logger.Info("round complete", "round", n, "files", len(filer.files)-written)
		if len(filer.files) == written {
			// nothing new was generated, so reloading cannot find new elements
			break
		}
	}

	finish()
	if msgr.errors > 0 {
		return res, ErrDiagnostics
	}
	return res, nil
}

func (cfg *Config) resolveProcessors() ([]namedProcessor, error) {
	names := cfg.Processors
	if len(names) == 0 {
		names = RegisteredProcessorNames()
	} else {
		names = append([]string(nil), names...)
		sort.Strings(names)
	}
	if len(names) == 0 {
		return nil, errors.New("no processors registered")
	}
	procs := make([]namedProcessor, 0, len(names))
	for i, name := range names {
		if i > 0 && names[i-1] == name {
			continue
		}
		p := LookupProcessor(name)
		if p == nil {
			return nil, fmt.Errorf("unknown processor %q", name)
		}
		procs = append(procs, namedProcessor{name: name, fn: p})
	}
	return procs, nil
}

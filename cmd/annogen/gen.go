package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jhump/annogen/internal/config"
	"github.com/jhump/annogen/internal/gitattributes"
	"github.com/jhump/annogen/internal/logging"
	"github.com/jhump/annogen/internal/manifest"
	"github.com/jhump/annogen/internal/report"
	"github.com/jhump/annogen/processor"
)

func newGenCmd(a *app) *cobra.Command {
	genCmd := &cobra.Command{
		Use:   "gen [packages]",
		Short: "Run annotation processors and write generated files",
		Long: `Loads the given packages (default "./...") and runs annotation processors
in rounds until no new annotated elements are generated. Generated files are
written next to the sources of their package unless --output-dir is given.`,
		RunE: func(cmd *cobra.Command, packages []string) error {
			if len(packages) > 0 {
				a.v.Set("packages", packages)
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			return a.gen(cmd, cfg)
		},
	}
	flags := genCmd.Flags()
	flags.StringP("output-dir", "o", "", "root directory for generated files, in sub-directories named by import path")
	flags.StringSlice("build-tags", nil, "build tags used when loading packages")
	flags.Bool("include-tests", false, "also process test files")
	flags.StringSliceP("processor", "p", nil, "name of a processor to run (default is all registered processors)")
	flags.Int("max-rounds", processor.DefaultMaxRounds, "maximum number of processing rounds")
	flags.Bool("dry-run", false, "run all rounds but only print the files that would be written")
	flags.Bool("gitattributes", false, "mark generated files in .gitattributes")
	flags.Bool("manifest", true, "record generated files in "+manifest.FileName+" and remove stale ones")
	return genCmd
}

func (a *app) gen(cmd *cobra.Command, cfg *config.Config) error {
	stderr := cmd.ErrOrStderr()
	logger, printer, err := newOutputs(cfg, stderr)
	if err != nil {
		return err
	}
	if cfg.File != "" {
		logger.Debug("using config file", "file", cfg.File)
	}

	pc := &processor.Config{
		Patterns:     cfg.Packages,
		Dir:          cfg.WorkDir,
		BuildTags:    cfg.BuildTags,
		IncludeTests: cfg.IncludeTests,
		OutputDir:    cfg.OutputDir,
		Processors:   cfg.Processors,
		Options:      cfg.Options,
		MaxRounds:    cfg.MaxRounds,
		Loader:       a.loader,
		Messager:     printer,
		Logger:       logger,
	}
	var mem *processor.MemoryOutput
	if cfg.DryRun {
		mem = &processor.MemoryOutput{}
		pc.OutputFactory = mem.Factory()
	}

	res, err := pc.Execute(cmd.Context())
	if err != nil && !errors.Is(err, processor.ErrDiagnostics) {
		return err
	}
	failed := err != nil

	if cfg.DryRun {
		for _, p := range mem.Paths() {
			cmd.Printf("would write %s\n", relative(cfg.WorkDir, p))
		}
	} else if !failed {
		// outputs are incomplete when errors were reported, so the
		// manifest and .gitattributes are only updated after a clean run
		if err := a.record(cfg, res, printer, logger); err != nil {
			return err
		}
	}

	counts := printer.Counts()
	cmd.Printf("%d files generated in %d rounds (%s)\n", len(res.Files), res.Rounds, counts.Summary())
	if failed {
		return fmt.Errorf("%s reported", report.Counts{Errors: res.Errors, Warnings: res.Warnings}.Summary())
	}
	return nil
}

// record updates the manifest, removing files that are no longer generated,
// and the .gitattributes file.
func (a *app) record(cfg *config.Config, res *processor.Result, printer *report.Printer, logger *slog.Logger) error {
	next, err := manifest.New(cfg.WorkDir, res.Files)
	if err != nil {
		return err
	}
	if cfg.Manifest {
		path := filepath.Join(cfg.WorkDir, manifest.FileName)
		prev, err := manifest.Load(path)
		if err != nil {
			return err
		}
		removed, modified, err := manifest.RemoveStale(cfg.WorkDir, prev.Stale(next, res.Packages))
		if err != nil {
			return err
		}
		for _, p := range removed {
			logger.Info("removed stale file", "file", relative(cfg.WorkDir, p))
		}
		for _, p := range modified {
			printer.Report(processor.Diagnostic{
				Severity: processor.SeverityWarning,
				Message:  fmt.Sprintf("%s is no longer generated but was modified, so it was not removed", relative(cfg.WorkDir, p)),
			})
		}
		next.Retain(prev, res.Packages)
		if err := next.Save(path); err != nil {
			return err
		}
	}
	if cfg.GitAttributes {
		if err := gitattributes.Update(cfg.WorkDir, next.Paths()); err != nil {
			return err
		}
	}
	return nil
}

func newOutputs(cfg *config.Config, w io.Writer) (*slog.Logger, *report.Printer, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	mode, err := report.ParseColorMode(cfg.Color)
	if err != nil {
		return nil, nil, err
	}
	printer := report.NewPrinter(w, report.UseColor(mode, w))
	printer.Dir = cfg.WorkDir
	return logging.New(w, level), printer, nil
}

func relative(dir, path string) string {
	if rel, err := filepath.Rel(dir, path); err == nil {
		return rel
	}
	return path
}

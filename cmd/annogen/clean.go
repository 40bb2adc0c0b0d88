package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jhump/annogen/internal/gitattributes"
	"github.com/jhump/annogen/internal/manifest"
	"github.com/jhump/annogen/processor"
)

func newCleanCmd(a *app) *cobra.Command {
	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove the files recorded in " + manifest.FileName,
		Long: `Removes every generated file recorded in the manifest. Files that were
modified after they were generated are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, printer, err := newOutputs(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			path := filepath.Join(cfg.WorkDir, manifest.FileName)
			m, err := manifest.Load(path)
			if err != nil {
				return err
			}
			removed, modified, err := manifest.RemoveStale(cfg.WorkDir, m.Files)
			if err != nil {
				return err
			}
			for _, p := range removed {
				logger.Debug("removed", "file", relative(cfg.WorkDir, p))
			}
			for _, p := range modified {
				printer.Report(processor.Diagnostic{
					Severity: processor.SeverityWarning,
					Message:  fmt.Sprintf("%s was modified after it was generated, so it was not removed", relative(cfg.WorkDir, p)),
				})
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
			if cfg.GitAttributes {
				if err := gitattributes.Update(cfg.WorkDir, nil); err != nil {
					return err
				}
			}
			cmd.Printf("%d files removed\n", len(removed))
			return nil
		},
	}
	cleanCmd.Flags().Bool("gitattributes", false, "also remove the annogen block from .gitattributes")
	return cleanCmd
}

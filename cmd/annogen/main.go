// Command annogen runs annotation processors over Go packages. By default it
// runs the processor for the annotations in github.com/jhump/annogen, which
// generates builders, serializers, and facades.
//
// Typical use is from a go:generate directive:
//
//	//go:generate go run github.com/jhump/annogen/cmd/annogen gen ./...
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	// registers the annogen processor
	_ "github.com/jhump/annogen/generator"
	"github.com/jhump/annogen/internal/config"
	"github.com/jhump/annogen/processor"
)

// app holds state shared by the commands.
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
	// loader replaces the go/packages loader in tests.
	loader processor.Loader
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "annogen",
		Short:        "Generate code from annotations in Go doc comments",
		SilenceUsage: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is annogen.yaml in the work directory)")
	flags.StringP("work-dir", "w", "", "directory in which packages are resolved (default is the current directory)")
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.String("log-level", "info", "log level (debug|info|warn|error)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output, same as --log-level=debug")

	rootCmd.AddCommand(newGenCmd(a), newCleanCmd(a))
	return rootCmd
}

// loadConfig binds the flags of the command being run, which may share names
// with flags of other commands, and loads the config.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("processor"); f != nil {
		if err := a.v.BindPFlag("processors", f); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return nil, err
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := newRootCmd(&app{v: config.New()})
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

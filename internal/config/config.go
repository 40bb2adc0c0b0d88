// Package config loads the settings of the annogen command from a config
// file, environment variables, and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jhump/annogen/internal/logging"
	"github.com/jhump/annogen/internal/report"
	"github.com/jhump/annogen/processor"
)

// FileName is the base name of the config file searched for in the work
// directory. Any extension viper supports may be used, like annogen.yaml.
const FileName = "annogen"

// EnvPrefix is the prefix of environment variables that override settings.
// For example, ANNOGEN_MAX_ROUNDS sets max-rounds.
const EnvPrefix = "ANNOGEN"

// Config holds the settings for one run.
type Config struct {
	Packages      []string `mapstructure:"packages"`
	WorkDir       string   `mapstructure:"work-dir"`
	OutputDir     string   `mapstructure:"output-dir"`
	BuildTags     []string `mapstructure:"build-tags"`
	IncludeTests  bool     `mapstructure:"include-tests"`
	Processors    []string `mapstructure:"processors"`
	MaxRounds     int      `mapstructure:"max-rounds"`
	LogLevel      string   `mapstructure:"log-level"`
	Color         string   `mapstructure:"color"`
	GitAttributes bool     `mapstructure:"gitattributes"`
	Manifest      bool     `mapstructure:"manifest"`
	DryRun        bool     `mapstructure:"dry-run"`
	// Options are processor options, keyed by processor name. Keys are
	// lower-cased.
	Options map[string]map[string]interface{} `mapstructure:"options"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// New returns a viper instance with defaults for every setting and
// environment overrides enabled.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("packages", []string{"./..."})
	v.SetDefault("work-dir", "")
	v.SetDefault("output-dir", "")
	v.SetDefault("build-tags", []string{})
	v.SetDefault("include-tests", false)
	v.SetDefault("processors", []string{})
	v.SetDefault("max-rounds", processor.DefaultMaxRounds)
	v.SetDefault("log-level", "info")
	v.SetDefault("color", string(report.ColorAuto))
	v.SetDefault("gitattributes", false)
	v.SetDefault("manifest", true)
	v.SetDefault("dry-run", false)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds each flag in the set whose name is a setting key.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || !isKey(f.Name) {
			return
		}
		err = v.BindPFlag(f.Name, f)
	})
	return err
}

func isKey(name string) bool {
	switch name {
	case "packages", "work-dir", "output-dir", "build-tags", "include-tests", "processors",
		"max-rounds", "log-level", "color", "gitattributes", "manifest", "dry-run":
		return true
	}
	return false
}

// Load reads the config file and decodes all settings. If file is empty,
// an annogen config file in the work directory is used when there is one.
func Load(v *viper.Viper, file string) (*Config, error) {
	workDir := v.GetString("work-dir")
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		workDir = wd
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, err
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(workDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if cfg.WorkDir == "" {
		cfg.WorkDir = workDir
	} else if cfg.WorkDir, err = filepath.Abs(cfg.WorkDir); err != nil {
		return nil, err
	}
	if cfg.OutputDir != "" && !filepath.IsAbs(cfg.OutputDir) {
		cfg.OutputDir = filepath.Join(cfg.WorkDir, cfg.OutputDir)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Packages) == 0 {
		return errors.New("invalid config: no packages to process")
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("invalid config: max-rounds must not be negative, got %d", c.MaxRounds)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := report.ParseColorMode(c.Color); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

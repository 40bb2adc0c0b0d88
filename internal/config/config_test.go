package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	v := New()
	v.Set("work-dir", dir)
	cfg, err := Load(v, "")
	require.NoError(t, err)

	want := &Config{
		Packages:  []string{"./..."},
		WorkDir:   dir,
		MaxRounds: 10,
		LogLevel:  "info",
		Color:     "auto",
		Manifest:  true,
	}
	if diff := cmp.Diff(want, cfg, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("unexpected config (-want +got):\n%s", diff)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "annogen.yaml"), `
packages: [./api/..., ./model]
output-dir: gen
build-tags: [integration]
max-rounds: 3
gitattributes: true
options:
  annogen:
    builder_suffix: Maker
`)
	v := New()
	v.Set("work-dir", dir)
	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "annogen.yaml"), cfg.File)
	assert.Equal(t, []string{"./api/...", "./model"}, cfg.Packages)
	assert.Equal(t, filepath.Join(dir, "gen"), cfg.OutputDir)
	assert.Equal(t, []string{"integration"}, cfg.BuildTags)
	assert.Equal(t, 3, cfg.MaxRounds)
	assert.True(t, cfg.GitAttributes)
	assert.Equal(t, map[string]map[string]interface{}{
		"annogen": {"builder_suffix": "Maker"},
	}, cfg.Options)
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	writeFile(t, path, "log-level = \"debug\"\ncolor = \"off\"\n")
	v := New()
	v.Set("work-dir", dir)
	cfg, err := Load(v, path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "off", cfg.Color)

	_, err = Load(New(), filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "reading config")
}

func TestLoad_EnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "annogen.json"), `{"max-rounds": 4, "log-level": "warn"}`)
	t.Setenv("ANNOGEN_MAX_ROUNDS", "6")
	t.Setenv("ANNOGEN_INCLUDE_TESTS", "true")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("work-dir", "", "")
	flags.Bool("verbose", false, "")
	require.NoError(t, flags.Parse([]string{"--log-level=error", "--work-dir=" + dir}))

	v := New()
	require.NoError(t, BindFlags(v, flags))
	cfg, err := Load(v, "")
	require.NoError(t, err)
	// flags win over the environment, which wins over the file
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, 6, cfg.MaxRounds)
	assert.True(t, cfg.IncludeTests)
	assert.Equal(t, dir, cfg.WorkDir)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name, content, err string
	}{
		{"rounds", "max-rounds: -1\n", "max-rounds must not be negative"},
		{"level", "log-level: loud\n", `unknown log level "loud"`},
		{"color", "color: always\n", `unknown color mode "always"`},
		{"packages", "packages: []\n", "no packages to process"},
		{"syntax", "packages: [\n", "reading config"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, "annogen.yaml"), tc.content)
			v := New()
			v.Set("work-dir", dir)
			_, err := Load(v, "")
			assert.ErrorContains(t, err, tc.err)
		})
	}
}

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "migrate", "mappings", "status", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "petro-etl", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommand_Flags(t *testing.T) {
	assert.True(t, rootCmd.SilenceUsage)
	assert.Equal(t, version, rootCmd.Version)
	for _, name := range []string{"config", "env-file", "log-level"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "root should have --%s flag", name)
	}
}

func parseRootFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "petro-etl"}
	addRootFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return c
}

func TestLoadConfig_FilesAndOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "petro.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: debug\netl:\n  min_cohort: 6\n"), 0o644))
	envPath := filepath.Join(dir, "ops.env")
	require.NoError(t, os.WriteFile(envPath, []byte("PETRO_SERVER_PORT=3100\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PETRO_SERVER_PORT") }) //nolint:errcheck

	c, err := loadConfig(parseRootFlags(t, "--config", cfgPath, "--env-file", envPath))
	require.NoError(t, err)
	assert.Equal(t, cfgPath, c.File)
	assert.Equal(t, 6, c.ETL.MinCohort)
	assert.Equal(t, 3100, c.Server.Port)
	assert.Equal(t, "debug", c.Log.Level)

	c, err = loadConfig(parseRootFlags(t, "--config", cfgPath, "--log-level", "error"))
	require.NoError(t, err)
	assert.Equal(t, "error", c.Log.Level)
}

func TestLoadConfig_MissingConfigFile(t *testing.T) {
	_, err := loadConfig(parseRootFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRunCommand_Flags(t *testing.T) {
	mode := runCmd.Flags().Lookup("mode")
	require.NotNil(t, mode)
	assert.Equal(t, "full", mode.DefValue)

	for _, name := range []string{"category", "strict", "dry-run"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s flag", name)
	}
}

func TestMappingsCommand_HasGenerate(t *testing.T) {
	var found bool
	for _, c := range mappingsCmd.Commands() {
		if c.Name() == "generate" {
			found = true
		}
	}
	assert.True(t, found)

	out := mappingsGenerateCmd.Flags().Lookup("out")
	require.NotNil(t, out)
	assert.Equal(t, "mappings/proposed.xlsx", out.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestStatusCommand_Flags(t *testing.T) {
	limit := statusCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "20", limit.DefValue)
	assert.NotNil(t, statusCmd.Flags().Lookup("status"))
	assert.Error(t, statusCmd.Args(statusCmd, []string{"a", "b"}))
	assert.NoError(t, statusCmd.Args(statusCmd, []string{"a"}))
}

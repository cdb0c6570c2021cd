package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/petro-etl/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:     "petro-etl",
	Short:   "Petroleum transaction ETL pipeline",
	Long:    "Extracts BDC and OMC transaction spreadsheets, standardizes labels against an approved mapping, converts volumes, scores quality and loads a Postgres star schema.",
	Version: version,
	// Pipeline failures are not usage errors.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		zap.L().Debug("configuration loaded",
			zap.String("version", version),
			zap.String("config_file", cfg.File),
			zap.String("store_driver", cfg.Store.Driver),
			zap.Int("sources", len(cfg.ETL.Sources)),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	addRootFlags(rootCmd)
}

func addRootFlags(c *cobra.Command) {
	f := c.PersistentFlags()
	f.String("config", "", "config file (default ./config.yaml when present)")
	f.String("env-file", "", "env file loaded before PETRO_* variables are read (default ./.env when present)")
	f.String("log-level", "", "override log.level (debug, info, warn, error)")
}

// loadConfig reads configuration from the files named by the persistent
// flags and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	c, err := config.LoadFrom(configFile, envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		c.Log.Level = level
	}
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

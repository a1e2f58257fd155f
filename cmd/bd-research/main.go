// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the bd-research CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/bd-research/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	logger  = zap.NewNop()
	verbose bool

	// loadedSecrets holds credentials loaded from the secrets directory at startup.
	loadedSecrets map[string]string
)

// rootCmd is the base command for the bd-research CLI.
var rootCmd = &cobra.Command{
	Use:   "bd-research",
	Short: "Business development research for a sector or company",
	Long: `bd-research runs the BD research pipeline: a long-running research job,
extraction of opportunities from its report, parallel lookups of internal
credentials for each opportunity, and a short validated report.

Use run for a full pipeline, parse to inspect what the extractor sees in
a research report, and history to reopen earlier runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.OutputPaths = []string{"stderr"}
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		l, err := config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l

		dir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(dir, logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./bd-research.yaml or ~/.config/bd-research/config.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets/", "directory holding tenant-id, client-id, and client-secret files")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("bd-research")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "bd-research"))
		}
	}

	viper.SetEnvPrefix("BD_RESEARCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

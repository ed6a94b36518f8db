package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pysugar/roleplay-nexus/internal/config"
	"github.com/pysugar/roleplay-nexus/internal/db"
	"github.com/pysugar/roleplay-nexus/internal/logging"
	"github.com/pysugar/roleplay-nexus/internal/version"
)

var (
	configPath string
	logLevel   string
	pingModel  string

	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:           "nexus",
		Short:         "Sales roleplay backend brokering chat, speech and Gmail",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.SetLogger(newLogger(logLevel))
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
		RunE: runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := db.InitDB(cfg.Database.Path); err != nil {
				return err
			}
			logging.Logger().Info("database migrated", "path", cfg.Database.Path)
			return nil
		},
	}

	pingCmd = &cobra.Command{
		Use:   "ping [prompt]",
		Short: "Send one prompt to a provider and print the reply",
		Args:  cobra.ExactArgs(1),
		RunE:  runPing,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nexus %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildTime)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("NEXUS_CONFIG"), "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pingCmd.Flags().StringVarP(&pingModel, "model", "m", "", "model identifier (claude, deepseek, chatgpt, alibaba, gemini)")

	rootCmd.AddCommand(serveCmd, migrateCmd, pingCmd, versionCmd)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

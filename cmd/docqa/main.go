package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docqa/internal/config"
	"docqa/internal/logger"
)

var (
	cfgPath string
	verbose bool
	logMode string
	logFile string

	cfg *config.AppConfig
	log = logger.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Ask questions about your documents",
	Long: `docqa splits a document into overlapping chunks, builds a semantic index
over them and answers questions using the most relevant passages as context.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { log.Sync() },
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/docqa/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "logger preset: development or production")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of the configured one")
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts := logger.Options{Mode: cfg.Logging.Mode, Verbose: cfg.Logging.Verbose || verbose}
	if logMode != "" {
		opts.Mode = logMode
	}
	file := cfg.Logging.File
	if logFile != "" {
		file = logFile
	}
	if file != "" {
		opts.OutputPaths = []string{file}
	}
	l, err := logger.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	log = l
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

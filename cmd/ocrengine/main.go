/**
 * OCR Engine - Main Entry Point
 *
 * Multi-provider OCR extraction with fallback, fusion and caching.
 *
 * Commands:
 * - extract: one-shot extraction of a local file or URL, prints JSON
 * - worker:  asynq consumer for async jobs plus the metrics endpoint
 * - enqueue: submits an async extraction job
 * - status:  provider statuses, health and job lookup
 */

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/ocr-engine/internal/config"
	"github.com/adverant/nexus/ocr-engine/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

// cli holds state shared by the subcommands
type cli struct {
	cfgFile  string
	envFile  string
	logLevel string
	cfg      *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "ocrengine",
		Short: "Multi-provider OCR extraction engine",
		Long: `Extracts text and structured data from images through a prioritized chain of
vision providers, degrading to local analysis when every provider fails.

Examples:
  ocrengine extract scan.png --tables
  ocrengine extract https://example.com/receipt.jpg --consensus 2
  ocrengine worker
  ocrengine enqueue invoice.png --priority high
  ocrengine status --job 0b6f...`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is ocrengine.yaml in ., ./config, $HOME/.ocrengine, /etc/ocrengine)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newExtractCmd(c),
		newWorkerCmd(c),
		newEnqueueCmd(c),
		newStatusCmd(c),
	)
	return root
}

// init loads the env file and the configuration, then configures logging
func (c *cli) init() error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", c.envFile, err)
		}
	}

	cfg, err := config.LoadConfigFile(c.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if err := logging.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	c.cfg = cfg
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

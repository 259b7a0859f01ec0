package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daviddao/mailtriage/internal/config"
	"github.com/daviddao/mailtriage/internal/logging"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	configPath  string
	jsonOutput  bool
	quietFlag   bool
	verboseFlag bool

	cfg    config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "mt",
	Short:         "mt - local-first Gmail triage with a language model",
	Long:          "mailtriage: classify recent Gmail messages with a language model, apply business rules, and label, star or archive them.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "help", "version":
			return nil
		}

		if err := config.LoadDotEnv(".env"); err != nil {
			return err
		}

		path := configPath
		if path == "" {
			path = config.Discover()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		if err := cfg.ApplyEnv(); err != nil {
			return fmt.Errorf("environment: %w", err)
		}

		level := cfg.LogLevel
		if verboseFlag {
			level = "debug"
		} else if quietFlag {
			level = "warn"
		}
		logger, err = logging.New(logging.Options{Level: level, Development: verboseFlag})
		if err != nil {
			return err
		}
		if path != "" {
			logger.Debug("loaded config", zap.String("path", path))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mt version %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: auto-discover .mailtriage/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose logs")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

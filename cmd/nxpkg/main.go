package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/jchantrell/nxpkg/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string

	catalogPath string
	cacheRoot   string
	languages   []string
	workBuffer  int
	logLevel    string
	logFormat   string
	noProgress  bool
)

var rootCmd = &cobra.Command{
	Use:   "nxpkg",
	Short: "Console title package and storage tool",
	Long: `nxpkg inspects and extracts PFS0 package containers, manages the catalog
of installed applications and moves files between mounted storage partitions.

Partitions are addressed with a mount prefix, for example sdmc:/switch/app.nsp
or bis-user:/Contents. Each prefix maps to a host directory in the configuration.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cmd.Flags().Changed("catalog") {
			cfg.Catalog = catalogPath
		}
		if cmd.Flags().Changed("cache-root") {
			cfg.CacheRoot = cacheRoot
		}
		if cmd.Flags().Changed("languages") {
			cfg.Languages = languages
		}
		if cmd.Flags().Changed("work-buffer") {
			cfg.WorkBufferSize = workBuffer
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}

		// flags bypass the checks Load ran
		if err := cfg.Validate(); err != nil {
			return err
		}

		var level slog.Level
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var handler slog.Handler
		if cfg.LogFormat == "json" {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{
				Level: level,
			})
		}

		logger := slog.New(handler)
		slog.SetDefault(logger)

		slog.Debug("Configuration",
			"storage", cfg.Storage,
			"catalog", cfg.Catalog,
			"cache_root", cfg.CacheRoot,
			"languages", cfg.Languages,
			"work_buffer_size", cfg.WorkBufferSize,
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat)

		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is nxpkg.yaml in home or pwd)")
	rootCmd.PersistentFlags().StringVarP(&catalogPath, "catalog", "c", "", "catalog database file path")
	rootCmd.PersistentFlags().StringVar(&cacheRoot, "cache-root", "", "export cache directory on the SD card")
	rootCmd.PersistentFlags().StringSliceVar(&languages, "languages", []string{}, "comma-separated list of preferred title languages")
	rootCmd.PersistentFlags().IntVar(&workBuffer, "work-buffer", 0, "copy and extraction chunk size in bytes")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")

	rootCmd.AddCommand(pfs0Cmd)
	rootCmd.AddCommand(appsCmd)
	rootCmd.AddCommand(spaceCmd)
	rootCmd.AddCommand(copyCmd)
}

// Package main provides the semsolver binary entry point.
// Semsolver turns optimization solver sources into solver descriptors, either
// by hand-marking the three code regions or by streaming the source through a
// transform backend that restructures it.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/c360studio/semsolver/llm/providers"

	"github.com/c360studio/semsolver/config"
	"github.com/c360studio/semsolver/source"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semsolver"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		root       string
	)
	a := &app{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Solver descriptor authoring tool",
		Long: `Semsolver builds solver descriptors from optimization solver sources.

A descriptor names a solver and carries three regions of its code:
- input parameters
- the cost function
- the algorithm logic

Regions are either marked by hand (mark) or extracted after a transform
backend restructures the source (transform). Descriptors are stored in a
local SQLite database or a NATS JetStream key-value bucket.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.logger = newLogger(cmd.ErrOrStderr(), logLevel)
			slog.SetDefault(a.logger)

			cfg, err := config.NewLoader(a.logger).Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if root != "" {
				cfg.Source.Root = root
			}
			a.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&root, "root", "", "Directory local reads are confined to (default: current directory)")

	cmd.AddCommand(
		markCmd(a),
		transformCmd(a),
		listCmd(a),
		showCmd(a),
		deleteCmd(a),
		exportCmd(a),
		sourcesCmd(a),
		serveCmd(a),
		configCmd(a),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func newLogger(w io.Writer, logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// fetcher returns a source fetcher honouring the configured root and size cap.
func (a *app) fetcher() *source.Fetcher {
	opts := []source.FetcherOption{
		source.WithMaxSize(a.cfg.Source.MaxSize),
		source.WithFetcherLogger(a.logger),
	}
	if a.cfg.Source.Root != "" {
		opts = append(opts, source.WithRoot(a.cfg.Source.Root))
	}
	return source.NewFetcher(opts...)
}

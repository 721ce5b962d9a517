// Package main provides the e2e test runner CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/c360studio/semsolver/test/e2e/config"
	"github.com/c360studio/semsolver/test/e2e/scenarios"
)

var (
	passColor = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := config.DefaultConfig()
	var (
		outputJSON    bool
		globalTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "e2e [scenario]",
		Short: "Run semsolver e2e tests",
		Long: `Run end-to-end tests against a running "semsolver serve", NATS and mock-llm.

Examples:
  e2e                                  # Run all scenarios
  e2e transform-roundtrip              # Run one scenario
  e2e --json                           # Output results as JSON
  e2e --expect-graph graph-publishing  # Fail if serve runs without --graph
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "all"
			if len(args) > 0 {
				name = args[0]
			}
			return run(cmd.OutOrStdout(), name, cfg, outputJSON, globalTimeout)
		},
	}

	cmd.Flags().StringVar(&cfg.NATSURL, "nats", cfg.NATSURL, "NATS server URL")
	cmd.Flags().StringVar(&cfg.MockLLMURL, "mock-llm", cfg.MockLLMURL, "mock-llm base URL (empty skips call checks)")
	cmd.Flags().BoolVar(&cfg.ExpectGraph, "expect-graph", false, "Require descriptor entities on graph.ingest.entity")
	cmd.Flags().DurationVar(&cfg.StageTimeout, "timeout", cfg.StageTimeout, "Per-stage timeout")
	cmd.Flags().DurationVar(&cfg.TransformTimeout, "transform-timeout", cfg.TransformTimeout, "Time allowed for one transform result")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output results as JSON")
	cmd.Flags().DurationVar(&globalTimeout, "global-timeout", 10*time.Minute, "Global timeout for all scenarios")

	cmd.AddCommand(listCmd())
	return cmd
}

func registry(cfg *config.Config) []scenarios.Scenario {
	return []scenarios.Scenario{
		scenarios.NewTransformRoundtripScenario(cfg),
		scenarios.NewGraphPublishingScenario(cfg),
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available scenarios:")
			fmt.Fprintln(out)
			for _, s := range registry(config.DefaultConfig()) {
				fmt.Fprintf(out, "  %-20s %s\n", s.Name(), s.Description())
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Use 'e2e all' to run all scenarios.")
		},
	}
}

func run(out io.Writer, name string, cfg *config.Config, outputJSON bool, globalTimeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), globalTimeout)
	defer cancel()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	all := registry(cfg)
	toRun := all
	if name != "all" {
		toRun = nil
		for _, s := range all {
			if s.Name() == name {
				toRun = []scenarios.Scenario{s}
			}
		}
		if toRun == nil {
			return fmt.Errorf("unknown scenario: %s", name)
		}
	}

	results := make([]*scenarios.Result, 0, len(toRun))
	allPassed := true
	for _, s := range toRun {
		if ctx.Err() != nil {
			if !outputJSON {
				fmt.Fprintln(out, "\nTest run interrupted!")
			}
			break
		}
		result := runScenario(ctx, out, s, outputJSON)
		results = append(results, result)
		if !result.Success {
			allPassed = false
		}
	}

	if outputJSON {
		if err := writeJSONResults(out, results); err != nil {
			return err
		}
	} else {
		writeTextSummary(out, results)
	}

	if !allPassed {
		return fmt.Errorf("some scenarios failed")
	}
	return nil
}

func runScenario(ctx context.Context, out io.Writer, s scenarios.Scenario, quiet bool) *scenarios.Result {
	logf := func(format string, args ...any) {
		if !quiet {
			fmt.Fprintf(out, format, args...)
		}
	}

	logf("\n%s\nRunning: %s\n%s\n\n", strings.Repeat("=", 63), s.Name(), s.Description())

	logf("Setup... ")
	if err := s.Setup(ctx); err != nil {
		result := scenarios.NewResult(s.Name())
		result.Error = fmt.Sprintf("setup failed: %v", err)
		result.AddError(result.Error)
		result.Complete()
		logf("%s\n", failColor.Sprintf("FAILED: %v", err))
		// Setup may have connected before failing.
		_ = s.Teardown(ctx)
		return result
	}
	logf("OK\n")

	logf("Execute... ")
	result, err := s.Execute(ctx)
	switch {
	case err != nil:
		result = scenarios.NewResult(s.Name())
		result.Error = fmt.Sprintf("execution error: %v", err)
		result.AddError(result.Error)
		result.Complete()
		logf("%s\n", failColor.Sprintf("ERROR: %v", err))
	case result.Success:
		logf("%s\n", passColor.Sprint("PASSED"))
	default:
		logf("%s\n", failColor.Sprintf("FAILED: %s", result.Error))
	}

	logf("Teardown... ")
	if err := s.Teardown(ctx); err != nil {
		result.AddWarning(fmt.Sprintf("teardown failed: %v", err))
		logf("%s\n", warnColor.Sprintf("WARNING: %v", err))
	} else {
		logf("OK\n")
	}

	if len(result.Stages) > 0 {
		logf("\nStages:\n")
		for _, st := range result.Stages {
			mark := passColor.Sprint("✓")
			if !st.Success {
				mark = failColor.Sprint("✗")
			}
			logf("  %s %s (%dms)\n", mark, st.Name, st.Duration.Milliseconds())
			if st.Error != "" {
				logf("      Error: %s\n", st.Error)
			}
		}
	}
	for _, w := range result.Warnings {
		logf("  %s\n", warnColor.Sprintf("warning: %s", w))
	}

	return result
}

type summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

func summarize(results []*scenarios.Result) summary {
	s := summary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

func writeJSONResults(out io.Writer, results []*scenarios.Result) error {
	data, err := json.MarshalIndent(struct {
		Timestamp time.Time           `json:"timestamp"`
		Results   []*scenarios.Result `json:"results"`
		Summary   summary             `json:"summary"`
	}{
		Timestamp: time.Now(),
		Results:   results,
		Summary:   summarize(results),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func writeTextSummary(out io.Writer, results []*scenarios.Result) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 63))
	fmt.Fprintln(out, "                          SUMMARY")
	fmt.Fprintln(out, strings.Repeat("=", 63))

	for _, r := range results {
		status := passColor.Sprint("✓ PASSED")
		if !r.Success {
			status = failColor.Sprint("✗ FAILED")
		}
		fmt.Fprintf(out, "  %s  %s (%dms)\n", status, r.ScenarioName, r.Duration.Milliseconds())
		if !r.Success && r.Error != "" {
			msg := r.Error
			if len(msg) > 80 {
				msg = msg[:77] + "..."
			}
			fmt.Fprintf(out, "           %s\n", msg)
		}
	}

	s := summarize(results)
	fmt.Fprintln(out, strings.Repeat("-", 63))
	fmt.Fprintf(out, "  Total: %d | Passed: %d | Failed: %d\n", s.Total, s.Passed, s.Failed)

	if s.Failed > 0 {
		fmt.Fprintln(out, "\nSome tests failed. Run with --json for detailed output.")
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	solvertransformer "github.com/c360studio/semsolver/processor/solver-transformer"
)

// lifecycle is the part of a processor the serve command drives.
type lifecycle interface {
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

type serveOptions struct {
	streamName  string
	metricsAddr string
	dryRun      bool
	graph       bool
}

func serveCmd(a *app) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the transform processor against NATS",
		Long: `Consume transform requests from JetStream (solver.transform.request),
store complete descriptors in the JetStream key-value bucket, and publish
results on solver.transform.result.<request_id>.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return a.runServe(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.streamName, "stream", "SOLVER", "JetStream stream for requests and results")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", ":9090", "Address for the Prometheus /metrics endpoint (empty disables)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Publish results without storing descriptors")
	cmd.Flags().BoolVar(&opts.graph, "graph", false, "Publish stored descriptors to graph.ingest.entity")
	return cmd
}

// processorConfig renders the processor's JSON config from the CLI config.
func (a *app) processorConfig(opts serveOptions) (json.RawMessage, error) {
	cfg := solvertransformer.DefaultConfig()
	cfg.StreamName = opts.streamName
	cfg.Ports.Inputs[0].StreamName = opts.streamName
	cfg.Backend = a.cfg.Backend.Kind
	cfg.BackendURL = a.cfg.Backend.URL
	cfg.Capability = a.cfg.Model.Capability
	cfg.ModelRegistry = a.cfg.Model.Registry
	cfg.FlushUnclosed = a.cfg.Transform.FlushUnclosed
	cfg.AtomicMarkers = a.cfg.Transform.AtomicMarkers
	cfg.DryRun = opts.dryRun
	cfg.PublishGraph = opts.graph
	if a.cfg.Backend.Timeout > 0 {
		cfg.Timeout = a.cfg.Backend.Timeout.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("processor config: %w", err)
	}
	return json.Marshal(cfg)
}

func (a *app) runServe(ctx context.Context, opts serveOptions) error {
	raw, err := a.processorConfig(opts)
	if err != nil {
		return err
	}

	natsClient, err := connectToNATS(ctx, a.cfg.NATS.URL, a.logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(context.Background())

	js, err := natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}
	if err := ensureStream(ctx, js, opts.streamName, "Solver transform requests and results",
		"solver.transform.request", "solver.transform.result.>"); err != nil {
		return err
	}
	if opts.graph {
		if err := ensureStream(ctx, js, "GRAPH", "Graph entity ingestion", "graph.ingest.>"); err != nil {
			return err
		}
	}

	registry := component.NewRegistry()
	if err := solvertransformer.Register(registry); err != nil {
		return fmt.Errorf("register solver-transformer: %w", err)
	}
	a.logger.Debug("Component factories registered", "count", len(registry.ListFactories()))

	comp, err := solvertransformer.NewComponent(raw, component.Dependencies{
		NATSClient: natsClient,
		Logger:     a.logger,
	})
	if err != nil {
		return fmt.Errorf("create solver-transformer: %w", err)
	}
	proc, ok := comp.(lifecycle)
	if !ok {
		return fmt.Errorf("solver-transformer does not support start/stop")
	}

	if err := proc.Initialize(); err != nil {
		return fmt.Errorf("initialize solver-transformer: %w", err)
	}
	if err := proc.Start(ctx); err != nil {
		return fmt.Errorf("start solver-transformer: %w", err)
	}
	defer proc.Stop(30 * time.Second)

	if opts.metricsAddr != "" {
		srv := &http.Server{Addr: opts.metricsAddr, Handler: metricsHandler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("Metrics server failed", "addr", opts.metricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	a.logger.Info("Semsolver ready",
		"version", Version,
		"stream", opts.streamName,
		"backend", a.cfg.Backend.Kind,
		"metrics", opts.metricsAddr)

	<-ctx.Done()
	a.logger.Info("Received shutdown signal")
	return nil
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// ensureStream creates or updates a stream over subjects.
func ensureStream(ctx context.Context, js jetstream.JetStream, name, description string, subjects ...string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        name,
		Description: description,
		Subjects:    subjects,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", name, err)
	}
	return nil
}

package transform

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"
)

// Update is delivered to an Observer after each delta and once at end of stream.
type Update struct {
	// Section is the section active after the delta.
	Section Section

	// Delta is the raw delta that triggered the update. Empty on the final update.
	Delta string

	// Result holds the accumulators as they stand.
	Result Result

	// Done is true on the final update.
	Done bool
}

// Observer receives partial results while a stream is consumed.
type Observer func(Update)

type consumeConfig struct {
	policy   FencePolicy
	atomic   bool
	observer Observer
	metrics  *Metrics
	logger   *slog.Logger
}

// ConsumeOption configures Consume.
type ConsumeOption func(*consumeConfig)

// WithFencePolicy sets the policy for a fence still open at end of stream.
func WithFencePolicy(p FencePolicy) ConsumeOption {
	return func(c *consumeConfig) {
		c.policy = p
	}
}

// WithAtomicMarkers feeds deltas straight to the parser without the scanner.
// Use it only when the source guarantees one marker per delta.
func WithAtomicMarkers() ConsumeOption {
	return func(c *consumeConfig) {
		c.atomic = true
	}
}

// WithObserver registers a callback for partial results.
func WithObserver(o Observer) ConsumeOption {
	return func(c *consumeConfig) {
		c.observer = o
	}
}

// WithMetrics records stream statistics.
func WithMetrics(m *Metrics) ConsumeOption {
	return func(c *consumeConfig) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ConsumeOption {
	return func(c *consumeConfig) {
		c.logger = logger
	}
}

// Consume reads stream to completion and returns the parsed sections.
// The stream is always closed before Consume returns.
//
// At natural end of stream an open fence is resolved by the fence policy.
// If ctx is cancelled, consumption stops without error: the in-progress fence
// is discarded and the partial result comes back with Abandoned set.
// Any other receive failure returns a *StreamError and a zero Result.
func Consume(ctx context.Context, stream DeltaStream, opts ...ConsumeOption) (Result, error) {
	cfg := consumeConfig{
		policy: DiscardUnclosedFence,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	defer stream.Close()

	parser := NewParser()
	scanner := NewScanner(parser)
	feed := scanner.Feed
	if cfg.atomic {
		feed = parser.Feed
	}

	started := time.Now()
	deltas := 0

	for {
		if ctx.Err() != nil {
			return cfg.abandon(parser, deltas, started), nil
		}

		delta, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return cfg.abandon(parser, deltas, started), nil
			}
			cfg.logger.Warn("Transform stream failed",
				"deltas", deltas,
				"section", parser.Section().String(),
				"error", err)
			cfg.record(OutcomeTransport, started)
			return Result{}, &StreamError{Deltas: deltas, Err: err}
		}

		deltas++
		if cfg.metrics != nil {
			cfg.metrics.Deltas.Inc()
		}
		transitions, closed := parser.Transitions(), parser.FencesClosed()
		feed(delta)
		cfg.observe(parser, transitions, closed)

		if cfg.observer != nil {
			cfg.observer(Update{Section: parser.Section(), Delta: delta, Result: parser.Snapshot()})
		}
	}

	if !cfg.atomic {
		transitions, closed := parser.Transitions(), parser.FencesClosed()
		scanner.Flush()
		cfg.observe(parser, transitions, closed)
	}

	unclosed := parser.InsideFence()
	result := parser.Finish(cfg.policy)
	if unclosed {
		cfg.logger.Debug("Stream ended inside code fence",
			"published", result.CodeFinalized,
			"deltas", deltas)
		if cfg.metrics != nil {
			cfg.metrics.FencesUnclosed.WithLabelValues(strconv.FormatBool(result.CodeFinalized)).Inc()
		}
	}
	cfg.record(OutcomeComplete, started)

	if cfg.observer != nil {
		cfg.observer(Update{Section: parser.Section(), Result: result, Done: true})
	}
	return result, nil
}

func (c *consumeConfig) abandon(parser *Parser, deltas int, started time.Time) Result {
	c.logger.Debug("Transform stream abandoned",
		"deltas", deltas,
		"section", parser.Section().String())
	c.record(OutcomeAbandoned, started)

	result := parser.Finish(DiscardUnclosedFence)
	result.Abandoned = true
	return result
}

func (c *consumeConfig) observe(parser *Parser, transitions, closed int) {
	if c.metrics == nil {
		return
	}
	if n := parser.Transitions() - transitions; n > 0 {
		c.metrics.Transitions.WithLabelValues(parser.Section().String()).Add(float64(n))
	}
	if n := parser.FencesClosed() - closed; n > 0 {
		c.metrics.FencesClosed.Add(float64(n))
	}
}

func (c *consumeConfig) record(outcome string, started time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.Streams.WithLabelValues(outcome).Inc()
	c.metrics.StreamDuration.Observe(time.Since(started).Seconds())
}

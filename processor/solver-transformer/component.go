// Package solvertransformer provides a processor that restructures solver
// source code through a transform backend, parses the streamed answer into
// sections, and stores the resulting solver descriptor.
package solvertransformer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/semsolver/authoring"
	"github.com/c360studio/semsolver/backend"
	"github.com/c360studio/semsolver/descriptor"
	"github.com/c360studio/semsolver/graph"
	"github.com/c360studio/semsolver/llm"
	"github.com/c360studio/semsolver/model"
	"github.com/c360studio/semsolver/source"
	"github.com/c360studio/semsolver/storage"
	"github.com/c360studio/semsolver/transform"
)

const (
	componentName = "solver-transformer"
	maxDeliver    = 3
)

var (
	metricsOnce   sync.Once
	sharedMetrics *transform.Metrics
)

// streamMetrics registers the transform collectors once per process.
func streamMetrics() *transform.Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = transform.NewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// Component implements the solver-transformer processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	backend backend.Backend
	store   storage.Store
	fetcher *source.Fetcher
	metrics *transform.Metrics

	// JetStream consumer
	consumer jetstream.Consumer
	stream   jetstream.Stream

	// Lifecycle
	running   bool
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	// Metrics
	requestsProcessed  atomic.Int64
	descriptorsStored  atomic.Int64
	transformsFailed   atomic.Int64
	descriptorsPartial atomic.Int64
	entitiesPublished  atomic.Int64
	lastActivityMu     sync.RWMutex
	lastActivity       time.Time
}

// NewComponent creates a new solver-transformer processor.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := deps.GetLogger()

	b, err := newBackend(config, logger)
	if err != nil {
		return nil, err
	}

	return &Component{
		name:       componentName,
		config:     config,
		natsClient: deps.NATSClient,
		logger:     logger,
		backend:    b,
		fetcher:    source.NewFetcher(source.WithFetcherLogger(logger)),
		metrics:    streamMetrics(),
	}, nil
}

// newBackend builds the configured transform backend.
func newBackend(config Config, logger *slog.Logger) (backend.Backend, error) {
	kind, err := backend.ParseKind(config.Backend)
	if err != nil {
		return nil, err
	}
	if kind == backend.KindHTTP {
		return backend.NewHTTP(config.BackendURL, backend.WithHTTPLogger(logger)), nil
	}

	registry := model.NewDefaultRegistry()
	if config.ModelRegistry != "" {
		registry, err = model.LoadFromFile(config.ModelRegistry)
		if err != nil {
			return nil, fmt.Errorf("load model registry: %w", err)
		}
		if err := registry.Validate(); err != nil {
			return nil, fmt.Errorf("model registry: %w", err)
		}
	}
	client := llm.NewClient(registry, llm.WithLogger(logger))
	return backend.NewLLM(client,
		backend.WithCapability(model.ParseCapability(config.Capability)),
		backend.WithLLMLogger(logger),
	), nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized solver-transformer",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"trigger_subject", c.config.TriggerSubject,
		"backend", c.config.Backend)
	return nil
}

// Start begins processing transform requests.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("component already running")
	}
	if c.natsClient == nil {
		c.mu.Unlock()
		return fmt.Errorf("NATS client required")
	}

	c.running = true
	c.startTime = time.Now()

	subCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	js, err := c.natsClient.JetStream()
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get jetstream: %w", err)
	}

	if c.store == nil && !c.config.DryRun {
		store, err := storage.NewKVStore(subCtx, js, storage.WithKVLogger(c.logger))
		if err != nil {
			c.rollbackStart(cancel)
			return fmt.Errorf("open descriptor store: %w", err)
		}
		c.store = store
	}

	stream, err := js.Stream(subCtx, c.config.StreamName)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("get stream %s: %w", c.config.StreamName, err)
	}
	c.stream = stream

	consumerConfig := jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		FilterSubject: c.config.TriggerSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.config.GetTimeout() + 30*time.Second,
		MaxDeliver:    maxDeliver,
	}

	consumer, err := stream.CreateOrUpdateConsumer(subCtx, consumerConfig)
	if err != nil {
		c.rollbackStart(cancel)
		return fmt.Errorf("create consumer: %w", err)
	}
	c.consumer = consumer

	go c.consumeLoop(subCtx)

	c.logger.Info("solver-transformer started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"subject", c.config.TriggerSubject)

	return nil
}

func (c *Component) rollbackStart(cancel context.CancelFunc) {
	c.mu.Lock()
	c.running = false
	c.cancel = nil
	c.mu.Unlock()
	cancel()
}

// consumeLoop continuously consumes messages from the JetStream consumer.
func (c *Component) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("Fetch timeout or error", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleMessage(ctx, msg)
		}

		if msgs.Error() != nil && !errors.Is(msgs.Error(), context.DeadlineExceeded) {
			c.logger.Warn("Message fetch error", "error", msgs.Error())
		}
	}
}

// handleMessage processes a single transform request.
func (c *Component) handleMessage(ctx context.Context, msg jetstream.Msg) {
	if ctx.Err() != nil {
		c.nak(msg)
		return
	}

	c.requestsProcessed.Add(1)
	c.updateLastActivity()

	req, err := decodeRequest(msg.Data())
	if err != nil {
		// Redelivery cannot fix a malformed request.
		c.logger.Error("Failed to decode transform request", "error", err)
		c.transformsFailed.Add(1)
		c.term(msg)
		return
	}

	c.logger.Info("Processing transform request",
		"request_id", req.RequestID,
		"path", req.Path,
		"name", req.Name)

	result, err := c.process(ctx, req)
	if err != nil && ctx.Err() != nil {
		// Shutting down: leave the request for the next consumer.
		c.nak(msg)
		return
	}
	if err != nil && !lastDelivery(msg) {
		c.logger.Warn("Transform failed, will retry",
			"request_id", req.RequestID,
			"error", err)
		c.nak(msg)
		return
	}

	if err := c.publishResult(ctx, result); err != nil {
		c.logger.Error("Failed to publish transform result",
			"request_id", req.RequestID,
			"error", err)
	}
	if err := msg.Ack(); err != nil {
		c.logger.Warn("Failed to ACK message", "error", err)
	}
}

func (c *Component) nak(msg jetstream.Msg) {
	if err := msg.Nak(); err != nil {
		c.logger.Warn("Failed to NAK message", "error", err)
	}
}

func (c *Component) term(msg jetstream.Msg) {
	if err := msg.Term(); err != nil {
		c.logger.Warn("Failed to TERM message", "error", err)
	}
}

// lastDelivery reports whether msg will not be redelivered after a NAK.
func lastDelivery(msg jetstream.Msg) bool {
	meta, err := msg.Metadata()
	if err != nil {
		return true
	}
	return meta.NumDelivered >= maxDeliver
}

// decodeRequest unwraps a BaseMessage envelope into a TransformRequest.
func decodeRequest(data []byte) (*TransformRequest, error) {
	var baseMsg message.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	payloadBytes, err := json.Marshal(baseMsg.Payload())
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var req TransformRequest
	if err := json.Unmarshal(payloadBytes, &req); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.RequestID == "" {
		req.RequestID = storage.NewID()
	}
	return &req, nil
}

// process runs one request through the backend, the section parser and the
// descriptor builder. The result is always filled in; a non-nil error means
// the failure is worth retrying.
func (c *Component) process(ctx context.Context, req *TransformRequest) (*TransformResult, error) {
	result := &TransformResult{RequestID: req.RequestID}

	description := req.Description
	if description == "" && req.DescriptionURL != "" {
		doc, err := c.fetcher.Fetch(ctx, req.DescriptionURL)
		if err != nil {
			c.transformsFailed.Add(1)
			return result.fail(ErrorKindSource, fmt.Errorf("fetch description: %w", err)), nil
		}
		description = doc.Content
	}

	session := authoring.NewSession(req.Path, req.Code,
		authoring.WithName(descriptorName(req)),
		authoring.WithDescription(description),
		authoring.WithLogger(c.logger),
	)

	tctx, cancel := context.WithTimeout(ctx, c.config.GetTimeout())
	defer cancel()

	out, err := session.Transform(tctx, c.backend, c.consumeOptions()...)
	if err != nil {
		c.transformsFailed.Add(1)
		if transform.IsStreamError(err) {
			return result.fail(ErrorKindTransport, err), err
		}
		if errors.Is(err, backend.ErrEmptyCode) || llm.IsFatal(err) {
			return result.fail(ErrorKindBackend, err), nil
		}
		return result.fail(ErrorKindBackend, err), err
	}

	result.Analysis = out.Analysis
	result.Code = out.Code
	result.Verification = out.Verification

	if out.Abandoned {
		c.transformsFailed.Add(1)
		result.Status = StatusAbandoned
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Error = "transform timed out after " + c.config.GetTimeout().String()
		return result, nil
	}

	d, err := session.BuildTransformed(ctx)
	if err != nil {
		if descriptor.IsIncomplete(err) {
			c.descriptorsPartial.Add(1)
			result.Status = StatusIncomplete
			result.ErrorKind = ErrorKindIncomplete
			result.Missing = descriptor.MissingFields(err)
			result.Error = err.Error()
			return result, nil
		}
		c.transformsFailed.Add(1)
		return result.fail(ErrorKindBackend, err), nil
	}

	result.Status = StatusCompleted
	if c.config.DryRun || c.store == nil {
		return result, nil
	}

	id, err := c.store.Save(ctx, &storage.Record{
		Descriptor: d,
		Source: storage.Provenance{
			Path:      req.Path,
			Hash:      source.ContentHash([]byte(req.Code)),
			Origin:    storage.OriginTransformed,
			RequestID: req.RequestID,
		},
	})
	if err != nil {
		c.transformsFailed.Add(1)
		return result.fail(ErrorKindStore, err), err
	}
	c.descriptorsStored.Add(1)
	result.DescriptorID = id

	c.logger.Info("Stored solver descriptor",
		"request_id", req.RequestID,
		"descriptor_id", id,
		"name", d.Name)

	if c.config.PublishGraph && c.natsClient != nil {
		rec, err := c.store.Get(ctx, id)
		if err == nil {
			err = graph.PublishDescriptor(ctx, c.natsClient, rec, "semsolver."+componentName)
		}
		if err != nil {
			c.logger.Warn("Failed to publish descriptor entity", "descriptor_id", id, "error", err)
		} else {
			c.entitiesPublished.Add(1)
		}
	}
	return result, nil
}

func (c *Component) consumeOptions() []transform.ConsumeOption {
	opts := []transform.ConsumeOption{
		transform.WithLogger(c.logger),
	}
	if c.metrics != nil {
		opts = append(opts, transform.WithMetrics(c.metrics))
	}
	if c.config.FlushUnclosed {
		opts = append(opts, transform.WithFencePolicy(transform.FlushUnclosedFence))
	}
	if c.config.AtomicMarkers {
		opts = append(opts, transform.WithAtomicMarkers())
	}
	return opts
}

// descriptorName picks the request name, else the source file stem, else the request id.
func descriptorName(req *TransformRequest) string {
	if req.Name != "" {
		return req.Name
	}
	if req.Path != "" {
		base := filepath.Base(req.Path)
		if stem := strings.TrimSuffix(base, filepath.Ext(base)); stem != "" && stem != "." {
			return stem
		}
	}
	return req.RequestID
}

// publishResult publishes the result on the request's result subject.
func (c *Component) publishResult(ctx context.Context, result *TransformResult) error {
	if c.natsClient == nil {
		return fmt.Errorf("NATS client required")
	}

	baseMsg := message.NewBaseMessage(TransformResultType, result, componentName)
	data, err := json.Marshal(baseMsg)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	subject := c.resultSubject(result.RequestID)
	if err := c.natsClient.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	c.logger.Debug("Published transform result",
		"request_id", result.RequestID,
		"status", result.Status,
		"subject", subject)
	return nil
}

func (c *Component) resultSubject(requestID string) string {
	return c.config.ResultSubjectPrefix + "." + requestID
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}

	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.logger.Info("solver-transformer stopped",
		"requests_processed", c.requestsProcessed.Load(),
		"descriptors_stored", c.descriptorsStored.Load(),
		"descriptors_incomplete", c.descriptorsPartial.Load(),
		"transforms_failed", c.transformsFailed.Load(),
		"entities_published", c.entitiesPublished.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        componentName,
		Type:        "processor",
		Description: "Restructures solver code through a transform backend and stores the resulting descriptor",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, portDef := range c.config.Ports.Inputs {
		ports[i] = component.Port{
			Name:        portDef.Name,
			Direction:   component.DirectionInput,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.JetStreamPort{
				StreamName: portDef.StreamName,
				Subjects:   []string{portDef.Subject},
			},
		}
	}
	return ports
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = component.Port{
			Name:        portDef.Name,
			Direction:   component.DirectionOutput,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.NATSPort{
				Subject: portDef.Subject,
			},
		}
	}
	return ports
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return solverTransformerSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	c.mu.RLock()
	running := c.running
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	if running {
		status = "running"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.transformsFailed.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		LastActivity: c.getLastActivity(),
	}
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}

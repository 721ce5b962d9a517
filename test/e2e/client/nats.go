// Package client provides test clients for e2e scenarios.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/semsolver/graph"
	solvertransformer "github.com/c360studio/semsolver/processor/solver-transformer"
	"github.com/c360studio/semsolver/test/e2e/config"
)

// NATSClient provides NATS operations for e2e tests.
type NATSClient struct {
	client *natsclient.Client
	js     jetstream.JetStream
	closed bool
	mu     sync.Mutex
}

// NewNATSClient creates a new NATS client for e2e testing.
func NewNATSClient(ctx context.Context, natsURL string) (*NATSClient, error) {
	client, err := natsclient.NewClient(natsURL,
		natsclient.WithName(config.E2ESource),
		natsclient.WithMaxReconnects(5),
		natsclient.WithReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	js, err := client.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get JetStream context: %w", err)
	}

	return &NATSClient{client: client, js: js}, nil
}

// Close closes the NATS client.
func (c *NATSClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.client.Close(ctx)
}

// WaitForStream waits until the named stream exists.
func (c *NATSClient) WaitForStream(ctx context.Context, name string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_, err := c.js.Stream(ctx, name)
		if err == nil {
			return nil
		}
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return fmt.Errorf("look up stream %s: %w", name, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("stream %s not created: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// SendTransform publishes a transform request to the request subject.
func (c *NATSClient) SendTransform(ctx context.Context, req *solvertransformer.TransformRequest) error {
	data, err := json.Marshal(message.NewBaseMessage(solvertransformer.TransformRequestType, req, config.E2ESource))
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.client.PublishToStream(ctx, config.RequestSubject, data)
}

// WaitForResult reads the result for requestID from the solver stream.
func (c *NATSClient) WaitForResult(ctx context.Context, requestID string) (*solvertransformer.TransformResult, error) {
	consumer, err := c.js.OrderedConsumer(ctx, config.SolverStream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{config.ResultSubjectPrefix + "." + requestID},
	})
	if err != nil {
		return nil, fmt.Errorf("create result consumer: %w", err)
	}

	for {
		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return nil, fmt.Errorf("fetch result: %w", err)
		}
		for msg := range msgs.Messages() {
			var result solvertransformer.TransformResult
			if err := decodePayload(msg.Data(), &result); err != nil {
				return nil, err
			}
			return &result, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("no result for %s: %w", requestID, ctx.Err())
		}
	}
}

// StreamMessages returns the number of messages held by a stream.
func (c *NATSClient) StreamMessages(ctx context.Context, name string) (uint64, error) {
	stream, err := c.js.Stream(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("look up stream %s: %w", name, err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("stream %s info: %w", name, err)
	}
	return info.State.Msgs, nil
}

// LastEntity returns the most recent entity published for graph ingestion.
func (c *NATSClient) LastEntity(ctx context.Context) (*graph.EntityPayload, error) {
	stream, err := c.js.Stream(ctx, config.GraphStream)
	if err != nil {
		return nil, fmt.Errorf("look up stream %s: %w", config.GraphStream, err)
	}
	raw, err := stream.GetLastMsgForSubject(ctx, config.EntitySubject)
	if err != nil {
		return nil, fmt.Errorf("last entity: %w", err)
	}
	var entity graph.EntityPayload
	if err := decodePayload(raw.Data, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

// decodePayload unwraps a BaseMessage envelope into out.
func decodePayload(data []byte, out any) error {
	var base message.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return fmt.Errorf("parse message: %w", err)
	}
	payload, err := json.Marshal(base.Payload())
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

//go:build integration

package solvertransformer

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semsolver/backend"
	"github.com/c360studio/semsolver/source"
	"github.com/c360studio/semsolver/transform"
)

func TestComponent_RequestToStoredDescriptor(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	ctx := context.Background()

	js, err := tc.Client.JetStream()
	require.NoError(t, err)
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     "SOLVER",
		Subjects: []string{"solver.>"},
	})
	require.NoError(t, err)
	graphStream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     "GRAPH",
		Subjects: []string{"graph.ingest.>"},
	})
	require.NoError(t, err)

	config := DefaultConfig()
	config.PublishGraph = true
	c := &Component{
		name:       componentName,
		config:     config,
		natsClient: tc.Client,
		logger:     slog.Default(),
		backend:    backend.Static(answer(solverCode)...),
		fetcher:    source.NewFetcher(),
		metrics:    transform.NewMetrics(nil),
	}
	require.NoError(t, c.Start(ctx))
	defer c.Stop(time.Second)

	req := &TransformRequest{RequestID: "req-int", Path: "solvers/maxcut.py", Code: solverCode}
	data, err := json.Marshal(message.NewBaseMessage(TransformRequestType, req, "test"))
	require.NoError(t, err)
	require.NoError(t, tc.Client.PublishToStream(ctx, "solver.transform.request", data))

	results, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: "solver.transform.result.req-int",
		AckPolicy:     jetstream.AckNonePolicy,
	})
	require.NoError(t, err)

	var result TransformResult
	deadline := time.Now().Add(20 * time.Second)
	for result.RequestID == "" && time.Now().Before(deadline) {
		msgs, err := results.Fetch(1, jetstream.FetchMaxWait(2*time.Second))
		require.NoError(t, err)
		for msg := range msgs.Messages() {
			var base message.BaseMessage
			require.NoError(t, json.Unmarshal(msg.Data(), &base))
			payload, err := json.Marshal(base.Payload())
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(payload, &result))
		}
	}

	require.Equal(t, "req-int", result.RequestID, "no result published")
	assert.Equal(t, StatusCompleted, result.Status)
	require.NotEmpty(t, result.DescriptorID)

	rec, err := c.store.Get(ctx, result.DescriptorID)
	require.NoError(t, err)
	assert.Equal(t, "maxcut", rec.Descriptor.Name)
	assert.Equal(t, "req-int", rec.Source.RequestID)

	info, err := graphStream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs, "descriptor entity should be published")
}

package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) *pubsub.Client {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "leadgraph-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublishDeliversJSON(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := newTestClient(t)
	topic, err := client.CreateTopic(ctx, "runs")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "runs-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	pub := New(client)
	defer pub.Close()

	id, err := pub.Publish(ctx, "runs", map[string]any{"run_id": "r1", "enriched": 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got := make(chan *pubsub.Message, 1)
	recvCtx, stop := context.WithCancel(ctx)
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case got <- msg:
			default:
			}
			stop()
		})
	}()

	select {
	case msg := <-got:
		var payload map[string]any
		require.NoError(t, json.Unmarshal(msg.Data, &payload))
		require.Equal(t, "r1", payload["run_id"])
		require.Equal(t, "application/json", msg.Attributes["content_type"])
	case <-ctx.Done():
		t.Fatal("message not received")
	}
}

func TestPublishValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "runs", "x")
	require.ErrorContains(t, err, "not configured")

	pub := New(newTestClient(t))
	_, err = pub.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "topic is required")

	_, err = pub.Publish(context.Background(), "runs", func() {})
	require.ErrorContains(t, err, "marshal payload")
}

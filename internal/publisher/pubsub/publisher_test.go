package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
	publisher "github.com/Jadaunkg/job-portal-crawler/internal/publisher/pubsub"
)

func newFakeClient(t *testing.T) *pubsub.Client {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublishDeliversJSON(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := newFakeClient(t)
	topic, err := client.CreateTopic(ctx, "crawl-events")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "crawl-events-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	pub := publisher.New(client)
	event := model.CrawlEvent{HistoryID: "h-1", PortalName: "sarkari", Status: model.CrawlSuccess, NewItems: 2}
	id, err := pub.Publish(ctx, "crawl-events", event)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	received := make(chan *pubsub.Message, 1)
	recvCtx, stop := context.WithCancel(ctx)
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case received <- msg:
			default:
			}
			stop()
		})
	}()

	select {
	case msg := <-received:
		var got model.CrawlEvent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, event.HistoryID, got.HistoryID)
		assert.Equal(t, "application/json", msg.Attributes["content_type"])
	case <-ctx.Done():
		t.Fatal("message not received")
	}
	require.NoError(t, pub.Close())
}

func TestPublishMissingTopic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pub := publisher.New(newFakeClient(t))
	_, err := pub.Publish(ctx, "does-not-exist", map[string]string{"k": "v"})
	require.Error(t, err)
}

func TestPublishUnmarshalablePayload(t *testing.T) {
	pub := publisher.New(newFakeClient(t))
	_, err := pub.Publish(context.Background(), "t", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}

func TestOpenRequiresProject(t *testing.T) {
	_, err := publisher.Open(context.Background(), "")
	require.Error(t, err)

	var nilPub *publisher.Publisher
	_, err = nilPub.Publish(context.Background(), "t", nil)
	require.Error(t, err)
}

package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Rakanrepo/slevenback/internal/services"
)

func newTestTopics(t *testing.T) (*pubsub.Topic, *pubsub.Topic, *pstest.Server) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	orderTopic, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	syncTopic, err := client.CreateTopic(ctx, "sync-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	return orderTopic, syncTopic, srv
}

func TestPubSubEventPublisherPublishesOrderEvent(t *testing.T) {
	ctx := context.Background()
	orderTopic, syncTopic, srv := newTestTopics(t)

	publisher, err := NewPubSubEventPublisher(orderTopic, syncTopic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	event := services.OrderEvent{
		Type:           "order.status.changed",
		OrderID:        "ord_test",
		UserID:         "usr_test",
		PreviousStatus: "pending",
		CurrentStatus:  "paid",
		OccurredAt:     time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.OrderEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != event.OrderID || payload.CurrentStatus != event.CurrentStatus {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["orderId"]; attr != "ord_test" {
		t.Fatalf("expected orderId attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["status"]; attr != "paid" {
		t.Fatalf("expected status attribute, got %q", attr)
	}
}

func TestPubSubEventPublisherPublishesSyncEvent(t *testing.T) {
	ctx := context.Background()
	orderTopic, syncTopic, srv := newTestTopics(t)

	publisher, err := NewPubSubEventPublisher(orderTopic, syncTopic)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	event := services.SyncEvent{
		Type:       "sync.job.failed",
		JobID:      "sj_test",
		OrderID:    "ord_test",
		Attempts:   2,
		OccurredAt: time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishSyncEvent(ctx, event); err != nil {
		t.Fatalf("PublishSyncEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if attr := messages[0].Attributes["attempts"]; attr != "2" {
		t.Fatalf("expected attempts attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["jobId"]; attr != "sj_test" {
		t.Fatalf("expected jobId attribute, got %q", attr)
	}
}

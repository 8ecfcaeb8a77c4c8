// Package jobs publishes domain events onto Pub/Sub topics for downstream
// consumers such as analytics and back-office tooling.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/Rakanrepo/slevenback/internal/services"
)

// PubSubEventPublisher publishes order and sync queue events to Pub/Sub topics.
type PubSubEventPublisher struct {
	orderTopic *pubsub.Topic
	syncTopic  *pubsub.Topic
	marshal    func(any) ([]byte, error)
}

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubEventPublisher(orderTopic, syncTopic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if orderTopic == nil {
		return nil, errors.New("pubsub event publisher: order topic is required")
	}
	if syncTopic == nil {
		return nil, errors.New("pubsub event publisher: sync topic is required")
	}
	return &PubSubEventPublisher{
		orderTopic: orderTopic,
		syncTopic:  syncTopic,
		marshal:    json.Marshal,
	}, nil
}

// PublishOrderEvent enqueues an order lifecycle event on the order topic.
func (p *PubSubEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.orderTopic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "userId", event.UserID)
	setAttr(attrs, "status", event.CurrentStatus)

	result := p.orderTopic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// PublishSyncEvent enqueues a sync queue event on the sync topic.
func (p *PubSubEventPublisher) PublishSyncEvent(ctx context.Context, event services.SyncEvent) error {
	if p == nil || p.syncTopic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal sync event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "jobId", event.JobID)
	setAttr(attrs, "orderId", event.OrderID)
	if event.Attempts > 0 {
		attrs["attempts"] = strconv.Itoa(event.Attempts)
	}

	result := p.syncTopic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish sync event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

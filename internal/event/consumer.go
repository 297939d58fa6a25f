// Package event feeds catalog change events into the index manager.
package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/marketloom/search-service/pkg/kafka"

	"github.com/marketloom/search-service/internal/index"
)

// Topics for catalog domain events consumed by the search service.
var (
	TopicProductCreated = pkgkafka.Topic("catalog", "product_created")
	TopicProductUpdated = pkgkafka.Topic("catalog", "product_updated")
	TopicProductDeleted = pkgkafka.Topic("catalog", "product_deleted")
)

// Topics returns every topic the consumer subscribes to.
func Topics() []string {
	return []string{TopicProductCreated, TopicProductUpdated, TopicProductDeleted}
}

// productDeletedData is the payload of a product_deleted event.
type productDeletedData struct {
	ID string `json:"id"`
}

// Consumer applies catalog change events to the search index.
type Consumer struct {
	manager *index.Manager
	logger  *slog.Logger
}

// NewConsumer creates an event consumer backed by the given index manager.
func NewConsumer(manager *index.Manager, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{manager: manager, logger: logger}
}

// Handle dispatches one event by type. Unknown event types are logged and
// acknowledged so they never wedge the partition.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicProductCreated, TopicProductUpdated:
		return c.handleProductUpsert(ctx, event)
	case TopicProductDeleted:
		return c.handleProductDeleted(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handleProductUpsert(ctx context.Context, event *pkgkafka.Event) error {
	var rec index.ProductRecord
	if err := event.UnmarshalData(&rec); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}

	if err := c.manager.IndexOne(ctx, &rec); err != nil {
		return fmt.Errorf("index product from %s: %w", event.EventType, err)
	}

	c.logger.InfoContext(ctx, "indexed product from event",
		slog.String("event_type", event.EventType),
		slog.String("product_id", rec.ID),
	)
	return nil
}

func (c *Consumer) handleProductDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data productDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal product_deleted data: %w", err)
	}
	if data.ID == "" {
		c.logger.WarnContext(ctx, "product_deleted event without id, skipping",
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	if err := c.manager.Remove(ctx, data.ID); err != nil {
		return fmt.Errorf("remove product from deleted event: %w", err)
	}

	c.logger.InfoContext(ctx, "removed product from event",
		slog.String("product_id", data.ID),
	)
	return nil
}

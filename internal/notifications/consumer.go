package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	"github.com/eventrentph/eventrent-backend/pkg/enums"
	"github.com/eventrentph/eventrent-backend/pkg/logger"
	"github.com/eventrentph/eventrent-backend/pkg/outbox/idempotency"
	"github.com/eventrentph/eventrent-backend/pkg/outbox/registry"
)

const consumerName = "notifications"

// Message attribute keys stamped by the outbox publisher.
const (
	attrEventType     = "event_type"
	attrAggregateType = "aggregate_type"
	attrAggregateID   = "aggregate_id"
)

// Consumer turns published domain events into notification rows. Redelivered
// events are deduplicated by event id, so a crash between write and ack does
// not double-notify.
type Consumer struct {
	subscriber *pubsubv2.Subscriber
	registry   *registry.EventRegistry
	idem       *idempotency.Manager
	repo       Repository
	logg       *logger.Logger
}

// NewConsumer builds the domain event consumer.
func NewConsumer(
	subscriber *pubsubv2.Subscriber,
	eventRegistry *registry.EventRegistry,
	idem *idempotency.Manager,
	repo Repository,
	logg *logger.Logger,
) (*Consumer, error) {
	if subscriber == nil {
		return nil, fmt.Errorf("subscriber required")
	}
	if eventRegistry == nil {
		return nil, fmt.Errorf("event registry required")
	}
	if idem == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if repo == nil {
		return nil, fmt.Errorf("notification repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscriber: subscriber,
		registry:   eventRegistry,
		idem:       idem,
		repo:       repo,
		logg:       logg,
	}, nil
}

// Run blocks receiving messages until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsubv2.Message) {
		if err := c.handle(ctx, msg); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) handle(ctx context.Context, msg *pubsubv2.Message) error {
	logCtx := c.logg.WithField(ctx, "event_type", msg.Attributes[attrEventType])

	row, err := rowFromMessage(msg)
	if err != nil {
		// Malformed attributes never become valid on redelivery.
		c.logg.Error(logCtx, "dropping malformed domain event", err)
		return nil
	}

	resolved, err := c.registry.Resolve(row)
	if err != nil {
		var nonRetryable registry.NonRetryableError
		if errors.As(err, &nonRetryable) {
			c.logg.Error(logCtx, "dropping undecodable domain event", err)
			return nil
		}
		return err
	}

	eventID, err := uuid.Parse(resolved.Envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "dropping event with invalid event id", err)
		return nil
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	notification, ok := fromEvent(resolved)
	if !ok {
		return nil
	}

	processed, err := c.idem.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		return err
	}
	if processed {
		c.logg.Debug(logCtx, "event already processed, skipping")
		return nil
	}

	if err := c.repo.Create(ctx, &notification); err != nil {
		// Undo the marker so the redelivery gets another attempt.
		if delErr := c.idem.Delete(ctx, consumerName, eventID); delErr != nil {
			c.logg.Error(logCtx, "failed to clear idempotency marker", delErr)
		}
		return err
	}

	c.logg.Info(c.logg.WithField(logCtx, "recipient_id", notification.RecipientID.String()),
		"notification written")
	return nil
}

func rowFromMessage(msg *pubsubv2.Message) (models.OutboxEvent, error) {
	eventType, err := enums.ParseOutboxEventType(msg.Attributes[attrEventType])
	if err != nil {
		return models.OutboxEvent{}, err
	}
	aggregateType := enums.OutboxAggregateType(msg.Attributes[attrAggregateType])
	if !aggregateType.IsValid() {
		return models.OutboxEvent{}, fmt.Errorf("invalid aggregate type %q", msg.Attributes[attrAggregateType])
	}
	aggregateID, err := uuid.Parse(msg.Attributes[attrAggregateID])
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("invalid aggregate id: %w", err)
	}
	return models.OutboxEvent{
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       msg.Data,
	}, nil
}

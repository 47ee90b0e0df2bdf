package events

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	pkgevents "github.com/vielimo/service-booking/pkg/events"
	"github.com/vielimo/service-booking/pkg/kafka"
)

// EventHandler reacts to one booking event.
type EventHandler interface {
	HandleEvent(ctx context.Context, ce kafka.CloudEvent) error
}

// messageSource is the part of *kafka.Consumer the consumer loop uses.
type messageSource interface {
	Consume(ctx context.Context, handler kafka.MessageHandler) error
	Close() error
}

// BookingEventConsumer listens to booking events and hands them to the notifier.
type BookingEventConsumer struct {
	consumer messageSource
	handler  EventHandler
	logger   *zap.Logger
}

// NewBookingEventConsumer creates a new consumer for booking events.
func NewBookingEventConsumer(
	brokers []string,
	groupID string,
	handler EventHandler,
	logger *zap.Logger,
) *BookingEventConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, pkgevents.TopicBookingEvents, logger)
	return &BookingEventConsumer{
		consumer: consumer,
		handler:  handler,
		logger:   logger,
	}
}

// Start begins consuming booking events. It blocks until the context is cancelled.
func (c *BookingEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// handleMessage decodes the envelope and routes it. Errors are logged by the consumer loop
// and the offset is committed anyway, so one bad payload cannot stall the partition.
func (c *BookingEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Warn("skipping undecodable booking event", zap.String("raw", string(msg.Value)))
		return err
	}

	c.logger.Info("received booking event",
		zap.String("type", cloudEvent.Type),
		zap.String("id", cloudEvent.ID),
		zap.String("subject", cloudEvent.Subject),
	)
	return c.handler.HandleEvent(ctx, cloudEvent)
}

// Close closes the underlying Kafka consumer.
func (c *BookingEventConsumer) Close() error {
	return c.consumer.Close()
}

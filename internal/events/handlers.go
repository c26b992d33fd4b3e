package events

import (
	"context"

	"parking-booking/pkg/metrics"

	"go.uber.org/zap"
)

// JSONPublisher is satisfied by the AMQP publisher.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

// Publish forwards every event to the broker, routed by its type, for the
// notification and chat subsystems to consume.
func Publish(p JSONPublisher) Handler {
	return func(ctx context.Context, ev Event) error {
		return p.PublishJSON(ctx, string(ev.Type), ev)
	}
}

// Count increments the domain event counter.
func Count() Handler {
	return func(_ context.Context, ev Event) error {
		metrics.DomainEvents.WithLabelValues(string(ev.Type)).Inc()
		return nil
	}
}

// Log writes an audit line per event.
func Log(log *zap.Logger) Handler {
	return func(_ context.Context, ev Event) error {
		log.Info("Domain event",
			zap.String("type", string(ev.Type)),
			zap.String("booking_id", ev.BookingID.String()),
			zap.String("reference", ev.Reference),
			zap.String("status", ev.Status),
		)
		return nil
	}
}

package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/newsletter-service/internal/events"
	"github.com/spec-kit/newsletter-service/internal/observability"
)

// EventListener turns domain events into log lines and metrics.
type EventListener struct {
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// StartEventListener registers handlers on dispatcher. A nil dispatcher is a no-op.
func StartEventListener(dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *EventListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &EventListener{dispatcher: dispatcher, metrics: metrics, logger: logger.Named("events")}
	l.RegisterHandlers()
	return l
}

// RegisterHandlers subscribes to events.
func (l *EventListener) RegisterHandlers() {
	if l.dispatcher == nil {
		return
	}
	l.dispatcher.Subscribe(events.EventSubscriptionCreated, l.handleSubscriptionCreated)
	l.dispatcher.Subscribe(events.EventSubscriberConfirmed, l.handleSubscriberConfirmed)
	l.dispatcher.Subscribe(events.EventNewsletterPublished, l.handleNewsletterPublished)
}

func (l *EventListener) handleSubscriptionCreated(_ context.Context, event events.Event) error {
	l.logger.Debug("SubscriptionCreated", zap.String("subscriber_id", event.SubjectID))
	return nil
}

func (l *EventListener) handleSubscriberConfirmed(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SubscriberConfirmedPayload)
	if !ok {
		return fmt.Errorf("%s: unexpected payload %T", event.Type, event.Payload)
	}
	l.metrics.RecordConfirmation(payload.AlreadyConfirmed)
	l.logger.Debug("SubscriberConfirmed",
		zap.String("subscriber_id", event.SubjectID),
		zap.Bool("already_confirmed", payload.AlreadyConfirmed))
	return nil
}

func (l *EventListener) handleNewsletterPublished(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.NewsletterPublishedPayload)
	if !ok {
		return fmt.Errorf("%s: unexpected payload %T", event.Type, event.Payload)
	}
	l.metrics.RecordPublish(payload.Delivered, payload.Failed, payload.Abandoned)
	l.logger.Debug("NewsletterPublished",
		zap.String("issue_id", event.SubjectID),
		zap.Any("payload", payload))
	return nil
}

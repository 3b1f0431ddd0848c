package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/newsletter-service/internal/domain"
	"github.com/spec-kit/newsletter-service/internal/events"
	"github.com/spec-kit/newsletter-service/internal/repository"
)

// ConfirmationResult describes a successful confirmation.
type ConfirmationResult struct {
	SubscriberID string
	// AlreadyConfirmed is true when the link had been followed before.
	AlreadyConfirmed bool
}

// ConfirmationService moves subscribers out of pending confirmation.
type ConfirmationService struct {
	tokens      repository.SubscriptionTokenRepository
	subscribers repository.SubscriberRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// ConfirmationDependencies bundles collaborators for the confirmation service.
type ConfirmationDependencies struct {
	TokenRepo      repository.SubscriptionTokenRepository
	SubscriberRepo repository.SubscriberRepository
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// NewConfirmationService builds the service.
func NewConfirmationService(deps ConfirmationDependencies) *ConfirmationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationService{
		tokens:      deps.TokenRepo,
		subscribers: deps.SubscriberRepo,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
	}
}

// Confirm resolves token and marks its subscriber confirmed. Repeating the
// call with the same token succeeds; tokens are not consumed.
//
// Lookup and update are separate statements. A token deleted between the two
// still converges because Confirmed is absorbing.
func (s *ConfirmationService) Confirm(ctx context.Context, token string) (*ConfirmationResult, error) {
	if token == "" {
		return nil, TokenNotFound(token)
	}

	subscriberID, found, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		return nil, confirmationStoreUnavailable(err)
	}
	if !found {
		return nil, TokenNotFound(token)
	}

	previous, err := s.subscribers.SetStatus(ctx, subscriberID, domain.SubscriberStatusConfirmed)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// dangling token: the binding outlived its subscriber
			return nil, TokenNotFound(token)
		}
		return nil, confirmationStoreUnavailable(err)
	}

	result := &ConfirmationResult{
		SubscriberID:     subscriberID,
		AlreadyConfirmed: previous == domain.SubscriberStatusConfirmed,
	}
	s.logger.Info("subscriber confirmed",
		zap.String("subscriber_id", subscriberID),
		zap.Bool("already_confirmed", result.AlreadyConfirmed))

	if s.dispatcher != nil {
		event := events.NewEvent(events.EventSubscriberConfirmed, subscriberID,
			events.SubscriberConfirmedPayload{AlreadyConfirmed: result.AlreadyConfirmed})
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("subscriber_confirmed handlers failed", zap.Error(err))
		}
	}
	return result, nil
}

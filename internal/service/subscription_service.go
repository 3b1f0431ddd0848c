package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/newsletter-service/internal/domain"
	"github.com/spec-kit/newsletter-service/internal/email"
	"github.com/spec-kit/newsletter-service/internal/events"
	"github.com/spec-kit/newsletter-service/internal/repository"
)

const (
	subscriptionTokenLength   = 25
	subscriptionTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	confirmationSubject       = "Welcome!"
)

// GenerateSubscriptionToken returns a random alphanumeric confirmation token.
func GenerateSubscriptionToken() (string, error) {
	limit := big.NewInt(int64(len(subscriptionTokenAlphabet)))
	buf := make([]byte, subscriptionTokenLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = subscriptionTokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// SubscriptionService handles subscription intake.
type SubscriptionService struct {
	subscribers repository.SubscriberRepository
	email       email.Client
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	baseURL     string
	now         func() time.Time
}

// SubscriptionDependencies bundles collaborators for the subscription service.
type SubscriptionDependencies struct {
	SubscriberRepo repository.SubscriberRepository
	EmailClient    email.Client
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	// BaseURL prefixes confirmation links, without a trailing slash.
	BaseURL string
}

// NewSubscriptionService builds the service.
func NewSubscriptionService(deps SubscriptionDependencies) *SubscriptionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionService{
		subscribers: deps.SubscriberRepo,
		email:       deps.EmailClient,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		baseURL:     deps.BaseURL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe stores a pending subscriber with a fresh token and mails the
// confirmation link. Subscribing again while still pending mails a new link;
// an already confirmed address is rejected.
func (s *SubscriptionService) Subscribe(ctx context.Context, name, emailAddr string) (*domain.Subscriber, error) {
	subscriber, err := domain.NewPendingSubscriber(uuid.NewString(), name, emailAddr, s.now())
	if err != nil {
		field := ""
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			field = verr.Field
		}
		return nil, &SubscriptionError{Kind: KindInvalidPayload, Field: field, Err: err}
	}

	token, err := GenerateSubscriptionToken()
	if err != nil {
		return nil, &SubscriptionError{Kind: KindStoreUnavailable, Err: fmt.Errorf("generate token: %w", err)}
	}

	created := true
	if err := s.subscribers.CreatePending(ctx, subscriber, token); err != nil {
		if !errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, &SubscriptionError{Kind: KindStoreUnavailable, Err: err}
		}
		subscriber, err = s.reissue(ctx, subscriber.Email, token)
		if err != nil {
			return nil, err
		}
		created = false
	}

	link := s.ConfirmationLink(token)
	html := fmt.Sprintf(`Welcome to our newsletter!<br />Click <a href="%s">here</a> to confirm your subscription.`, link)
	text := fmt.Sprintf("Welcome to our newsletter!\nVisit %s to confirm your subscription.", link)
	if err := s.email.Send(ctx, subscriber.Email, confirmationSubject, html, text); err != nil {
		return nil, &SubscriptionError{Kind: KindEmailUnavailable, Err: err}
	}

	if !created {
		s.logger.Info("confirmation link reissued", zap.String("subscriber_id", subscriber.ID))
		return subscriber, nil
	}
	s.logger.Info("subscription created", zap.String("subscriber_id", subscriber.ID))
	if s.dispatcher != nil {
		event := events.NewEvent(events.EventSubscriptionCreated, subscriber.ID,
			events.SubscriptionCreatedPayload{Email: subscriber.Email})
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("subscription_created handlers failed", zap.Error(err))
		}
	}
	return subscriber, nil
}

// reissue binds a fresh token to an address that is still pending, so a
// subscriber whose first confirmation email was lost can ask again.
func (s *SubscriptionService) reissue(ctx context.Context, email, token string) (*domain.Subscriber, error) {
	existing, err := s.subscribers.GetByEmail(ctx, email)
	if err != nil {
		return nil, &SubscriptionError{Kind: KindStoreUnavailable, Err: err}
	}
	if existing.Status == domain.SubscriberStatusConfirmed {
		return nil, &SubscriptionError{Kind: KindAlreadySubscribed, Err: repository.ErrDuplicateEmail}
	}
	if err := s.subscribers.IssueToken(ctx, existing.ID, token); err != nil {
		return nil, &SubscriptionError{Kind: KindStoreUnavailable, Err: err}
	}
	return existing, nil
}

// ConfirmationLink builds the URL a subscriber follows to confirm.
func (s *SubscriptionService) ConfirmationLink(token string) string {
	q := url.Values{"subscription_token": []string{token}}
	return s.baseURL + "/subscriptions/confirm?" + q.Encode()
}

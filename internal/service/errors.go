package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/newsletter-service/internal/domain"
	apperrors "github.com/spec-kit/newsletter-service/pkg/util/errorutil"
)

// ErrorKind tags the failure classes a service can report.
type ErrorKind string

const (
	KindTokenNotFound     ErrorKind = "TOKEN_NOT_FOUND"
	KindInvalidPayload    ErrorKind = "INVALID_PAYLOAD"
	KindStoreUnavailable  ErrorKind = "STORE_UNAVAILABLE"
	KindDeliveryFailed    ErrorKind = "DELIVERY_FAILED"
	KindPublishInProgress ErrorKind = "PUBLISH_IN_PROGRESS"
	KindPublishIncomplete ErrorKind = "PUBLISH_INCOMPLETE"
	KindAlreadySubscribed ErrorKind = "ALREADY_SUBSCRIBED"
	KindEmailUnavailable  ErrorKind = "EMAIL_UNAVAILABLE"
)

// ConfirmationError is returned by ConfirmationService.Confirm.
type ConfirmationError struct {
	Kind  ErrorKind
	Token string
	Err   error
}

func (e *ConfirmationError) Error() string {
	switch e.Kind {
	case KindTokenNotFound:
		return fmt.Sprintf("no subscriber for subscription token %q", e.Token)
	default:
		return fmt.Sprintf("confirm subscription: %v", e.Err)
	}
}

func (e *ConfirmationError) Unwrap() error { return e.Err }

// DomainError maps the failure to its outward representation.
func (e *ConfirmationError) DomainError() *apperrors.DomainError {
	if e.Kind == KindTokenNotFound {
		return apperrors.NewDomainError(string(e.Kind), "subscription token not recognised",
			http.StatusBadRequest, map[string]any{"subscription_token": e.Token})
	}
	return storeUnavailable(e)
}

// TokenNotFound builds the client error for an unknown token.
func TokenNotFound(token string) error {
	return &ConfirmationError{Kind: KindTokenNotFound, Token: token}
}

func confirmationStoreUnavailable(err error) error {
	return &ConfirmationError{Kind: KindStoreUnavailable, Err: err}
}

// PublishError is returned by NewsletterDispatcher.Publish.
type PublishError struct {
	Kind  ErrorKind
	Field string
	// Outcome is set when recipients were already contacted.
	Outcome *PublishOutcome
	Err     error
}

func (e *PublishError) Error() string {
	switch e.Kind {
	case KindInvalidPayload:
		return fmt.Sprintf("invalid newsletter: %v", e.Err)
	case KindPublishInProgress:
		return "an identical newsletter is already being published"
	case KindDeliveryFailed:
		return fmt.Sprintf("every delivery failed: %v", e.Err)
	case KindPublishIncomplete:
		return fmt.Sprintf("publish interrupted: %v", e.Err)
	default:
		return fmt.Sprintf("publish newsletter: %v", e.Err)
	}
}

func (e *PublishError) Unwrap() error { return e.Err }

// DomainError maps the failure to its outward representation.
func (e *PublishError) DomainError() *apperrors.DomainError {
	switch e.Kind {
	case KindInvalidPayload:
		return apperrors.NewDomainError(string(e.Kind), e.Err.Error(),
			http.StatusBadRequest, map[string]any{"field": e.Field})
	case KindPublishInProgress:
		return apperrors.NewDomainError(string(e.Kind), e.Error(), http.StatusConflict, nil)
	case KindDeliveryFailed:
		return &apperrors.DomainError{
			Code:       string(e.Kind),
			Message:    "newsletter could not be delivered to any subscriber",
			HTTPStatus: http.StatusInternalServerError,
			Details:    e.Outcome.summary(),
			Err:        e,
		}
	case KindPublishIncomplete:
		return &apperrors.DomainError{
			Code:       string(e.Kind),
			Message:    "publish stopped before every subscriber was attempted; do not retry blindly",
			HTTPStatus: http.StatusServiceUnavailable,
			Details:    e.Outcome.summary(),
			Err:        e,
		}
	default:
		return storeUnavailable(e)
	}
}

// InvalidPayload wraps a validation failure so it is reported before any dispatch.
func InvalidPayload(err error) error {
	field := ""
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		field = verr.Field
	}
	return &PublishError{Kind: KindInvalidPayload, Field: field, Err: err}
}

func publishStoreUnavailable(err error) error {
	return &PublishError{Kind: KindStoreUnavailable, Err: err}
}

// SubscriptionError is returned by SubscriptionService.Subscribe.
type SubscriptionError struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribe: %v", e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// DomainError maps the failure to its outward representation.
func (e *SubscriptionError) DomainError() *apperrors.DomainError {
	switch e.Kind {
	case KindInvalidPayload:
		return apperrors.NewDomainError(string(e.Kind), e.Err.Error(),
			http.StatusBadRequest, map[string]any{"field": e.Field})
	case KindAlreadySubscribed:
		return apperrors.NewDomainError(string(e.Kind), "email already subscribed", http.StatusConflict, nil)
	case KindEmailUnavailable:
		return &apperrors.DomainError{
			Code:       string(e.Kind),
			Message:    "confirmation email could not be sent",
			HTTPStatus: http.StatusInternalServerError,
			Err:        e,
		}
	default:
		return storeUnavailable(e)
	}
}

func storeUnavailable(cause error) *apperrors.DomainError {
	return &apperrors.DomainError{
		Code:       string(KindStoreUnavailable),
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        cause,
	}
}

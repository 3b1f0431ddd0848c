package domain

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

// SubscriberStatus represents the confirmation lifecycle of a subscriber.
type SubscriberStatus string

const (
	SubscriberStatusPendingConfirmation SubscriberStatus = "pending_confirmation"
	SubscriberStatusConfirmed           SubscriberStatus = "confirmed"
)

// CanTransitionTo reports whether the lifecycle permits moving to next.
// Confirmed is absorbing: it only transitions to itself.
func (s SubscriberStatus) CanTransitionTo(next SubscriberStatus) bool {
	switch s {
	case SubscriberStatusPendingConfirmation:
		return next == SubscriberStatusPendingConfirmation || next == SubscriberStatusConfirmed
	case SubscriberStatusConfirmed:
		return next == SubscriberStatusConfirmed
	default:
		return false
	}
}

// Subscriber is a newsletter recipient.
type Subscriber struct {
	ID           string
	Email        string
	Name         string
	Status       SubscriberStatus
	SubscribedAt time.Time
}

// ConfirmedSubscriber is the projection the dispatcher needs to deliver an issue.
type ConfirmedSubscriber struct {
	ID    string
	Email string
}

const maxNameLength = 256

var forbiddenNameChars = []rune{'/', '(', ')', '"', '<', '>', '\\', '{', '}'}

// ParseSubscriberName trims and validates a display name.
func ParseSubscriberName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", NewValidationError("name", "is required")
	}
	if utf8.RuneCountInString(trimmed) > maxNameLength {
		return "", NewValidationError("name", "is too long")
	}
	if strings.ContainsAny(trimmed, string(forbiddenNameChars)) {
		return "", NewValidationError("name", "contains forbidden characters")
	}
	return trimmed, nil
}

// ParseSubscriberEmail accepts a bare address; display-name forms are rejected.
func ParseSubscriberEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "", NewValidationError("email", "is required")
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed || !strings.Contains(addr.Address, "@") {
		return "", NewValidationError("email", "is not a valid address")
	}
	return addr.Address, nil
}

// NewPendingSubscriber validates intake input and builds a subscriber awaiting confirmation.
func NewPendingSubscriber(id, name, email string, now time.Time) (*Subscriber, error) {
	parsedName, err := ParseSubscriberName(name)
	if err != nil {
		return nil, err
	}
	parsedEmail, err := ParseSubscriberEmail(email)
	if err != nil {
		return nil, err
	}
	return &Subscriber{
		ID:           id,
		Email:        parsedEmail,
		Name:         parsedName,
		Status:       SubscriberStatusPendingConfirmation,
		SubscribedAt: now,
	}, nil
}

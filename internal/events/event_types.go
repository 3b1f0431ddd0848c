package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSubscriptionCreated EventType = "subscription_created"
	EventSubscriberConfirmed EventType = "subscriber_confirmed"
	EventNewsletterPublished EventType = "newsletter_published"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SubjectID string      `json:"subject_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType EventType, subjectID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: subjectID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// SubscriptionCreatedPayload payload.
type SubscriptionCreatedPayload struct {
	Email string `json:"email"`
}

// SubscriberConfirmedPayload payload.
type SubscriberConfirmedPayload struct {
	AlreadyConfirmed bool `json:"already_confirmed"`
}

// NewsletterPublishedPayload payload.
type NewsletterPublishedPayload struct {
	Title      string `json:"title"`
	Recipients int    `json:"recipients"`
	Delivered  int    `json:"delivered"`
	Failed     int    `json:"failed"`
	Abandoned  int    `json:"abandoned"`
}

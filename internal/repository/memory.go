package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/newsletter-service/internal/domain"
)

// MemoryStore is an in-process implementation of the subscriber, token and
// issue repositories. It backs the service when no Postgres DSN is configured.
type MemoryStore struct {
	mu          sync.RWMutex
	subscribers map[string]*domain.Subscriber
	order       []string
	tokens      map[string]string
	issues      []domain.NewsletterIssue
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscribers: make(map[string]*domain.Subscriber),
		tokens:      make(map[string]string),
	}
}

var (
	_ SubscriberRepository        = (*MemoryStore)(nil)
	_ SubscriptionTokenRepository = (*MemoryStore)(nil)
	_ IssueRepository             = (*MemoryStore)(nil)
)

func (m *MemoryStore) CreatePending(_ context.Context, subscriber *domain.Subscriber, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.subscribers {
		if strings.EqualFold(existing.Email, subscriber.Email) {
			return ErrDuplicateEmail
		}
	}
	stored := *subscriber
	m.subscribers[stored.ID] = &stored
	m.order = append(m.order, stored.ID)
	m.tokens[token] = stored.ID
	return nil
}

func (m *MemoryStore) IssueToken(_ context.Context, subscriberID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscribers[subscriberID]; !ok {
		return ErrNotFound
	}
	m.tokens[token] = subscriberID
	return nil
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*domain.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if sub := m.subscribers[id]; strings.EqualFold(sub.Email, email) {
			out := *sub
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindConfirmed(_ context.Context) ([]domain.ConfirmedSubscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ConfirmedSubscriber
	for _, id := range m.order {
		sub := m.subscribers[id]
		if sub.Status == domain.SubscriberStatusConfirmed {
			out = append(out, domain.ConfirmedSubscriber{ID: sub.ID, Email: sub.Email})
		}
	}
	return out, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, id string, status domain.SubscriberStatus) (domain.SubscriberStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscribers[id]
	if !ok {
		return "", ErrNotFound
	}
	previous := sub.Status
	if !previous.CanTransitionTo(status) {
		return previous, ErrInvalidTransition
	}
	sub.Status = status
	return previous, nil
}

func (m *MemoryStore) Resolve(_ context.Context, token string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tokens[token]
	return id, ok, nil
}

func (m *MemoryStore) Create(_ context.Context, issue *domain.NewsletterIssue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	if issue.PublishedAt.IsZero() {
		issue.PublishedAt = time.Now().UTC()
	}
	m.issues = append(m.issues, *issue)
	return nil
}

// Issues returns a copy of the recorded publish outcomes.
func (m *MemoryStore) Issues() []domain.NewsletterIssue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.NewsletterIssue(nil), m.issues...)
}

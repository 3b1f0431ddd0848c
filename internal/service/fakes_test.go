package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/spec-kit/newsletter-service/internal/domain"
	"github.com/spec-kit/newsletter-service/internal/repository"
)

type sentEmail struct {
	Recipient string
	Subject   string
	HTML      string
	Text      string
}

// recordingEmailClient captures every Send and can be told to fail per address.
type recordingEmailClient struct {
	mu      sync.Mutex
	sent    []sentEmail
	failFor map[string]error
	failAll error
	onSend  func(recipient string)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (c *recordingEmailClient) Send(_ context.Context, recipient, subject, htmlBody, textBody string) error {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		current := c.maxInFlight.Load()
		if n <= current || c.maxInFlight.CompareAndSwap(current, n) {
			break
		}
	}
	if c.onSend != nil {
		c.onSend(recipient)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentEmail{Recipient: recipient, Subject: subject, HTML: htmlBody, Text: textBody})
	if c.failAll != nil {
		return c.failAll
	}
	if err, ok := c.failFor[recipient]; ok {
		return err
	}
	return nil
}

func (c *recordingEmailClient) Sent() []sentEmail {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentEmail(nil), c.sent...)
}

func (c *recordingEmailClient) Recipients() []string {
	var out []string
	for _, s := range c.Sent() {
		out = append(out, s.Recipient)
	}
	return out
}

var errStoreDown = errors.New("connection refused")

// brokenStore fails every read it is asked to perform.
type brokenStore struct {
	*repository.MemoryStore
	findCalls atomic.Int32
}

func (b *brokenStore) FindConfirmed(context.Context) ([]domain.ConfirmedSubscriber, error) {
	b.findCalls.Add(1)
	return nil, errStoreDown
}

func (b *brokenStore) Resolve(context.Context, string) (string, bool, error) {
	return "", false, errStoreDown
}

func (b *brokenStore) SetStatus(context.Context, string, domain.SubscriberStatus) (domain.SubscriberStatus, error) {
	return "", errStoreDown
}

func (b *brokenStore) CreatePending(context.Context, *domain.Subscriber, string) error {
	return errStoreDown
}

// countingStore counts enumeration calls on top of the memory store.
type countingStore struct {
	*repository.MemoryStore
	findCalls atomic.Int32
}

func (c *countingStore) FindConfirmed(ctx context.Context) ([]domain.ConfirmedSubscriber, error) {
	c.findCalls.Add(1)
	return c.MemoryStore.FindConfirmed(ctx)
}

// danglingTokens resolves every token to a subscriber id that does not exist.
type danglingTokens struct{}

func (danglingTokens) Resolve(context.Context, string) (string, bool, error) {
	return "7c5f9a52-0000-4000-8000-000000000000", true, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/newsletter-service/internal/config"
	"github.com/spec-kit/newsletter-service/internal/domain"
	"github.com/spec-kit/newsletter-service/internal/events"
	"github.com/spec-kit/newsletter-service/internal/lock"
	"github.com/spec-kit/newsletter-service/internal/repository"
	apperrors "github.com/spec-kit/newsletter-service/pkg/util/errorutil"
)

var testDispatchConfig = config.DispatchConfig{Concurrency: 4, Timeout: 5 * time.Second, LockTTL: time.Minute}

func sampleNewsletter() domain.Newsletter {
	return domain.Newsletter{
		Title: "Newsletter title",
		Content: domain.NewsletterContent{
			Text: "Newsletter body as plain text",
			HTML: "<p>Newsletter body as HTML</p>",
		},
	}
}

func seedConfirmed(t *testing.T, store *repository.MemoryStore, id, email string) {
	t.Helper()
	seedPending(t, store, id, email, "tok-"+id)
	_, err := store.SetStatus(context.Background(), id, domain.SubscriberStatusConfirmed)
	require.NoError(t, err)
}

func TestPublish_NoConfirmedSubscribersSendsNothing(t *testing.T) {
	store := repository.NewMemoryStore()
	seedPending(t, store, "sub-1", "ursula_le_guin@gmail.com", "tok1")
	client := &recordingEmailClient{}
	d := NewNewsletterDispatcher(testDispatchConfig, DispatcherDependencies{SubscriberRepo: store, EmailClient: client})

	outcome, err := d.Publish(context.Background(), sampleNewsletter())
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Recipients)
	assert.Empty(t, client.Sent())
}

func TestPublish_SkipsPendingSubscribers(t *testing.T) {
	store := repository.NewMemoryStore()
	seedConfirmed(t, store, "sub-1", "confirmed@example.com")
	seedPending(t, store, "sub-2", "pending@example.com", "tok2")
	client := &recordingEmailClient{}
	d := NewNewsletterDispatcher(testDispatchConfig, DispatcherDependencies{SubscriberRepo: store, EmailClient: client})

	outcome, err := d.Publish(context.Background(), sampleNewsletter())
	require.NoError(t, err)

	sent := client.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "confirmed@example.com", sent[0].Recipient)
	assert.Equal(t, "Newsletter title", sent[0].Subject)
	assert.Equal(t, "<p>Newsletter body as HTML</p>", sent[0].HTML)
	assert.Equal(t, "Newsletter body as plain text", sent[0].Text)
	assert.Equal(t, 1, outcome.Delivered)
	assert.Equal(t, 1, outcome.Attempted())
}

func TestPublish_InvalidPayloadTouchesNothing(t *testing.T) {
	cases := map[string]struct {
		newsletter domain.Newsletter
		field      string
	}{
		"missing title":    {domain.Newsletter{Content: domain.NewsletterContent{Text: "t", HTML: "h"}}, "title"},
		"everything empty": {domain.Newsletter{}, "title"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := &countingStore{MemoryStore: repository.NewMemoryStore()}
			seedConfirmed(t, store.MemoryStore, "sub-1", "confirmed@example.com")
			client := &recordingEmailClient{}
			d := NewNewsletterDispatcher(testDispatchConfig, DispatcherDependencies{SubscriberRepo: store, EmailClient: client, IssueRepo: store})

			outcome, err := d.Publish(context.Background(), tc.newsletter)
			assert.Nil(t, outcome)

			var perr *PublishError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, KindInvalidPayload, perr.Kind)
			assert.Equal(t, tc.field, perr.Field)
			assert.Equal(t, http.StatusBadRequest, apperrors.ToDomainError(err).HTTPStatus)

			assert.Empty(t, client.Sent())
			assert.Zero(t, store.findCalls.Load())
			assert.Empty(t, store.Issues())
		})
	}
}

func TestPublish_EmptyTextBodyIsDelivered(t *testing.T) {
	store := repository.NewMemoryStore()
	seedConfirmed(t, store, "sub-1", "confirmed@example.com")
	client := &recordingEmailClient{}
	d := NewNewsletterDispatcher(testDispatchConfig, DispatcherDependencies{SubscriberRepo: store, EmailClient: client})

	newsletter := domain.Newsletter{Title: "N", Content: domain.NewsletterContent{HTML: "<p>t</p>"}}
	outcome, err := d.Publish(context.Background(), newsletter)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Delivered)

	sent := client.Sent()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].Text)
	assert.Equal(t, "<p>t</p>", sent[0].HTML)
}

func TestPublish_PartialFailureIsReported(t *testing.T) {
	store := repository.NewMemoryStore()
	seedConfirmed(t, store, "sub-1", "a@example.com")
	seedConfirmed(t, store, "sub-2", "b@example.com")
	seedConfirmed(t, store, "sub-3", "c@example.com")
	client := &recordingEmailClient{failFor: map[string]error{"b@example.com": errors.New("mailbox unavailable")}}
	d := NewNewsletterDispatcher(testDispatchConfig, DispatcherDependencies{SubscriberRepo: store, EmailClient: client, IssueRepo: store})

	outcome, err := d.Publish(context.Background(), sampleNewsletter())
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Recipients)
	assert.Equal(t, 2, outcome.Delivered)
	assert.Equal(t, 1, outcome.Failed)
	assert.Len(t, client.Sent(), 3)

	failures := outcome.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "sub-2", failures[0].SubscriberID)
	assert.Equal(t, "b@example.com", failures[0].Email)
	assert.EqualError(t, failures[0].Err, "mailbox unavailable")

	issues := store.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, outcome.IssueID, issues[0].ID)
	assert.Equal(t, 2, issues[0].Delivered)
	assert.Equal(t, 1, issues[0].Failed)
}

func TestPublish_AllFailedIsDeliveryFailed(t *testing.T) {
	store := repository.NewMemoryStore()
	seedConfirmed(t, store, "sub-1", "a@example.com")
	seedConfirmed(t, store, "sub-2", "b@example.com")
	client := &recordingEmailClient{failAll: errors.New("smtp down")}
	d := NewNewsletterDispatcher(testDispatchConfig, DispatcherDependencies{SubscriberRepo: store, EmailClient: client})

	outcome, err := d.Publish(context.Background(), sampleNewsletter())
	require.NotNil(t, outcome)
	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindDeliveryFailed, perr.Kind)
	assert.Equal(t, 2, outcome.Failed)

	derr := apperrors.ToDomainError(err)
	assert.Equal(t, http.StatusInternalServerError, derr.HTTPStatus)
	assert.Equal(t, 2, derr.Details["failed"])
}

func TestPublish_StoreFailureSendsNothing(t *testing.T) {
	store := &brokenStore{MemoryStore: repository.NewMemoryStore()}
	client := &recordingEmailClient{}
	d := NewNewsletterDispatcher(testDispatchConfig, DispatcherDependencies{SubscriberRepo: store, EmailClient: client})

	_, err := d.Publish(context.Background(), sampleNewsletter())
	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindStoreUnavailable, perr.Kind)
	assert.Empty(t, client.Sent())
}

func TestPublish_CancellationAbandonsRemainingRecipients(t *testing.T) {
	store := repository.NewMemoryStore()
	for i := 1; i <= 3; i++ {
		seedConfirmed(t, store, fmt.Sprintf("sub-%d", i), fmt.Sprintf("r%d@example.com", i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &recordingEmailClient{onSend: func(string) { cancel() }}
	cfg := testDispatchConfig
	cfg.Concurrency = 1
	d := NewNewsletterDispatcher(cfg, DispatcherDependencies{SubscriberRepo: store, EmailClient: client, IssueRepo: store})

	outcome, err := d.Publish(ctx, sampleNewsletter())
	require.NotNil(t, outcome)
	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindPublishIncomplete, perr.Kind)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 3, outcome.Recipients)
	assert.Equal(t, 1, outcome.Delivered)
	assert.Equal(t, 2, outcome.Abandoned)
	assert.Len(t, client.Sent(), 1)

	// the outcome is recorded even though the caller went away
	issues := store.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, 2, issues[0].Abandoned)

	derr := apperrors.ToDomainError(err)
	assert.Equal(t, http.StatusServiceUnavailable, derr.HTTPStatus)
}

func TestPublish_CancelledBeforeDispatchContactsNobody(t *testing.T) {
	store := &countingStore{MemoryStore: repository.NewMemoryStore()}
	seedConfirmed(t, store.MemoryStore, "sub-1", "confirmed@example.com")
	client := &recordingEmailClient{}
	d := NewNewsletterDispatcher(testDispatchConfig, DispatcherDependencies{SubscriberRepo: store, EmailClient: client, IssueRepo: store})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := d.Publish(ctx, sampleNewsletter())
	require.NotNil(t, outcome)
	assert.Zero(t, outcome.Attempted())

	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindPublishIncomplete, perr.Kind)
	assert.ErrorIs(t, err, context.Canceled)

	derr := apperrors.ToDomainError(err)
	assert.Equal(t, "PUBLISH_INCOMPLETE", derr.Code)
	assert.Equal(t, http.StatusServiceUnavailable, derr.HTTPStatus)

	assert.Empty(t, client.Sent())
	assert.Zero(t, store.findCalls.Load())
	assert.Empty(t, store.Issues())
}

func TestPublish_AttemptsEachRecipientExactlyOnce(t *testing.T) {
	store := repository.NewMemoryStore()
	const n = 40
	var want []string
	for i := 0; i < n; i++ {
		addr := fmt.Sprintf("reader%02d@example.com", i)
		want = append(want, addr)
		seedConfirmed(t, store, fmt.Sprintf("sub-%02d", i), addr)
	}
	client := &recordingEmailClient{onSend: func(string) { time.Sleep(time.Millisecond) }}
	d := NewNewsletterDispatcher(testDispatchConfig, DispatcherDependencies{SubscriberRepo: store, EmailClient: client})

	outcome, err := d.Publish(context.Background(), sampleNewsletter())
	require.NoError(t, err)
	assert.Equal(t, n, outcome.Delivered)

	got := client.Recipients()
	sort.Strings(got)
	assert.Equal(t, want, got)
	assert.LessOrEqual(t, client.maxInFlight.Load(), int32(testDispatchConfig.Concurrency))
}

func TestPublish_ConcurrentIdenticalPublishIsRejected(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	locker := lock.NewRedisLocker(rdb, "newsletter:publish:")

	store := repository.NewMemoryStore()
	seedConfirmed(t, store, "sub-1", "a@example.com")
	client := &recordingEmailClient{}
	d := NewNewsletterDispatcher(testDispatchConfig, DispatcherDependencies{SubscriberRepo: store, EmailClient: client, Locker: locker})

	newsletter := sampleNewsletter()
	held, ok, err := locker.TryAcquire(context.Background(), newsletter.Fingerprint(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = d.Publish(context.Background(), newsletter)
	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindPublishInProgress, perr.Kind)
	assert.Equal(t, http.StatusConflict, apperrors.ToDomainError(err).HTTPStatus)
	assert.Empty(t, client.Sent())

	require.NoError(t, held.Release(context.Background()))
	_, err = d.Publish(context.Background(), newsletter)
	require.NoError(t, err)
	assert.Len(t, client.Sent(), 1)
	assert.False(t, mr.Exists(held.Key()), "lock should be released after publish")
}

func TestPublish_LockStoreDownFailsClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	store := repository.NewMemoryStore()
	seedConfirmed(t, store, "sub-1", "a@example.com")
	client := &recordingEmailClient{}
	d := NewNewsletterDispatcher(testDispatchConfig, DispatcherDependencies{
		SubscriberRepo: store,
		EmailClient:    client,
		Locker:         lock.NewRedisLocker(rdb, "newsletter:publish:"),
	})

	_, err := d.Publish(context.Background(), sampleNewsletter())
	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindStoreUnavailable, perr.Kind)
	assert.Empty(t, client.Sent())
}

func TestPublish_EmitsPublishedEvent(t *testing.T) {
	store := repository.NewMemoryStore()
	seedConfirmed(t, store, "sub-1", "a@example.com")
	dispatcher := events.NewInMemoryDispatcher()
	var payload events.NewsletterPublishedPayload
	dispatcher.Subscribe(events.EventNewsletterPublished, func(_ context.Context, e events.Event) error {
		payload = e.Payload.(events.NewsletterPublishedPayload)
		return nil
	})
	d := NewNewsletterDispatcher(testDispatchConfig, DispatcherDependencies{
		SubscriberRepo: store,
		EmailClient:    &recordingEmailClient{},
		Dispatcher:     dispatcher,
	})

	_, err := d.Publish(context.Background(), sampleNewsletter())
	require.NoError(t, err)
	assert.Equal(t, "Newsletter title", payload.Title)
	assert.Equal(t, 1, payload.Delivered)
}

package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/newsletter-service/internal/config"
	"github.com/spec-kit/newsletter-service/internal/domain"
	"github.com/spec-kit/newsletter-service/internal/email"
	"github.com/spec-kit/newsletter-service/internal/events"
	"github.com/spec-kit/newsletter-service/internal/lock"
	"github.com/spec-kit/newsletter-service/internal/repository"
)

const defaultDispatchConcurrency = 8

// DeliveryStatus is the result of one recipient's slot in a publish.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	// DeliveryAbandoned means no attempt was made before the publish was cancelled.
	DeliveryAbandoned DeliveryStatus = "abandoned"
)

// DeliveryOutcome records what happened for one confirmed subscriber.
type DeliveryOutcome struct {
	SubscriberID string
	Email        string
	Status       DeliveryStatus
	Err          error
}

// PublishOutcome aggregates per-recipient outcomes for one publish.
type PublishOutcome struct {
	IssueID    string
	Recipients int
	Delivered  int
	Failed     int
	Abandoned  int
	Deliveries []DeliveryOutcome
}

// Attempted counts recipients that reached the email client.
func (o *PublishOutcome) Attempted() int {
	return o.Delivered + o.Failed
}

// Failures returns the failed deliveries.
func (o *PublishOutcome) Failures() []DeliveryOutcome {
	var out []DeliveryOutcome
	for _, d := range o.Deliveries {
		if d.Status == DeliveryFailed {
			out = append(out, d)
		}
	}
	return out
}

func (o *PublishOutcome) summary() map[string]any {
	if o == nil {
		return nil
	}
	return map[string]any{
		"recipients": o.Recipients,
		"delivered":  o.Delivered,
		"failed":     o.Failed,
		"abandoned":  o.Abandoned,
	}
}

// PublishLocker prevents the same newsletter from being dispatched twice concurrently.
type PublishLocker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (*lock.Lock, bool, error)
}

// NewsletterDispatcher delivers newsletters to confirmed subscribers only.
type NewsletterDispatcher struct {
	subscribers repository.SubscriberRepository
	issues      repository.IssueRepository
	email       email.Client
	locker      PublishLocker
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	concurrency int
	timeout     time.Duration
	lockTTL     time.Duration
}

// DispatcherDependencies bundles collaborators. IssueRepo, Locker and
// Dispatcher are optional.
type DispatcherDependencies struct {
	SubscriberRepo repository.SubscriberRepository
	IssueRepo      repository.IssueRepository
	EmailClient    email.Client
	Locker         PublishLocker
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// NewNewsletterDispatcher builds the dispatcher.
func NewNewsletterDispatcher(cfg config.DispatchConfig, deps DispatcherDependencies) *NewsletterDispatcher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultDispatchConcurrency
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = cfg.Timeout + time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NewsletterDispatcher{
		subscribers: deps.SubscriberRepo,
		issues:      deps.IssueRepo,
		email:       deps.EmailClient,
		locker:      deps.Locker,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		concurrency: concurrency,
		timeout:     cfg.Timeout,
		lockTTL:     lockTTL,
	}
}

// Publish validates the newsletter, then makes exactly one delivery attempt per
// subscriber confirmed at enumeration time. Pending subscribers are never read.
//
// Individual delivery failures are reported in the outcome. An error is
// returned with a non-nil outcome when every attempt failed or when the run
// was cut short; abandoned recipients must not be retried blindly.
func (d *NewsletterDispatcher) Publish(ctx context.Context, newsletter domain.Newsletter) (*PublishOutcome, error) {
	if err := newsletter.Validate(); err != nil {
		return nil, InvalidPayload(err)
	}
	if err := ctx.Err(); err != nil {
		return publishInterrupted(err)
	}

	if d.locker != nil {
		l, acquired, err := d.locker.TryAcquire(ctx, newsletter.Fingerprint(), d.lockTTL)
		if err != nil {
			return nil, publishStoreUnavailable(err)
		}
		if !acquired {
			return nil, &PublishError{Kind: KindPublishInProgress}
		}
		defer func() {
			if err := l.Release(context.WithoutCancel(ctx)); err != nil {
				d.logger.Warn("release publish lock", zap.Error(err))
			}
		}()
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	recipients, err := d.subscribers.FindConfirmed(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return publishInterrupted(ctx.Err())
		}
		return nil, publishStoreUnavailable(err)
	}

	outcome := d.deliver(ctx, newsletter, recipients)
	d.logger.Info("newsletter dispatched",
		zap.String("title", newsletter.Title),
		zap.Int("recipients", outcome.Recipients),
		zap.Int("delivered", outcome.Delivered),
		zap.Int("failed", outcome.Failed),
		zap.Int("abandoned", outcome.Abandoned))

	// outcome bookkeeping must survive a cancelled request
	bookkeeping := context.WithoutCancel(ctx)
	d.recordIssue(bookkeeping, newsletter, outcome)
	d.publishEvent(bookkeeping, newsletter, outcome)

	switch {
	case outcome.Abandoned > 0:
		return outcome, &PublishError{Kind: KindPublishIncomplete, Outcome: outcome, Err: ctx.Err()}
	case outcome.Recipients > 0 && outcome.Failed == outcome.Recipients:
		return outcome, &PublishError{Kind: KindDeliveryFailed, Outcome: outcome, Err: firstFailure(outcome)}
	}
	return outcome, nil
}

// publishInterrupted reports a publish that ended before any recipient was attempted.
func publishInterrupted(err error) (*PublishOutcome, error) {
	outcome := &PublishOutcome{}
	return outcome, &PublishError{Kind: KindPublishIncomplete, Outcome: outcome, Err: err}
}

func (d *NewsletterDispatcher) deliver(ctx context.Context, newsletter domain.Newsletter, recipients []domain.ConfirmedSubscriber) *PublishOutcome {
	deliveries := make([]DeliveryOutcome, len(recipients))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, r := range recipients {
		i, r := i, r
		deliveries[i] = DeliveryOutcome{SubscriberID: r.ID, Email: r.Email, Status: DeliveryAbandoned}
		if ctx.Err() != nil {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			err := d.email.Send(ctx, r.Email, newsletter.Title, newsletter.Content.HTML, newsletter.Content.Text)
			if err != nil {
				d.logger.Warn("newsletter delivery failed",
					zap.String("subscriber_id", r.ID),
					zap.String("email", r.Email),
					zap.Error(err))
				deliveries[i].Status = DeliveryFailed
				deliveries[i].Err = err
				return nil
			}
			deliveries[i].Status = DeliveryDelivered
			return nil
		})
	}
	_ = g.Wait()

	outcome := &PublishOutcome{Recipients: len(recipients), Deliveries: deliveries}
	for _, del := range deliveries {
		switch del.Status {
		case DeliveryDelivered:
			outcome.Delivered++
		case DeliveryFailed:
			outcome.Failed++
		case DeliveryAbandoned:
			outcome.Abandoned++
		}
	}
	return outcome
}

func (d *NewsletterDispatcher) recordIssue(ctx context.Context, newsletter domain.Newsletter, outcome *PublishOutcome) {
	if d.issues == nil {
		return
	}
	issue := &domain.NewsletterIssue{
		Title:      newsletter.Title,
		Recipients: outcome.Recipients,
		Delivered:  outcome.Delivered,
		Failed:     outcome.Failed,
		Abandoned:  outcome.Abandoned,
	}
	if err := d.issues.Create(ctx, issue); err != nil {
		d.logger.Error("record newsletter issue", zap.Error(err))
		return
	}
	outcome.IssueID = issue.ID
}

func (d *NewsletterDispatcher) publishEvent(ctx context.Context, newsletter domain.Newsletter, outcome *PublishOutcome) {
	if d.dispatcher == nil {
		return
	}
	event := events.NewEvent(events.EventNewsletterPublished, outcome.IssueID, events.NewsletterPublishedPayload{
		Title:      newsletter.Title,
		Recipients: outcome.Recipients,
		Delivered:  outcome.Delivered,
		Failed:     outcome.Failed,
		Abandoned:  outcome.Abandoned,
	})
	if err := d.dispatcher.Publish(ctx, event); err != nil {
		d.logger.Warn("newsletter_published handlers failed", zap.Error(err))
	}
}

func firstFailure(outcome *PublishOutcome) error {
	for _, del := range outcome.Deliveries {
		if del.Err != nil {
			return del.Err
		}
	}
	return errors.New("no deliveries succeeded")
}

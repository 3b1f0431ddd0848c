package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/newsletter-service/internal/domain"
	"github.com/spec-kit/newsletter-service/internal/persistence"
)

// SubscriberRepository defines persistence access for subscribers.
type SubscriberRepository interface {
	// CreatePending inserts a pending subscriber together with its confirmation token.
	CreatePending(ctx context.Context, subscriber *domain.Subscriber, token string) error
	// IssueToken binds an additional confirmation token to an existing subscriber.
	IssueToken(ctx context.Context, subscriberID, token string) error
	GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error)
	// FindConfirmed lists every subscriber whose status is confirmed.
	FindConfirmed(ctx context.Context) ([]domain.ConfirmedSubscriber, error)
	// SetStatus moves the subscriber to status and returns the value it replaced.
	// A move the lifecycle forbids leaves the row untouched and fails with
	// ErrInvalidTransition.
	SetStatus(ctx context.Context, id string, status domain.SubscriberStatus) (domain.SubscriberStatus, error)
}

type subscriberRepository struct {
	db persistence.DBTX
}

// NewSubscriberRepository returns a Postgres-backed implementation.
func NewSubscriberRepository(db persistence.DBTX) SubscriberRepository {
	return &subscriberRepository{db: db}
}

func (r *subscriberRepository) CreatePending(ctx context.Context, subscriber *domain.Subscriber, token string) error {
	const insertSubscriber = `
        INSERT INTO subscriptions (id, email, name, subscribed_at, status)
        VALUES ($1, $2, $3, $4, $5)`
	const insertToken = `
        INSERT INTO subscription_tokens (subscription_token, subscriber_id)
        VALUES ($1, $2)`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin subscription: %w", err)
	}

	if _, err := tx.Exec(ctx, insertSubscriber,
		subscriber.ID,
		subscriber.Email,
		subscriber.Name,
		subscriber.SubscribedAt,
		string(subscriber.Status),
	); err != nil {
		_ = tx.Rollback(ctx)
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert subscriber: %w", err)
	}

	if _, err := tx.Exec(ctx, insertToken, token, subscriber.ID); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("insert subscription token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit subscription: %w", err)
	}
	return nil
}

func (r *subscriberRepository) IssueToken(ctx context.Context, subscriberID, token string) error {
	const query = `
        INSERT INTO subscription_tokens (subscription_token, subscriber_id)
        VALUES ($1, $2)`

	if _, err := r.db.Exec(ctx, query, token, subscriberID); err != nil {
		return fmt.Errorf("insert subscription token: %w", err)
	}
	return nil
}

func (r *subscriberRepository) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	const query = `
        SELECT id, email, name, status, subscribed_at
        FROM subscriptions WHERE email = $1`

	var (
		sub    domain.Subscriber
		status string
	)
	if err := r.db.QueryRow(ctx, query, email).Scan(
		&sub.ID,
		&sub.Email,
		&sub.Name,
		&status,
		&sub.SubscribedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sub.Status = domain.SubscriberStatus(status)
	return &sub, nil
}

func (r *subscriberRepository) FindConfirmed(ctx context.Context) ([]domain.ConfirmedSubscriber, error) {
	const query = `
        SELECT id, email FROM subscriptions
        WHERE status = $1`

	rows, err := r.db.Query(ctx, query, string(domain.SubscriberStatusConfirmed))
	if err != nil {
		return nil, fmt.Errorf("find confirmed subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.ConfirmedSubscriber
	for rows.Next() {
		var s domain.ConfirmedSubscriber
		if err := rows.Scan(&s.ID, &s.Email); err != nil {
			return nil, fmt.Errorf("scan confirmed subscriber: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate confirmed subscribers: %w", err)
	}
	return out, nil
}

// SetStatus locks the row in the same statement that updates it, so the
// returned previous status is exact even under concurrent confirmations.
// Confirmed rows keep their status whatever is requested.
func (r *subscriberRepository) SetStatus(ctx context.Context, id string, status domain.SubscriberStatus) (domain.SubscriberStatus, error) {
	const query = `
        UPDATE subscriptions AS s
        SET status = CASE WHEN prev.status = 'confirmed' THEN prev.status ELSE $1 END
        FROM (SELECT id, status FROM subscriptions WHERE id = $2 FOR UPDATE) AS prev
        WHERE s.id = prev.id
        RETURNING prev.status`

	var previous string
	if err := r.db.QueryRow(ctx, query, string(status), id).Scan(&previous); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("set subscriber status: %w", err)
	}
	prev := domain.SubscriberStatus(previous)
	if !prev.CanTransitionTo(status) {
		return prev, ErrInvalidTransition
	}
	return prev, nil
}

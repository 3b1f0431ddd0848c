package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/newsletter-service/internal/persistence"
)

// SubscriptionTokenRepository resolves confirmation tokens to subscriber ids.
type SubscriptionTokenRepository interface {
	// Resolve returns the bound subscriber id; found is false for unknown tokens.
	Resolve(ctx context.Context, token string) (subscriberID string, found bool, err error)
}

type subscriptionTokenRepository struct {
	db persistence.DBTX
}

// NewSubscriptionTokenRepository constructs repository.
func NewSubscriptionTokenRepository(db persistence.DBTX) SubscriptionTokenRepository {
	return &subscriptionTokenRepository{db: db}
}

func (r *subscriptionTokenRepository) Resolve(ctx context.Context, token string) (string, bool, error) {
	const query = `
        SELECT subscriber_id FROM subscription_tokens
        WHERE subscription_token = $1`

	var subscriberID string
	if err := r.db.QueryRow(ctx, query, token).Scan(&subscriberID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("resolve subscription token: %w", err)
	}
	return subscriberID, true, nil
}

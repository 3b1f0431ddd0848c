package repository

import (
	"context"

	"github.com/spec-kit/newsletter-service/internal/domain"
	"github.com/spec-kit/newsletter-service/internal/persistence"
)

// IssueRepository stores publish outcomes.
type IssueRepository interface {
	Create(ctx context.Context, issue *domain.NewsletterIssue) error
}

type issueRepository struct {
	db persistence.DBTX
}

// NewIssueRepository constructs repository.
func NewIssueRepository(db persistence.DBTX) IssueRepository {
	return &issueRepository{db: db}
}

func (r *issueRepository) Create(ctx context.Context, issue *domain.NewsletterIssue) error {
	const query = `
        INSERT INTO newsletter_issues (title, recipients, delivered, failed, abandoned)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, published_at`

	return r.db.QueryRow(ctx, query,
		issue.Title,
		issue.Recipients,
		issue.Delivered,
		issue.Failed,
		issue.Abandoned,
	).Scan(&issue.ID, &issue.PublishedAt)
}

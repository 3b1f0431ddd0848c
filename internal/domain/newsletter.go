package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// NewsletterContent carries both representations of an issue body.
type NewsletterContent struct {
	Text string
	HTML string
}

// Newsletter is a transient publish request; it is never persisted.
type Newsletter struct {
	Title   string
	Content NewsletterContent
}

// Validate checks the fields required before any recipient is contacted.
// Only the title must be non-empty; either body may be an empty string.
func (n Newsletter) Validate() error {
	if n.Title == "" {
		return NewValidationError("title", "is required")
	}
	return nil
}

// Fingerprint is a stable digest of the newsletter used to detect duplicate publishes.
func (n Newsletter) Fingerprint() string {
	h := sha256.New()
	for _, part := range []string{n.Title, n.Content.Text, n.Content.HTML} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewsletterIssue records the outcome of one publish run.
type NewsletterIssue struct {
	ID          string
	Title       string
	Recipients  int
	Delivered   int
	Failed      int
	Abandoned   int
	PublishedAt time.Time
}

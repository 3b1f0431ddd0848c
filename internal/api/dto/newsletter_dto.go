package dto

import (
	"bytes"
	"encoding/json"

	"github.com/spec-kit/newsletter-service/internal/domain"
)

// PublishNewsletterRequest is the raw POST /newsletters body. Fields stay raw so
// a missing field and a wrong-typed field can be told apart.
type PublishNewsletterRequest struct {
	Title   json.RawMessage `json:"title"`
	Content json.RawMessage `json:"content"`
}

type newsletterContentRequest struct {
	Text json.RawMessage `json:"text"`
	HTML json.RawMessage `json:"html"`
}

// DecodeNewsletter parses body into a domain newsletter. Structural problems
// come back as *domain.ValidationError naming the offending field.
func DecodeNewsletter(body []byte) (domain.Newsletter, error) {
	var req PublishNewsletterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return domain.Newsletter{}, domain.NewValidationError("body", "must be a JSON object")
	}

	title, err := stringField("title", req.Title)
	if err != nil {
		return domain.Newsletter{}, err
	}

	if isAbsent(req.Content) {
		return domain.Newsletter{}, domain.NewValidationError("content", "is required")
	}
	var content newsletterContentRequest
	if err := json.Unmarshal(req.Content, &content); err != nil {
		return domain.Newsletter{}, domain.NewValidationError("content", "must be an object")
	}
	text, err := stringField("content.text", content.Text)
	if err != nil {
		return domain.Newsletter{}, err
	}
	html, err := stringField("content.html", content.HTML)
	if err != nil {
		return domain.Newsletter{}, err
	}

	newsletter := domain.Newsletter{
		Title:   title,
		Content: domain.NewsletterContent{Text: text, HTML: html},
	}
	if err := newsletter.Validate(); err != nil {
		return domain.Newsletter{}, err
	}
	return newsletter, nil
}

func stringField(field string, raw json.RawMessage) (string, error) {
	if isAbsent(raw) {
		return "", domain.NewValidationError(field, "is required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", domain.NewValidationError(field, "must be a string")
	}
	return s, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// PublishNewsletterResponse reports a completed dispatch.
type PublishNewsletterResponse struct {
	IssueID    string            `json:"issue_id,omitempty"`
	Recipients int               `json:"recipients"`
	Delivered  int               `json:"delivered"`
	Failed     int               `json:"failed"`
	Abandoned  int               `json:"abandoned"`
	Failures   []DeliveryFailure `json:"failures"`
}

// DeliveryFailure identifies a recipient whose attempt failed.
type DeliveryFailure struct {
	SubscriberID string `json:"subscriber_id"`
	Email        string `json:"email"`
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/newsletter-service/internal/api/dto"
	"github.com/spec-kit/newsletter-service/internal/service"
)

// NewslettersHandler publishes newsletter issues.
type NewslettersHandler struct {
	dispatcher *service.NewsletterDispatcher
}

// NewNewslettersHandler constructs handler.
func NewNewslettersHandler(dispatcher *service.NewsletterDispatcher) *NewslettersHandler {
	return &NewslettersHandler{dispatcher: dispatcher}
}

// Publish POST /newsletters.
func (h *NewslettersHandler) Publish(c *fiber.Ctx) error {
	newsletter, err := dto.DecodeNewsletter(c.Body())
	if err != nil {
		return service.InvalidPayload(err)
	}
	outcome, err := h.dispatcher.Publish(c.UserContext(), newsletter)
	if err != nil {
		return err
	}

	failures := make([]dto.DeliveryFailure, 0, outcome.Failed)
	for _, f := range outcome.Failures() {
		failures = append(failures, dto.DeliveryFailure{SubscriberID: f.SubscriberID, Email: f.Email})
	}
	return c.JSON(fiber.Map{"data": dto.PublishNewsletterResponse{
		IssueID:    outcome.IssueID,
		Recipients: outcome.Recipients,
		Delivered:  outcome.Delivered,
		Failed:     outcome.Failed,
		Abandoned:  outcome.Abandoned,
		Failures:   failures,
	}})
}

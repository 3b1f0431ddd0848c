package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/newsletter-service/internal/api/dto"
	"github.com/spec-kit/newsletter-service/internal/service"
	apperrors "github.com/spec-kit/newsletter-service/pkg/util/errorutil"
)

// SubscriptionsHandler serves subscription intake and confirmation.
type SubscriptionsHandler struct {
	subscriptions *service.SubscriptionService
	confirmations *service.ConfirmationService
}

// NewSubscriptionsHandler constructs handler.
func NewSubscriptionsHandler(subscriptions *service.SubscriptionService, confirmations *service.ConfirmationService) *SubscriptionsHandler {
	return &SubscriptionsHandler{subscriptions: subscriptions, confirmations: confirmations}
}

// Subscribe POST /subscriptions.
func (h *SubscriptionsHandler) Subscribe(c *fiber.Ctx) error {
	var req dto.SubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	sub, err := h.subscriptions.Subscribe(c.UserContext(), req.Name, req.Email)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SubscriptionResponse{
		ID:     sub.ID,
		Email:  sub.Email,
		Name:   sub.Name,
		Status: string(sub.Status),
	}})
}

// Confirm GET /subscriptions/confirm?subscription_token=.
func (h *SubscriptionsHandler) Confirm(c *fiber.Ctx) error {
	result, err := h.confirmations.Confirm(c.UserContext(), c.Query("subscription_token"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ConfirmationResponse{
		SubscriberID:     result.SubscriberID,
		AlreadyConfirmed: result.AlreadyConfirmed,
	}})
}

package dto

// SubscribeRequest payload, accepted as a form or JSON.
type SubscribeRequest struct {
	Name  string `json:"name" form:"name"`
	Email string `json:"email" form:"email"`
}

// SubscriptionResponse describes a newly created pending subscription.
type SubscriptionResponse struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ConfirmationResponse is returned by GET /subscriptions/confirm.
type ConfirmationResponse struct {
	SubscriberID     string `json:"subscriber_id"`
	AlreadyConfirmed bool   `json:"already_confirmed"`
}

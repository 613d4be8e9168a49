package entitlement

import (
	"context"
	"time"
)

// PaymentProvider is the outbound side of the payment provider integration.
// Implementations wrap the provider SDK; the engine never talks to the SDK directly.
type PaymentProvider interface {
	// CreateCustomer registers a billing customer and returns its reference.
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)

	// CreateCheckout opens a hosted checkout carrying the grant metadata.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)

	// CancelAtPeriodEnd schedules the subscription to end at the close of
	// the current billing period.
	CancelAtPeriodEnd(ctx context.Context, subscriptionRef string) error

	// CancelImmediately ends the subscription now so that no further
	// renewal is billed.
	CancelImmediately(ctx context.Context, subscriptionRef string) error

	// Refund issues a full refund of the payment.
	Refund(ctx context.Context, req RefundRequest) error
}

// WebhookVerifier checks the provider signature over the raw event body.
type WebhookVerifier interface {
	Verify(ctx context.Context, payload []byte, signature string) error
}

// EventDecoder turns a verified raw body into a typed Event.
type EventDecoder interface {
	Decode(payload []byte) (Event, error)
}

// CustomerRequest describes a new billing customer.
type CustomerRequest struct {
	UserID string
	Email  string
}

// CheckoutRequest contains the data a checkout must carry back through webhooks.
type CheckoutRequest struct {
	UserID      string
	Email       string
	CustomerRef string
	Tier        Tier
	Scope       *Scope
	SuccessURL  string
}

// Metadata returns the custom data embedded on the checkout and, for
// recurring tiers, on the subscription it creates.
func (r CheckoutRequest) Metadata() map[string]any {
	md := map[string]any{
		MetaUserID: r.UserID,
		MetaTier:   r.Tier.String(),
	}
	if r.Email != "" {
		md[MetaEmail] = r.Email
	}
	if r.Scope != nil {
		md[MetaDocumentID] = r.Scope.DocumentID
		if r.Scope.RoleID != "" {
			md[MetaRoleID] = r.Scope.RoleID
		}
	}
	return md
}

// Metadata keys shared by checkout creation and webhook decoding.
const (
	MetaUserID     = "user_id"
	MetaEmail      = "email"
	MetaTier       = "tier"
	MetaDocumentID = "document_id"
	MetaRoleID     = "role_id"
)

// CheckoutLink is a hosted checkout session.
type CheckoutLink struct {
	URL       string    `json:"url"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RefundRequest identifies the payment to refund.
type RefundRequest struct {
	PaymentRef string
	Reason     string
}

package entitlement

import (
	"time"

	"github.com/google/uuid"
)

// Grant is a single purchased or trial-activated unit of access.
// PaymentRef, SubscriptionRef and CustomerRef are opaque provider identifiers;
// PaymentRef is the idempotency key for admission and SubscriptionRef joins
// later subscription events back to the grant.
type Grant struct {
	ID         uuid.UUID  `json:"id"`
	Tier       Tier       `json:"tier"`
	Scope      *Scope     `json:"scope,omitempty"`
	Status     Status     `json:"status"`
	StartDate  time.Time  `json:"start_date"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`

	PaymentRef      string `json:"payment_ref,omitempty"`
	SubscriptionRef string `json:"subscription_ref,omitempty"`
	CustomerRef     string `json:"customer_ref,omitempty"`

	CancelAtPeriodEnd bool       `json:"cancel_at_period_end,omitempty"`
	RefundRequestedAt *time.Time `json:"refund_requested_at,omitempty"`
	RefundReason      string     `json:"refund_reason,omitempty"`
	ScopeChangedAt    *time.Time `json:"scope_changed_at,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`

	// RefundApprovingAt is set while an administrator's refund is in flight
	// at the provider. ProviderCanceledAt records a subscription deletion
	// that arrived during that window.
	RefundApprovingAt  *time.Time `json:"refund_approving_at,omitempty"`
	ProviderCanceledAt *time.Time `json:"provider_canceled_at,omitempty"`
}

// NewGrant returns an active grant starting at now.
func NewGrant(tier Tier, scope *Scope, now time.Time) Grant {
	g := Grant{
		ID:        uuid.New(),
		Tier:      tier,
		Status:    StatusActive,
		StartDate: now.UTC(),
	}
	if scope != nil {
		s := *scope
		g.Scope = &s
	}
	return g
}

// InGracePeriod reports whether now falls strictly inside the window that
// opens at StartDate.
func (g Grant) InGracePeriod(now time.Time, window time.Duration) bool {
	return now.Sub(g.StartDate) < window
}

// Recurring reports whether the grant is backed by a provider subscription.
func (g Grant) Recurring() bool {
	return g.Tier.Recurring() && g.SubscriptionRef != ""
}

// refundClaimTimeout bounds how long a refund approval may hold a grant.
// An older claim is treated as abandoned.
const refundClaimTimeout = 15 * time.Minute

// RefundInFlight reports whether a refund approval holds the grant at now.
func (g Grant) RefundInFlight(now time.Time) bool {
	return g.RefundApprovingAt != nil && now.Sub(*g.RefundApprovingAt) < refundClaimTimeout
}

func (g Grant) claimedBy(claim time.Time) bool {
	return g.RefundApprovingAt != nil && g.RefundApprovingAt.Equal(claim)
}

func (g Grant) clone() Grant {
	c := g
	if g.Scope != nil {
		s := *g.Scope
		c.Scope = &s
	}
	c.ExpiryDate = cloneTime(g.ExpiryDate)
	c.RefundRequestedAt = cloneTime(g.RefundRequestedAt)
	c.ScopeChangedAt = cloneTime(g.ScopeChangedAt)
	c.EndedAt = cloneTime(g.EndedAt)
	c.RefundApprovingAt = cloneTime(g.RefundApprovingAt)
	c.ProviderCanceledAt = cloneTime(g.ProviderCanceledAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}

package entitlement

import "time"

// Event is a decoded payment provider notification.
// The set of implementations is closed: CheckoutCompleted,
// SubscriptionUpdated, SubscriptionDeleted and IgnoredEvent.
type Event interface {
	EventID() string
	event()
}

// CheckoutCompleted reports a successful payment for a new grant.
// UserID, Tier and Scope come from the metadata embedded at checkout creation.
type CheckoutCompleted struct {
	ID              string
	UserID          string
	Email           string
	Tier            Tier
	Scope           *Scope
	PaymentRef      string
	SubscriptionRef string
	CustomerRef     string
	OccurredAt      time.Time
	PeriodEnd       *time.Time
}

// SubscriptionUpdated reports a state change of a recurring subscription.
type SubscriptionUpdated struct {
	ID                string
	UserID            string
	SubscriptionRef   string
	ProviderStatus    string
	CancelAtPeriodEnd bool
	PeriodEnd         *time.Time
}

// SubscriptionDeleted reports that a recurring subscription has ended.
type SubscriptionDeleted struct {
	ID              string
	UserID          string
	SubscriptionRef string
	OccurredAt      time.Time
}

// IgnoredEvent is any verified event the engine does not act on.
type IgnoredEvent struct {
	ID   string
	Type string
}

func (e CheckoutCompleted) EventID() string   { return e.ID }
func (e SubscriptionUpdated) EventID() string { return e.ID }
func (e SubscriptionDeleted) EventID() string { return e.ID }
func (e IgnoredEvent) EventID() string        { return e.ID }

func (CheckoutCompleted) event()   {}
func (SubscriptionUpdated) event() {}
func (SubscriptionDeleted) event() {}
func (IgnoredEvent) event()        {}

// Outcome describes what the reconciler did with an event.
type Outcome string

const (
	OutcomeAdmitted  Outcome = "admitted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUpdated   Outcome = "updated"
	OutcomeCanceled  Outcome = "canceled"
	OutcomeNoop      Outcome = "noop"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeIgnored   Outcome = "ignored"
)

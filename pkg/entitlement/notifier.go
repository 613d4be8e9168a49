package entitlement

import (
	"context"
	"errors"
	"time"
)

// GrantNotice describes a newly admitted grant for outbound notifications.
type GrantNotice struct {
	UserID        string    `json:"user_id"`
	Email         string    `json:"email,omitempty"`
	GrantID       string    `json:"grant_id"`
	Tier          Tier      `json:"tier"`
	Scope         *Scope    `json:"scope,omitempty"`
	PaymentRef    string    `json:"payment_ref"`
	EffectiveTier Tier      `json:"effective_tier"`
	Superseded    int       `json:"superseded"`
	AdmittedAt    time.Time `json:"admitted_at"`
}

// Notifier delivers admission confirmations. Delivery is best effort:
// a failing notifier never affects the admission itself.
type Notifier interface {
	GrantAdmitted(ctx context.Context, notice GrantNotice) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, notice GrantNotice) error

func (f NotifierFunc) GrantAdmitted(ctx context.Context, notice GrantNotice) error {
	return f(ctx, notice)
}

// MultiNotifier fans a notice out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) GrantAdmitted(ctx context.Context, notice GrantNotice) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.GrantAdmitted(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopNotifier struct{}

func (noopNotifier) GrantAdmitted(context.Context, GrantNotice) error { return nil }

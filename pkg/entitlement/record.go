package entitlement

import (
	"fmt"
	"slices"
	"time"
)

// Record is the per-user entitlement document.
// EffectiveTier is derived from ActiveGrants and is only written by Refresh.
type Record struct {
	UserID        string    `json:"user_id"`
	ActiveGrants  []Grant   `json:"active_grants"`
	History       []Grant   `json:"history"`
	EffectiveTier Tier      `json:"effective_tier"`
	HasUsedTrial  bool      `json:"has_used_trial"`
	CustomerRef   string    `json:"customer_ref,omitempty"`
	Version       int64     `json:"version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewRecord returns an empty record for userID.
func NewRecord(userID string) *Record {
	return &Record{
		UserID:       userID,
		ActiveGrants: []Grant{},
		History:      []Grant{},
	}
}

// Refresh recomputes EffectiveTier from the active grants.
func (r *Record) Refresh() {
	r.EffectiveTier = Resolve(r.ActiveGrants)
}

// Consistent reports whether the cached tier matches the active grants.
func (r *Record) Consistent() bool {
	return r.EffectiveTier == Resolve(r.ActiveGrants)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.ActiveGrants = make([]Grant, len(r.ActiveGrants))
	for i, g := range r.ActiveGrants {
		c.ActiveGrants[i] = g.clone()
	}
	c.History = make([]Grant, len(r.History))
	for i, g := range r.History {
		c.History[i] = g.clone()
	}
	return &c
}

// FindActive returns the index of the active grant with the given payment reference.
func (r *Record) FindActive(paymentRef string) (int, bool) {
	if paymentRef == "" {
		return -1, false
	}
	i := slices.IndexFunc(r.ActiveGrants, func(g Grant) bool { return g.PaymentRef == paymentRef })
	return i, i >= 0
}

// FindActiveBySubscription returns the index of the active grant backed by subscriptionRef.
func (r *Record) FindActiveBySubscription(subscriptionRef string) (int, bool) {
	if subscriptionRef == "" {
		return -1, false
	}
	i := slices.IndexFunc(r.ActiveGrants, func(g Grant) bool { return g.SubscriptionRef == subscriptionRef })
	return i, i >= 0
}

// HasPayment reports whether a grant for paymentRef was ever admitted,
// whether it is still active or already in history.
func (r *Record) HasPayment(paymentRef string) bool {
	if paymentRef == "" {
		return false
	}
	match := func(g Grant) bool { return g.PaymentRef == paymentRef }
	return slices.ContainsFunc(r.ActiveGrants, match) || slices.ContainsFunc(r.History, match)
}

// HasPaidAccess reports whether any purchased grant currently grants access.
func (r *Record) HasPaidAccess() bool {
	return slices.ContainsFunc(r.ActiveGrants, func(g Grant) bool {
		return g.Tier.Paid() && g.Status.GrantsAccess()
	})
}

// PendingRefunds returns copies of the grants waiting for refund approval.
func (r *Record) PendingRefunds() []Grant {
	var out []Grant
	for _, g := range r.ActiveGrants {
		if g.Status == StatusRefundRequested {
			out = append(out, g.clone())
		}
	}
	return out
}

// admit adds g to the active grants. An unlimited grant retires every other
// active grant as superseded. It returns the grants moved to history.
func (r *Record) admit(g Grant, now time.Time) []Grant {
	var superseded []Grant
	if g.Tier == TierUnlimited {
		for _, prev := range r.ActiveGrants {
			prev.Status = StatusSuperseded
			prev.EndedAt = timePtr(now)
			superseded = append(superseded, prev)
		}
		r.History = append(r.History, superseded...)
		r.ActiveGrants = []Grant{g}
	} else {
		r.ActiveGrants = append(r.ActiveGrants, g)
	}
	r.Refresh()
	return superseded
}

// retire moves the active grant at index i to history with the given terminal status.
func (r *Record) retire(i int, status Status, now time.Time) (Grant, error) {
	if i < 0 || i >= len(r.ActiveGrants) {
		return Grant{}, ErrNotFound
	}
	g := r.ActiveGrants[i]
	if !status.Terminal() || !CanTransition(g.Status, status) {
		return Grant{}, fmt.Errorf("%w: %s -> %s", ErrWrongStatus, g.Status, status)
	}
	g.Status = status
	g.EndedAt = timePtr(now)
	r.ActiveGrants = slices.Delete(r.ActiveGrants, i, i+1)
	r.History = append(r.History, g)
	r.Refresh()
	return g, nil
}

// setStatus changes the status of an active grant in place.
func (r *Record) setStatus(i int, status Status) error {
	if i < 0 || i >= len(r.ActiveGrants) {
		return ErrNotFound
	}
	g := &r.ActiveGrants[i]
	if status.Terminal() || !CanTransition(g.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrWrongStatus, g.Status, status)
	}
	g.Status = status
	r.Refresh()
	return nil
}

// claimRefund marks the refund-requested grant as being refunded by the
// caller holding claim.
func (r *Record) claimRefund(paymentRef string, claim time.Time) (Grant, error) {
	i, ok := r.FindActive(paymentRef)
	if !ok || r.ActiveGrants[i].Status != StatusRefundRequested {
		return Grant{}, ErrNotFound
	}
	if r.ActiveGrants[i].RefundInFlight(claim) {
		return Grant{}, fmt.Errorf("%w: refund approval already in progress", ErrWrongStatus)
	}
	r.ActiveGrants[i].RefundApprovingAt = timePtr(claim)
	return r.ActiveGrants[i].clone(), nil
}

// completeRefund retires the grant held by claim as refunded. A grant that
// an unlimited purchase superseded while the refund was in flight stays in
// history and is marked refunded there.
func (r *Record) completeRefund(paymentRef string, claim, now time.Time) error {
	if i, ok := r.FindActive(paymentRef); ok {
		if !r.ActiveGrants[i].claimedBy(claim) {
			return fmt.Errorf("%w: refund claim was taken over", ErrConflict)
		}
		_, err := r.retire(i, StatusRefunded, now)
		return err
	}
	for i := range r.History {
		h := &r.History[i]
		if h.PaymentRef == paymentRef && h.Status == StatusSuperseded && h.claimedBy(claim) {
			h.Status = StatusRefunded
			return nil
		}
	}
	return ErrNotFound
}

// releaseRefund drops the claim after a failed provider call. A deletion
// recorded meanwhile is applied now.
func (r *Record) releaseRefund(paymentRef string, claim, now time.Time) (bool, error) {
	i, ok := r.FindActive(paymentRef)
	if !ok || !r.ActiveGrants[i].claimedBy(claim) {
		return false, nil
	}
	if r.ActiveGrants[i].ProviderCanceledAt != nil {
		_, err := r.retire(i, StatusCanceled, now)
		return err == nil, err
	}
	r.ActiveGrants[i].RefundApprovingAt = nil
	return true, nil
}

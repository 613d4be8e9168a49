package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/examgate/pkg/logger"
)

// Service runs the user and administrator lifecycle actions.
// Every state change goes through Store.Update so that checks and writes
// happen against the same version of the record.
type Service struct {
	store         Store
	provider      PaymentProvider
	authorizer    Authorizer
	policy        Policy
	now           func() time.Time
	logger        *slog.Logger
	manualRefunds bool
}

// NewService creates a Service.
// Panics if store, provider or authorizer is nil.
func NewService(store Store, provider PaymentProvider, authorizer Authorizer, opts ...ServiceOption) *Service {
	if store == nil {
		panic("entitlement: Store is required")
	}
	if provider == nil {
		panic("entitlement: PaymentProvider is required")
	}
	if authorizer == nil {
		panic("entitlement: Authorizer is required")
	}
	s := &Service{
		store:      store,
		provider:   provider,
		authorizer: authorizer,
		policy:     DefaultPolicy(),
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("entitlement_service"))
	return s
}

// Policy returns the rules the service enforces.
func (s *Service) Policy() Policy {
	return s.policy
}

// Trial grants have no provider payment; they get a local reference so the
// user can still address them.
const trialRefPrefix = "trial_"

// CheckoutParams describes a purchase the user wants to start.
type CheckoutParams struct {
	UserID     string
	Email      string
	Tier       Tier
	Scope      *Scope
	SuccessURL string
}

// PendingRefund is one entry of the administrator refund queue.
type PendingRefund struct {
	UserID string `json:"user_id"`
	Grant  Grant  `json:"grant"`
}

// Record returns the user's entitlement record. Users without a record get
// an empty one with no access. Trial grants past their expiry are retired
// before the record is returned; that is the only write on the read path
// and it happens at most once per trial.
func (s *Service) Record(ctx context.Context, userID string) (*Record, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	rec, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return NewRecord(userID), nil
	}
	if err != nil {
		return nil, storageErr(err)
	}

	now := s.now()
	if !hasExpiredTrial(rec, now) {
		return rec, nil
	}
	rec, err = s.store.Update(ctx, userID, func(rec *Record) (bool, error) {
		changed := false
		for {
			i := expiredTrialIndex(rec, now)
			if i < 0 {
				return changed, nil
			}
			if _, err := rec.retire(i, StatusExpired, now); err != nil {
				return false, err
			}
			changed = true
		}
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return rec, nil
}

// CheckAccess reports whether the user may open content within requested.
func (s *Service) CheckAccess(ctx context.Context, userID string, requested Scope) (bool, error) {
	rec, err := s.Record(ctx, userID)
	if err != nil {
		return false, err
	}
	return CanAccess(rec, requested), nil
}

// StartTrial activates the one-time trial.
func (s *Service) StartTrial(ctx context.Context, userID string) (*Record, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	now := s.now()
	rec, err := s.store.Update(ctx, userID, func(rec *Record) (bool, error) {
		if rec.HasUsedTrial {
			return false, ErrAlreadyUsed
		}
		if rec.HasPaidAccess() {
			return false, ErrActivePaidGrant
		}
		g := NewGrant(TierTrial, nil, now)
		g.PaymentRef = trialRefPrefix + g.ID.String()
		g.ExpiryDate = timePtr(now.Add(s.policy.TrialDuration))
		rec.HasUsedTrial = true
		rec.admit(g, now)
		return true, nil
	})
	if err != nil {
		return nil, s.reject(ctx, "start trial", userID, storageErr(err))
	}

	s.logger.InfoContext(ctx, "trial started", logger.UserID(userID))
	return rec, nil
}

// RequestRefund marks a paid grant as waiting for administrator approval.
// Access is kept until the refund is executed.
func (s *Service) RequestRefund(ctx context.Context, userID, paymentRef, reason string) (*Record, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	now := s.now()
	rec, err := s.store.Update(ctx, userID, func(rec *Record) (bool, error) {
		i, ok := rec.FindActive(paymentRef)
		if !ok {
			return false, ErrNotFound
		}
		g := rec.ActiveGrants[i]
		switch {
		case g.Tier == TierTrial:
			return false, ErrNotRefundable
		case g.Status != StatusActive:
			return false, fmt.Errorf("%w: grant is %s", ErrWrongStatus, g.Status)
		case !g.InGracePeriod(now, s.policy.GracePeriod):
			return false, ErrNotEligible
		}
		if err := rec.setStatus(i, StatusRefundRequested); err != nil {
			return false, err
		}
		rec.ActiveGrants[i].RefundRequestedAt = timePtr(now)
		rec.ActiveGrants[i].RefundReason = reason
		return true, nil
	})
	if err != nil {
		return nil, s.reject(ctx, "request refund", userID, storageErr(err))
	}

	s.logger.InfoContext(ctx, "refund requested",
		logger.UserID(userID),
		logger.PaymentRef(paymentRef),
	)
	return rec, nil
}

// ApproveRefund executes a requested refund. The grant is claimed inside
// the store before any money moves, so a second approver gets
// ErrWrongStatus and a subscription deletion arriving meanwhile is deferred
// until the approval settles. A recurring grant has its subscription
// canceled immediately before the refund is issued. If the provider fails
// the claim is released and the grant keeps waiting for approval.
func (s *Service) ApproveRefund(ctx context.Context, adminID, userID, paymentRef string) (*Record, error) {
	if !s.authorizer.IsAdmin(ctx, adminID) {
		return nil, ErrForbidden
	}
	if userID == "" {
		return nil, ErrMissingUserID
	}

	claim := s.now().UTC().Truncate(time.Millisecond)
	var g Grant
	_, err := s.store.Update(ctx, userID, func(rec *Record) (bool, error) {
		var err error
		g, err = rec.claimRefund(paymentRef, claim)
		return err == nil, err
	})
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.reject(ctx, "approve refund", userID, storageErr(err))
	}

	if !s.manualRefunds {
		if err := s.refundAtProvider(ctx, g); err != nil {
			s.releaseRefund(ctx, userID, paymentRef, claim)
			return nil, s.reject(ctx, "approve refund", userID, providerErr(err))
		}
	}

	rec, err := s.store.Update(ctx, userID, func(rec *Record) (bool, error) {
		return true, rec.completeRefund(paymentRef, claim, s.now())
	})
	if err != nil {
		if !s.manualRefunds {
			s.logger.ErrorContext(ctx, "provider refund issued but grant was not retired",
				logger.AdminID(adminID),
				logger.UserID(userID),
				logger.PaymentRef(paymentRef),
				logger.Error(err),
			)
		}
		return nil, storageErr(err)
	}

	s.logger.InfoContext(ctx, "refund approved",
		logger.AdminID(adminID),
		logger.UserID(userID),
		logger.PaymentRef(paymentRef),
		logger.Tier(rec.EffectiveTier.String()),
	)
	return rec, nil
}

func (s *Service) refundAtProvider(ctx context.Context, g Grant) error {
	if g.Recurring() {
		if err := s.provider.CancelImmediately(ctx, g.SubscriptionRef); err != nil {
			return err
		}
	}
	return s.provider.Refund(ctx, RefundRequest{
		PaymentRef: g.PaymentRef,
		Reason:     g.RefundReason,
	})
}

func (s *Service) releaseRefund(ctx context.Context, userID, paymentRef string, claim time.Time) {
	_, err := s.store.Update(ctx, userID, func(rec *Record) (bool, error) {
		return rec.releaseRefund(paymentRef, claim, s.now())
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to release refund claim",
			logger.UserID(userID),
			logger.PaymentRef(paymentRef),
			logger.Error(err),
		)
	}
}

// ChangeScope moves a scoped grant to a different document or role within
// the grace period. StartDate is not reset.
func (s *Service) ChangeScope(ctx context.Context, userID, paymentRef string, scope Scope) (*Record, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	now := s.now()
	rec, err := s.store.Update(ctx, userID, func(rec *Record) (bool, error) {
		i, ok := rec.FindActive(paymentRef)
		if !ok {
			return false, ErrNotFound
		}
		g := rec.ActiveGrants[i]
		switch {
		case !g.Tier.Scoped():
			return false, ErrWrongTier
		case g.Status != StatusActive:
			return false, fmt.Errorf("%w: grant is %s", ErrWrongStatus, g.Status)
		case !g.InGracePeriod(now, s.policy.GracePeriod):
			return false, ErrNotEligible
		}
		if err := ValidateScope(g.Tier, &scope); err != nil {
			return false, err
		}
		if g.Scope != nil && *g.Scope == scope {
			return false, nil
		}
		if s.policy.SingleScopeChange && g.ScopeChangedAt != nil {
			return false, ErrScopeAlreadyChanged
		}

		next := scope
		rec.ActiveGrants[i].Scope = &next
		rec.ActiveGrants[i].ScopeChangedAt = timePtr(now)
		rec.Refresh()
		return true, nil
	})
	if err != nil {
		return nil, s.reject(ctx, "change scope", userID, storageErr(err))
	}

	s.logger.InfoContext(ctx, "grant scope changed",
		logger.UserID(userID),
		logger.PaymentRef(paymentRef),
	)
	return rec, nil
}

// CancelSubscription asks the provider to end a recurring grant at the close
// of the billing period. The record is left unchanged; the provider's
// deletion event retires the grant later.
func (s *Service) CancelSubscription(ctx context.Context, userID, paymentRef string) error {
	if userID == "" {
		return ErrMissingUserID
	}
	rec, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storageErr(err)
	}

	i, ok := rec.FindActive(paymentRef)
	if !ok {
		return ErrNotFound
	}
	g := rec.ActiveGrants[i]
	if !g.Recurring() {
		return s.reject(ctx, "cancel subscription", userID, ErrWrongTier)
	}
	if g.Status != StatusActive {
		return s.reject(ctx, "cancel subscription", userID, fmt.Errorf("%w: grant is %s", ErrWrongStatus, g.Status))
	}

	if err := s.provider.CancelAtPeriodEnd(ctx, g.SubscriptionRef); err != nil {
		return s.reject(ctx, "cancel subscription", userID, providerErr(err))
	}

	s.logger.InfoContext(ctx, "subscription cancellation scheduled",
		logger.UserID(userID),
		logger.SubscriptionRef(g.SubscriptionRef),
	)
	return nil
}

// CreateCheckout opens a hosted checkout for a paid tier. The provider
// customer is created on first purchase and remembered on the record.
func (s *Service) CreateCheckout(ctx context.Context, p CheckoutParams) (*CheckoutLink, error) {
	if p.UserID == "" {
		return nil, ErrMissingUserID
	}
	if !p.Tier.Paid() {
		return nil, fmt.Errorf("%w: %s cannot be purchased", ErrWrongTier, p.Tier)
	}
	if err := ValidateScope(p.Tier, p.Scope); err != nil {
		return nil, err
	}

	rec, err := s.Record(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if rec.EffectiveTier == TierUnlimited {
		return nil, ErrActivePaidGrant
	}

	customerRef, err := s.ensureCustomer(ctx, rec, p)
	if err != nil {
		return nil, err
	}

	link, err := s.provider.CreateCheckout(ctx, CheckoutRequest{
		UserID:      p.UserID,
		Email:       p.Email,
		CustomerRef: customerRef,
		Tier:        p.Tier,
		Scope:       p.Scope,
		SuccessURL:  p.SuccessURL,
	})
	if err != nil {
		return nil, s.reject(ctx, "create checkout", p.UserID, providerErr(err))
	}

	s.logger.InfoContext(ctx, "checkout created",
		logger.UserID(p.UserID),
		logger.Tier(p.Tier.String()),
	)
	return link, nil
}

func (s *Service) ensureCustomer(ctx context.Context, rec *Record, p CheckoutParams) (string, error) {
	if rec.CustomerRef != "" {
		return rec.CustomerRef, nil
	}

	ref, err := s.provider.CreateCustomer(ctx, CustomerRequest{UserID: p.UserID, Email: p.Email})
	if err != nil {
		return "", s.reject(ctx, "create customer", p.UserID, providerErr(err))
	}

	updated, err := s.store.Update(ctx, p.UserID, func(rec *Record) (bool, error) {
		if rec.CustomerRef != "" {
			return false, nil
		}
		rec.CustomerRef = ref
		return true, nil
	})
	if err != nil {
		return "", storageErr(err)
	}
	// A concurrent checkout may have stored its customer first.
	return updated.CustomerRef, nil
}

// ListRefundRequests returns every grant waiting for refund approval.
func (s *Service) ListRefundRequests(ctx context.Context, adminID string) ([]PendingRefund, error) {
	if !s.authorizer.IsAdmin(ctx, adminID) {
		return nil, ErrForbidden
	}
	recs, err := s.store.ListPendingRefunds(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	var out []PendingRefund
	for _, rec := range recs {
		for _, g := range rec.PendingRefunds() {
			out = append(out, PendingRefund{UserID: rec.UserID, Grant: g})
		}
	}
	return out, nil
}

func (s *Service) reject(ctx context.Context, action, userID string, err error) error {
	level := slog.LevelWarn
	if !IsRejection(err) {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, action+" failed",
		logger.UserID(userID),
		logger.Reason(ReasonCode(err)),
		logger.Error(err),
	)
	return err
}

func providerErr(err error) error {
	if errors.Is(err, ErrProvider) || errors.Is(err, ErrProviderUnavailable) {
		return err
	}
	return errors.Join(ErrProvider, err)
}

func hasExpiredTrial(rec *Record, now time.Time) bool {
	return expiredTrialIndex(rec, now) >= 0
}

func expiredTrialIndex(rec *Record, now time.Time) int {
	for i, g := range rec.ActiveGrants {
		if g.Tier == TierTrial && g.Status == StatusActive && g.ExpiryDate != nil && !now.Before(*g.ExpiryDate) {
			return i
		}
	}
	return -1
}

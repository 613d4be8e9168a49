package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/examgate/pkg/logger"
)

// Reconciler applies verified payment provider events to entitlement records.
type Reconciler struct {
	store         Store
	verifier      WebhookVerifier
	decoder       EventDecoder
	notifier      Notifier
	logger        *slog.Logger
	now           func() time.Time
	notifyTimeout time.Duration
	inflight      sync.WaitGroup
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithNotifier sets the admission notifier. Nil is ignored.
func WithNotifier(n Notifier) ReconcilerOption {
	return func(r *Reconciler) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithReconcilerLogger sets the logger used for per-event outcomes.
func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithReconcilerClock overrides the reconciler clock. Tests use it to pin time.
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithNotifyTimeout bounds each best-effort notification.
func WithNotifyTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.notifyTimeout = d
		}
	}
}

// NewReconciler creates a Reconciler.
// Panics if store, verifier or decoder is nil.
func NewReconciler(store Store, verifier WebhookVerifier, decoder EventDecoder, opts ...ReconcilerOption) *Reconciler {
	if store == nil {
		panic("entitlement: Store is required")
	}
	if verifier == nil {
		panic("entitlement: WebhookVerifier is required")
	}
	if decoder == nil {
		panic("entitlement: EventDecoder is required")
	}
	r := &Reconciler{
		store:         store,
		verifier:      verifier,
		decoder:       decoder,
		notifier:      noopNotifier{},
		logger:        slog.Default(),
		now:           func() time.Time { return time.Now().UTC() },
		notifyTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("webhook_reconciler"))
	return r
}

// HandleWebhook verifies the raw payload, decodes it and applies the event.
// The signature is checked before the body is parsed.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	if err := r.verifier.Verify(ctx, payload, signature); err != nil {
		r.logger.WarnContext(ctx, "webhook rejected", logger.Error(err))
		return "", err
	}

	ev, err := r.decoder.Decode(payload)
	if err != nil {
		if !errors.Is(err, ErrMalformedEvent) {
			err = errors.Join(ErrMalformedEvent, err)
		}
		r.logger.ErrorContext(ctx, "webhook payload malformed", logger.Error(err))
		return "", err
	}

	return r.Apply(ctx, ev)
}

// Apply dispatches a decoded event.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (Outcome, error) {
	var (
		outcome Outcome
		err     error
	)
	switch e := ev.(type) {
	case CheckoutCompleted:
		outcome, err = r.admit(ctx, e)
	case SubscriptionUpdated:
		outcome, err = r.updateSubscription(ctx, e)
	case SubscriptionDeleted:
		outcome, err = r.deleteSubscription(ctx, e)
	case IgnoredEvent:
		r.logger.DebugContext(ctx, "webhook event ignored",
			logger.EventType(e.Type),
			logger.MessageID(e.ID),
		)
		return OutcomeIgnored, nil
	default:
		return "", fmt.Errorf("%w: unsupported event %T", ErrMalformedEvent, ev)
	}

	if err != nil {
		r.logger.ErrorContext(ctx, "webhook event failed",
			logger.MessageID(ev.EventID()),
			logger.Error(err),
		)
		return "", err
	}
	r.logger.InfoContext(ctx, "webhook event applied",
		logger.MessageID(ev.EventID()),
		logger.Outcome(string(outcome)),
	)
	return outcome, nil
}

// Wait blocks until in-flight notifications finish.
func (r *Reconciler) Wait() {
	r.inflight.Wait()
}

func (r *Reconciler) admit(ctx context.Context, e CheckoutCompleted) (Outcome, error) {
	switch {
	case e.UserID == "":
		return "", fmt.Errorf("%w: checkout metadata has no user id", ErrMalformedEvent)
	case e.PaymentRef == "":
		return "", fmt.Errorf("%w: checkout has no payment reference", ErrMalformedEvent)
	case !e.Tier.Paid():
		return "", fmt.Errorf("%w: checkout tier %s is not purchasable", ErrMalformedEvent, e.Tier)
	}
	if err := ValidateScope(e.Tier, e.Scope); err != nil {
		return "", errors.Join(ErrMalformedEvent, err)
	}

	now := r.now()
	var (
		outcome Outcome
		notice  GrantNotice
	)
	_, err := r.store.Update(ctx, e.UserID, func(rec *Record) (bool, error) {
		outcome = OutcomeDuplicate
		if rec.HasPayment(e.PaymentRef) {
			return false, nil
		}

		start := e.OccurredAt
		if start.IsZero() {
			start = now
		}
		g := NewGrant(e.Tier, e.Scope, start)
		g.PaymentRef = e.PaymentRef
		g.CustomerRef = e.CustomerRef
		g.ExpiryDate = cloneTime(e.PeriodEnd)
		if e.Tier.Recurring() {
			g.SubscriptionRef = e.SubscriptionRef
		}
		if rec.CustomerRef == "" {
			rec.CustomerRef = e.CustomerRef
		}

		superseded := rec.admit(g, now)
		outcome = OutcomeAdmitted
		notice = GrantNotice{
			UserID:        rec.UserID,
			Email:         e.Email,
			GrantID:       g.ID.String(),
			Tier:          g.Tier,
			Scope:         g.Scope,
			PaymentRef:    g.PaymentRef,
			EffectiveTier: rec.EffectiveTier,
			Superseded:    len(superseded),
			AdmittedAt:    now,
		}
		return true, nil
	})
	if err != nil {
		return "", storageErr(err)
	}

	if outcome == OutcomeAdmitted {
		r.notify(ctx, notice)
	}
	return outcome, nil
}

func (r *Reconciler) updateSubscription(ctx context.Context, e SubscriptionUpdated) (Outcome, error) {
	userID, err := r.resolveUser(ctx, e.UserID, e.SubscriptionRef)
	if errors.Is(err, ErrRecordNotFound) {
		return OutcomeNoop, nil
	}
	if err != nil {
		return "", err
	}

	var outcome Outcome
	_, err = r.store.Update(ctx, userID, func(rec *Record) (bool, error) {
		outcome = OutcomeNoop
		i, ok := rec.FindActiveBySubscription(e.SubscriptionRef)
		if !ok {
			return false, nil
		}

		changed := false
		if rec.ActiveGrants[i].CancelAtPeriodEnd != e.CancelAtPeriodEnd {
			rec.ActiveGrants[i].CancelAtPeriodEnd = e.CancelAtPeriodEnd
			changed = true
		}
		if e.PeriodEnd != nil {
			current := rec.ActiveGrants[i].ExpiryDate
			if current == nil || !current.Equal(*e.PeriodEnd) {
				rec.ActiveGrants[i].ExpiryDate = cloneTime(e.PeriodEnd)
				changed = true
			}
		}

		status := rec.ActiveGrants[i].Status
		switch {
		case e.ProviderStatus == providerStatusPastDue && status == StatusActive:
			if err := rec.setStatus(i, StatusPastDue); err != nil {
				return false, err
			}
			changed = true
		case e.ProviderStatus == providerStatusActive && status == StatusPastDue:
			if err := rec.setStatus(i, StatusActive); err != nil {
				return false, err
			}
			changed = true
		}

		if changed {
			rec.Refresh()
			outcome = OutcomeUpdated
		}
		return changed, nil
	})
	if err != nil {
		return "", storageErr(err)
	}
	return outcome, nil
}

func (r *Reconciler) deleteSubscription(ctx context.Context, e SubscriptionDeleted) (Outcome, error) {
	userID, err := r.resolveUser(ctx, e.UserID, e.SubscriptionRef)
	if errors.Is(err, ErrRecordNotFound) {
		r.logger.InfoContext(ctx, "subscription deletion for unknown reference",
			logger.SubscriptionRef(e.SubscriptionRef),
		)
		return OutcomeNoop, nil
	}
	if err != nil {
		return "", err
	}

	now := r.now()
	var outcome Outcome
	_, err = r.store.Update(ctx, userID, func(rec *Record) (bool, error) {
		outcome = OutcomeNoop
		i, ok := rec.FindActiveBySubscription(e.SubscriptionRef)
		if !ok {
			// Already retired by a refund or an earlier delivery.
			return false, nil
		}
		g := &rec.ActiveGrants[i]
		if g.RefundInFlight(now) {
			// The approval retires the grant: refunded on success,
			// canceled if the provider refund fails.
			outcome = OutcomeDeferred
			if g.ProviderCanceledAt != nil {
				return false, nil
			}
			g.ProviderCanceledAt = timePtr(now)
			return true, nil
		}
		if _, err := rec.retire(i, StatusCanceled, now); err != nil {
			return false, err
		}
		outcome = OutcomeCanceled
		return true, nil
	})
	if err != nil {
		return "", storageErr(err)
	}
	return outcome, nil
}

func (r *Reconciler) resolveUser(ctx context.Context, userID, subscriptionRef string) (string, error) {
	if userID != "" {
		return userID, nil
	}
	if subscriptionRef == "" {
		return "", fmt.Errorf("%w: subscription event has no reference", ErrMalformedEvent)
	}
	found, err := r.store.FindBySubscription(ctx, subscriptionRef)
	if err != nil {
		return "", storageErr(err)
	}
	return found, nil
}

func (r *Reconciler) notify(ctx context.Context, notice GrantNotice) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("admission notifier panicked", slog.Any("panic", p), logger.UserID(notice.UserID))
			}
		}()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.notifyTimeout)
		defer cancel()

		if err := r.notifier.GrantAdmitted(nctx, notice); err != nil {
			r.logger.WarnContext(nctx, "admission notification failed",
				logger.UserID(notice.UserID),
				logger.PaymentRef(notice.PaymentRef),
				logger.Error(err),
			)
		}
	}()
}

// storageErr tags collaborator failures with ErrStorage while leaving
// rejections from the taxonomy untouched.
func storageErr(err error) error {
	if err == nil || IsRejection(err) || errors.Is(err, ErrStorage) {
		return err
	}
	return errors.Join(ErrStorage, err)
}

// Package entitlement decides which exam-prep content a user may open and
// keeps that decision consistent with what the payment provider reports.
//
// # Model
//
// Every user owns a single Record holding the grants that currently unlock
// content (ActiveGrants), the retired ones (History) and a cached
// EffectiveTier. Tiers rank Trial < Role < Document < Unlimited. Role and
// Document grants carry a Scope; the effective tier is the highest tier among
// grants whose Status still grants access, and Record.Refresh is the only
// place that recomputes it.
//
// # Writers
//
// Three actors change records concurrently:
//
//   - Reconciler applies verified provider webhooks (HandleWebhook).
//     Admission is idempotent on the payment reference; an unlimited grant
//     supersedes all others.
//   - Service runs user actions (StartTrial, RequestRefund, ChangeScope,
//     CancelSubscription, CreateCheckout) and administrator actions
//     (ApproveRefund, ListRefundRequests).
//   - Read paths (Service.Record, CanAccess) never mutate paid grants.
//
// All writes go through Store.Update, which runs a Mutation against the
// latest version of one user's record atomically. Backends live in the
// pgstore, redisstore and mongostore subpackages; MemoryStore serves tests
// and single-process deployments.
//
// # Refund approval
//
// ApproveRefund claims the grant inside Store.Update before any provider call,
// so a second approver gets ErrWrongStatus and no refund is issued twice.
// A subscription deletion that arrives while the claim is held is recorded and
// deferred; the refund wins. If the provider fails the claim is released, and a
// deletion recorded meanwhile retires the grant as canceled. Recurring grants
// are canceled at the provider immediately before the refund is issued.
//
// # Usage
//
//	store := pgstore.New(pool)
//	svc := entitlement.NewService(store, provider, entitlement.NewAdminAllowlist(admins...),
//	    entitlement.WithLogger(log),
//	)
//	rec, err := svc.Record(ctx, userID)
//	if err != nil {
//	    return err
//	}
//	if !entitlement.CanAccess(rec, entitlement.Scope{DocumentID: docID, RoleID: roleID}) {
//	    http.Error(w, "upgrade required", http.StatusForbidden)
//	    return
//	}
//
//	reconciler := entitlement.NewReconciler(store, entitlement.NewPaddleVerifier(secret),
//	    entitlement.PaddleDecoder{}, entitlement.WithNotifier(notifier))
//	outcome, err := reconciler.HandleWebhook(ctx, body, r.Header.Get(entitlement.PaddleSignatureHeader))
//
// # Provider
//
// PaymentProvider, WebhookVerifier and EventDecoder isolate the Paddle SDK.
// PaddleProvider, PaddleVerifier and PaddleDecoder implement them, and
// BreakerProvider adds a circuit breaker in front of outbound calls.
//
// # Errors
//
// Preconditions fail with sentinel errors (ErrAlreadyUsed, ErrNotEligible,
// ErrWrongStatus, ...). ReasonCode maps any error to a stable code for
// transport layers.
package entitlement

package entitlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/examgate/pkg/entitlement"
)

const day = 24 * time.Hour

func TestServiceStartTrial(t *testing.T) {
	t.Parallel()

	t.Run("activates once", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec, err := f.service.StartTrial(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, rec.HasUsedTrial)
		assert.Equal(t, entitlement.TierTrial, rec.EffectiveTier)
		require.Len(t, rec.ActiveGrants, 1)
		assert.NotEmpty(t, rec.ActiveGrants[0].PaymentRef)
		require.NotNil(t, rec.ActiveGrants[0].ExpiryDate)
		assert.Equal(t, epoch.Add(3*day), *rec.ActiveGrants[0].ExpiryDate)
		assert.Equal(t, rec.ActiveGrants, f.record(t, "u1").ActiveGrants)

		_, err = f.service.StartTrial(context.Background(), "u1")
		require.ErrorIs(t, err, entitlement.ErrAlreadyUsed)
		assert.Equal(t, "trial_already_used", entitlement.ReasonCode(err))
	})

	t.Run("rejected with an active paid grant", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierRole, roleScope("d1", "r1"), "txn_1")

		_, err := f.service.StartTrial(context.Background(), "u1")
		require.ErrorIs(t, err, entitlement.ErrActivePaidGrant)
		assert.False(t, f.record(t, "u1").HasUsedTrial)
	})

	t.Run("trial expires lazily on read", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.service.StartTrial(context.Background(), "u1")
		require.NoError(t, err)

		f.clock.Advance(3 * day)
		ok, err := f.service.CheckAccess(context.Background(), "u1", entitlement.Scope{DocumentID: "d1"})
		require.NoError(t, err)
		assert.False(t, ok)

		rec := f.record(t, "u1")
		assert.Empty(t, rec.ActiveGrants)
		require.Len(t, rec.History, 1)
		assert.Equal(t, entitlement.StatusExpired, rec.History[0].Status)
		assert.True(t, rec.HasUsedTrial)

		// Expiry is written once; later access checks only read.
		for range 3 {
			_, err := f.service.CheckAccess(context.Background(), "u1", entitlement.Scope{DocumentID: "d1"})
			require.NoError(t, err)
		}
		assert.Equal(t, rec.Version, f.record(t, "u1").Version)
	})

	t.Run("access checks on a live trial do not write", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.service.StartTrial(context.Background(), "u1")
		require.NoError(t, err)
		version := f.record(t, "u1").Version

		f.clock.Advance(day)
		for range 3 {
			ok, err := f.service.CheckAccess(context.Background(), "u1", entitlement.Scope{DocumentID: "d1"})
			require.NoError(t, err)
			assert.True(t, ok)
		}
		assert.Equal(t, version, f.record(t, "u1").Version)
	})

	t.Run("requires user id", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.service.StartTrial(context.Background(), "")
		require.ErrorIs(t, err, entitlement.ErrMissingUserID)
	})
}

func TestServiceRequestRefund(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		elapsed time.Duration
		err     error
	}{
		{"day zero", 0, nil},
		{"day six", 6 * day, nil},
		{"just before the boundary", 7*day - time.Second, nil},
		{"day seven", 7 * day, entitlement.ErrNotEligible},
		{"day eight", 8 * day, entitlement.ErrNotEligible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.purchase(t, "u1", entitlement.TierDocument, docScope("d1"), "txn_1")
			f.clock.Advance(tt.elapsed)

			rec, err := f.service.RequestRefund(context.Background(), "u1", "txn_1", "wrong exam")
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				assert.Equal(t, entitlement.StatusActive, f.record(t, "u1").ActiveGrants[0].Status)
				return
			}
			require.NoError(t, err)
			g := rec.ActiveGrants[0]
			assert.Equal(t, entitlement.StatusRefundRequested, g.Status)
			assert.Equal(t, "wrong exam", g.RefundReason)
			assert.NotNil(t, g.RefundRequestedAt)
			assert.Equal(t, entitlement.TierDocument, rec.EffectiveTier)
			assert.Equal(t, rec.EffectiveTier, f.record(t, "u1").EffectiveTier)
		})
	}

	t.Run("preconditions", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.service.StartTrial(context.Background(), "u1")
		require.NoError(t, err)
		trialRef := f.record(t, "u1").ActiveGrants[0].PaymentRef

		_, err = f.service.RequestRefund(context.Background(), "u1", "txn_missing", "")
		require.ErrorIs(t, err, entitlement.ErrNotFound)

		_, err = f.service.RequestRefund(context.Background(), "u1", trialRef, "")
		require.ErrorIs(t, err, entitlement.ErrNotRefundable)

		f.purchase(t, "u2", entitlement.TierRole, roleScope("d1", "r1"), "txn_2")
		_, err = f.service.RequestRefund(context.Background(), "u2", "txn_2", "")
		require.NoError(t, err)
		_, err = f.service.RequestRefund(context.Background(), "u2", "txn_2", "")
		require.ErrorIs(t, err, entitlement.ErrWrongStatus)
	})
}

func TestServiceApproveRefund(t *testing.T) {
	t.Parallel()

	t.Run("refunds and recomputes the tier", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierRole, roleScope("d1", "r1"), "txn_role")
		f.purchase(t, "u1", entitlement.TierDocument, docScope("d2"), "txn_doc")
		_, err := f.service.RequestRefund(context.Background(), "u1", "txn_doc", "changed mind")
		require.NoError(t, err)

		f.provider.On("Refund", mock.Anything, entitlement.RefundRequest{PaymentRef: "txn_doc", Reason: "changed mind"}).
			Return(nil).Once()

		rec, err := f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_doc")
		require.NoError(t, err)
		f.provider.AssertExpectations(t)

		assert.Equal(t, entitlement.TierRole, rec.EffectiveTier)
		require.Len(t, rec.ActiveGrants, 1)
		require.Len(t, rec.History, 1)
		assert.Equal(t, entitlement.StatusRefunded, rec.History[0].Status)
		assert.NotNil(t, rec.History[0].EndedAt)
		assert.Equal(t, rec.History, f.record(t, "u1").History)
	})

	t.Run("requires administrator", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.service.ApproveRefund(context.Background(), "u1", "u1", "txn_1")
		require.ErrorIs(t, err, entitlement.ErrForbidden)
		f.provider.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
	})

	t.Run("grant must be waiting for approval", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierDocument, docScope("d1"), "txn_1")

		_, err := f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
		require.ErrorIs(t, err, entitlement.ErrNotFound)

		_, err = f.service.ApproveRefund(context.Background(), adminID, "u-none", "txn_1")
		require.ErrorIs(t, err, entitlement.ErrNotFound)
		f.provider.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
	})

	t.Run("provider failure releases the grant", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierDocument, docScope("d1"), "txn_1")
		_, err := f.service.RequestRefund(context.Background(), "u1", "txn_1", "")
		require.NoError(t, err)
		before := f.record(t, "u1")

		f.provider.On("Refund", mock.Anything, mock.Anything).Return(errors.New("gateway timeout")).Once()

		_, err = f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
		require.ErrorIs(t, err, entitlement.ErrProvider)
		assert.Equal(t, "provider_failure", entitlement.ReasonCode(err))

		after := f.record(t, "u1")
		assert.Equal(t, before.ActiveGrants, after.ActiveGrants)
		assert.Nil(t, after.ActiveGrants[0].RefundApprovingAt)
		assert.Empty(t, after.History)

		f.provider.On("Refund", mock.Anything, mock.Anything).Return(nil).Once()
		rec, err := f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
		require.NoError(t, err)
		require.Len(t, rec.History, 1)
		assert.Equal(t, entitlement.StatusRefunded, rec.History[0].Status)
		f.provider.AssertExpectations(t)
	})

	t.Run("recurring grant is canceled at the provider before the refund", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierUnlimited, nil, "txn_1")
		_, err := f.service.RequestRefund(context.Background(), "u1", "txn_1", "")
		require.NoError(t, err)

		var calls []string
		f.provider.On("CancelImmediately", mock.Anything, "sub_txn_1").
			Run(func(mock.Arguments) { calls = append(calls, "cancel") }).Return(nil).Once()
		f.provider.On("Refund", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { calls = append(calls, "refund") }).Return(nil).Once()

		rec, err := f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
		require.NoError(t, err)
		assert.Equal(t, []string{"cancel", "refund"}, calls)
		f.provider.AssertNotCalled(t, "CancelAtPeriodEnd", mock.Anything, mock.Anything)
		require.Len(t, rec.History, 1)
		assert.Equal(t, entitlement.StatusRefunded, rec.History[0].Status)

		outcome, err := f.reconciler.Apply(context.Background(), entitlement.SubscriptionDeleted{
			ID: "evt_del", UserID: "u1", SubscriptionRef: "sub_txn_1",
		})
		require.NoError(t, err)
		assert.Equal(t, entitlement.OutcomeNoop, outcome)
	})

	t.Run("failed subscription cancel skips the refund", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierUnlimited, nil, "txn_1")
		_, err := f.service.RequestRefund(context.Background(), "u1", "txn_1", "")
		require.NoError(t, err)

		f.provider.On("CancelImmediately", mock.Anything, "sub_txn_1").Return(errors.New("boom")).Once()

		_, err = f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
		require.ErrorIs(t, err, entitlement.ErrProvider)
		f.provider.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
		assert.Equal(t, entitlement.StatusRefundRequested, f.record(t, "u1").ActiveGrants[0].Status)
	})

	t.Run("second approver is turned away while a refund is in flight", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierDocument, docScope("d1"), "txn_1")
		_, err := f.service.RequestRefund(context.Background(), "u1", "txn_1", "")
		require.NoError(t, err)

		var secondErr error
		f.provider.On("Refund", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			_, secondErr = f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
		}).Return(nil).Once()

		rec, err := f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
		require.NoError(t, err)
		require.ErrorIs(t, secondErr, entitlement.ErrWrongStatus)
		f.provider.AssertNumberOfCalls(t, "Refund", 1)
		require.Len(t, rec.History, 1)
		assert.Equal(t, entitlement.StatusRefunded, rec.History[0].Status)
	})

	t.Run("abandoned claim can be taken over", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierDocument, docScope("d1"), "txn_1")
		_, err := f.service.RequestRefund(context.Background(), "u1", "txn_1", "")
		require.NoError(t, err)

		stale := f.clock.Now()
		_, err = f.store.Update(context.Background(), "u1", func(rec *entitlement.Record) (bool, error) {
			rec.ActiveGrants[0].RefundApprovingAt = &stale
			return true, nil
		})
		require.NoError(t, err)

		_, err = f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
		require.ErrorIs(t, err, entitlement.ErrWrongStatus)

		f.clock.Advance(time.Hour)
		f.provider.On("Refund", mock.Anything, mock.Anything).Return(nil).Once()
		rec, err := f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
		require.NoError(t, err)
		assert.Equal(t, entitlement.StatusRefunded, rec.History[0].Status)
	})

	t.Run("grant superseded during the refund is recorded as refunded", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierDocument, docScope("d1"), "txn_doc")
		_, err := f.service.RequestRefund(context.Background(), "u1", "txn_doc", "")
		require.NoError(t, err)

		f.provider.On("Refund", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			f.purchase(t, "u1", entitlement.TierUnlimited, nil, "txn_unl")
		}).Return(nil).Once()

		rec, err := f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_doc")
		require.NoError(t, err)
		require.Len(t, rec.History, 1)
		assert.Equal(t, "txn_doc", rec.History[0].PaymentRef)
		assert.Equal(t, entitlement.StatusRefunded, rec.History[0].Status)
		assert.Equal(t, entitlement.TierUnlimited, rec.EffectiveTier)
	})

	t.Run("manual refunds skip the provider", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, entitlement.WithManualRefunds())
		f.purchase(t, "u1", entitlement.TierDocument, docScope("d1"), "txn_1")
		_, err := f.service.RequestRefund(context.Background(), "u1", "txn_1", "")
		require.NoError(t, err)

		rec, err := f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
		require.NoError(t, err)
		assert.Equal(t, entitlement.TierNone, rec.EffectiveTier)
		assert.Empty(t, f.record(t, "u1").ActiveGrants)
		f.provider.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
	})
}

func TestServiceChangeScope(t *testing.T) {
	t.Parallel()

	t.Run("moves scope without resetting the window", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierRole, roleScope("d1", "r1"), "txn_1")
		f.clock.Advance(2 * day)

		rec, err := f.service.ChangeScope(context.Background(), "u1", "txn_1", entitlement.Scope{DocumentID: "d1", RoleID: "r2"})
		require.NoError(t, err)
		g := rec.ActiveGrants[0]
		assert.Equal(t, "r2", g.Scope.RoleID)
		assert.Equal(t, epoch, g.StartDate)
		assert.NotNil(t, g.ScopeChangedAt)

		assert.True(t, entitlement.CanAccess(rec, entitlement.Scope{DocumentID: "d1", RoleID: "r2"}))
		assert.False(t, entitlement.CanAccess(rec, entitlement.Scope{DocumentID: "d1", RoleID: "r1"}))
		assert.Equal(t, "r2", f.record(t, "u1").ActiveGrants[0].Scope.RoleID)
	})

	t.Run("only one change", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierDocument, docScope("d1"), "txn_1")

		_, err := f.service.ChangeScope(context.Background(), "u1", "txn_1", entitlement.Scope{DocumentID: "d2"})
		require.NoError(t, err)
		_, err = f.service.ChangeScope(context.Background(), "u1", "txn_1", entitlement.Scope{DocumentID: "d3"})
		require.ErrorIs(t, err, entitlement.ErrScopeAlreadyChanged)
	})

	t.Run("repeat changes allowed when policy permits", func(t *testing.T) {
		t.Parallel()

		policy := entitlement.DefaultPolicy()
		policy.SingleScopeChange = false
		f := newFixture(t, entitlement.WithPolicy(policy))
		f.purchase(t, "u1", entitlement.TierDocument, docScope("d1"), "txn_1")

		_, err := f.service.ChangeScope(context.Background(), "u1", "txn_1", entitlement.Scope{DocumentID: "d2"})
		require.NoError(t, err)
		rec, err := f.service.ChangeScope(context.Background(), "u1", "txn_1", entitlement.Scope{DocumentID: "d3"})
		require.NoError(t, err)
		assert.Equal(t, "d3", rec.ActiveGrants[0].Scope.DocumentID)
	})

	t.Run("rejections", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierUnlimited, nil, "txn_unl")
		f.purchase(t, "u2", entitlement.TierRole, roleScope("d1", "r1"), "txn_role")

		_, err := f.service.ChangeScope(context.Background(), "u1", "txn_unl", entitlement.Scope{DocumentID: "d1"})
		require.ErrorIs(t, err, entitlement.ErrWrongTier)

		_, err = f.service.ChangeScope(context.Background(), "u2", "txn_role", entitlement.Scope{DocumentID: "d2"})
		require.ErrorIs(t, err, entitlement.ErrInvalidScope)

		f.clock.Advance(7 * day)
		_, err = f.service.ChangeScope(context.Background(), "u2", "txn_role", entitlement.Scope{DocumentID: "d1", RoleID: "r2"})
		require.ErrorIs(t, err, entitlement.ErrNotEligible)
	})

	t.Run("not while a refund is pending", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierDocument, docScope("d1"), "txn_1")
		_, err := f.service.RequestRefund(context.Background(), "u1", "txn_1", "")
		require.NoError(t, err)

		_, err = f.service.ChangeScope(context.Background(), "u1", "txn_1", entitlement.Scope{DocumentID: "d2"})
		require.ErrorIs(t, err, entitlement.ErrWrongStatus)
	})
}

func TestServiceCancelSubscription(t *testing.T) {
	t.Parallel()

	t.Run("schedules cancellation without touching the record", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierUnlimited, nil, "txn_1")
		before := f.record(t, "u1")

		f.provider.On("CancelAtPeriodEnd", mock.Anything, "sub_txn_1").Return(nil).Once()

		require.NoError(t, f.service.CancelSubscription(context.Background(), "u1", "txn_1"))
		f.provider.AssertExpectations(t)
		assert.Equal(t, before, f.record(t, "u1"))
	})

	t.Run("one-time grants are not cancellable", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierDocument, docScope("d1"), "txn_1")

		err := f.service.CancelSubscription(context.Background(), "u1", "txn_1")
		require.ErrorIs(t, err, entitlement.ErrWrongTier)
	})

	t.Run("past due grant is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierUnlimited, nil, "txn_1")
		_, err := f.reconciler.Apply(context.Background(), entitlement.SubscriptionUpdated{
			ID: "evt", UserID: "u1", SubscriptionRef: "sub_txn_1", ProviderStatus: "past_due",
		})
		require.NoError(t, err)

		err = f.service.CancelSubscription(context.Background(), "u1", "txn_1")
		require.ErrorIs(t, err, entitlement.ErrWrongStatus)
	})

	t.Run("provider failure is wrapped", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierUnlimited, nil, "txn_1")
		f.provider.On("CancelAtPeriodEnd", mock.Anything, "sub_txn_1").Return(errors.New("boom")).Once()

		err := f.service.CancelSubscription(context.Background(), "u1", "txn_1")
		require.ErrorIs(t, err, entitlement.ErrProvider)
	})
}

func TestServiceCreateCheckout(t *testing.T) {
	t.Parallel()

	t.Run("creates the customer once and embeds metadata", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		link := &entitlement.CheckoutLink{URL: "https://pay.example.com/txn_1", SessionID: "txn_1"}

		f.provider.On("CreateCustomer", mock.Anything, entitlement.CustomerRequest{UserID: "u1", Email: "u1@example.com"}).
			Return("ctm_1", nil).Once()
		f.provider.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(req entitlement.CheckoutRequest) bool {
			md := req.Metadata()
			return req.CustomerRef == "ctm_1" &&
				md[entitlement.MetaUserID] == "u1" &&
				md[entitlement.MetaTier] == "role" &&
				md[entitlement.MetaDocumentID] == "d1" &&
				md[entitlement.MetaRoleID] == "r1"
		})).Return(link, nil).Twice()

		params := entitlement.CheckoutParams{
			UserID: "u1", Email: "u1@example.com",
			Tier: entitlement.TierRole, Scope: roleScope("d1", "r1"),
		}
		got, err := f.service.CreateCheckout(context.Background(), params)
		require.NoError(t, err)
		assert.Equal(t, link, got)

		_, err = f.service.CreateCheckout(context.Background(), params)
		require.NoError(t, err)

		f.provider.AssertExpectations(t)
		assert.Equal(t, "ctm_1", f.record(t, "u1").CustomerRef)
	})

	t.Run("validates tier and scope", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.service.CreateCheckout(context.Background(), entitlement.CheckoutParams{UserID: "u1", Tier: entitlement.TierTrial})
		require.ErrorIs(t, err, entitlement.ErrWrongTier)

		_, err = f.service.CreateCheckout(context.Background(), entitlement.CheckoutParams{UserID: "u1", Tier: entitlement.TierDocument})
		require.ErrorIs(t, err, entitlement.ErrInvalidScope)
		f.provider.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
	})

	t.Run("nothing to buy above unlimited", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierUnlimited, nil, "txn_1")
		_, err := f.service.CreateCheckout(context.Background(), entitlement.CheckoutParams{UserID: "u1", Tier: entitlement.TierDocument, Scope: docScope("d1")})
		require.ErrorIs(t, err, entitlement.ErrActivePaidGrant)
	})
}

func TestServiceListRefundRequests(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.purchase(t, "u2", entitlement.TierDocument, docScope("d1"), "txn_2")
	f.purchase(t, "u1", entitlement.TierRole, roleScope("d1", "r1"), "txn_1")
	f.purchase(t, "u3", entitlement.TierRole, roleScope("d1", "r1"), "txn_3")
	for _, p := range []struct{ user, ref string }{{"u2", "txn_2"}, {"u1", "txn_1"}} {
		_, err := f.service.RequestRefund(context.Background(), p.user, p.ref, "")
		require.NoError(t, err)
	}

	_, err := f.service.ListRefundRequests(context.Background(), "u1")
	require.ErrorIs(t, err, entitlement.ErrForbidden)

	pending, err := f.service.ListRefundRequests(context.Background(), adminID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "u1", pending[0].UserID)
	assert.Equal(t, "txn_1", pending[0].Grant.PaymentRef)
	assert.Equal(t, "u2", pending[1].UserID)
}

func TestServiceRecordForUnknownUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec, err := f.service.Record(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, entitlement.TierNone, rec.EffectiveTier)
	assert.Empty(t, rec.ActiveGrants)
}

package entitlement_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/examgate/pkg/entitlement"
)

func TestConcurrentAdmissions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	const n = 50

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reconciler.Apply(context.Background(), entitlement.CheckoutCompleted{
				ID:         fmt.Sprintf("evt_%d", i),
				UserID:     "u1",
				Tier:       entitlement.TierRole,
				Scope:      roleScope("d1", fmt.Sprintf("r%d", i)),
				PaymentRef: fmt.Sprintf("txn_%d", i),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec := f.record(t, "u1")
	assert.Len(t, rec.ActiveGrants, n)
	assert.Equal(t, int64(n), rec.Version)
	assert.True(t, rec.Consistent())
}

func TestConcurrentDuplicateDeliveries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ev := entitlement.CheckoutCompleted{
		ID: "evt_1", UserID: "u1", Tier: entitlement.TierDocument,
		Scope: docScope("d1"), PaymentRef: "txn_1",
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := f.reconciler.Apply(context.Background(), ev)
			assert.NoError(t, err)
			if outcome == entitlement.OutcomeAdmitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Len(t, f.record(t, "u1").ActiveGrants, 1)
}

func TestConcurrentUserAndWebhookWriters(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.purchase(t, "u1", entitlement.TierDocument, docScope("d1"), "txn_doc")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.service.RequestRefund(context.Background(), "u1", "txn_doc", "")
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := f.reconciler.Apply(context.Background(), entitlement.CheckoutCompleted{
			ID: "evt_role", UserID: "u1", Tier: entitlement.TierRole,
			Scope: roleScope("d2", "r1"), PaymentRef: "txn_role",
		})
		assert.NoError(t, err)
	}()
	wg.Wait()

	rec := f.record(t, "u1")
	require.Len(t, rec.ActiveGrants, 2)
	i, ok := rec.FindActive("txn_doc")
	require.True(t, ok)
	assert.Equal(t, entitlement.StatusRefundRequested, rec.ActiveGrants[i].Status)
	assert.Equal(t, entitlement.TierDocument, rec.EffectiveTier)
}

// The first writer to commit wins; a grant that reached history is never
// touched again. Once an approval has claimed the grant, the refund wins.
func TestRefundAndCancellationRace(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) *fixture {
		t.Helper()
		f := newFixture(t)
		f.purchase(t, "u1", entitlement.TierUnlimited, nil, "txn_1")
		_, err := f.service.RequestRefund(context.Background(), "u1", "txn_1", "")
		require.NoError(t, err)
		return f
	}
	deleted := entitlement.SubscriptionDeleted{ID: "evt_del", UserID: "u1", SubscriptionRef: "sub_txn_1"}

	t.Run("cancellation first", func(t *testing.T) {
		t.Parallel()

		f := setup(t)
		outcome, err := f.reconciler.Apply(context.Background(), deleted)
		require.NoError(t, err)
		assert.Equal(t, entitlement.OutcomeCanceled, outcome)

		_, err = f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
		require.ErrorIs(t, err, entitlement.ErrNotFound)
		f.provider.AssertNotCalled(t, "CancelImmediately", mock.Anything, mock.Anything)
		f.provider.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)

		rec := f.record(t, "u1")
		require.Len(t, rec.History, 1)
		assert.Equal(t, entitlement.StatusCanceled, rec.History[0].Status)
	})

	t.Run("refund first", func(t *testing.T) {
		t.Parallel()

		f := setup(t)
		f.provider.On("CancelImmediately", mock.Anything, "sub_txn_1").Return(nil).Once()
		f.provider.On("Refund", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
		require.NoError(t, err)

		outcome, err := f.reconciler.Apply(context.Background(), deleted)
		require.NoError(t, err)
		assert.Equal(t, entitlement.OutcomeNoop, outcome)

		rec := f.record(t, "u1")
		require.Len(t, rec.History, 1)
		assert.Equal(t, entitlement.StatusRefunded, rec.History[0].Status)
		assert.Equal(t, entitlement.TierNone, rec.EffectiveTier)
	})

	t.Run("deletion while the refund is in flight", func(t *testing.T) {
		t.Parallel()

		f := setup(t)
		var deletion entitlement.Outcome
		f.provider.On("CancelImmediately", mock.Anything, "sub_txn_1").Return(nil).Once()
		f.provider.On("Refund", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			var err error
			deletion, err = f.reconciler.Apply(context.Background(), deleted)
			assert.NoError(t, err)
			// Redelivery of the same event is absorbed.
			again, err := f.reconciler.Apply(context.Background(), deleted)
			assert.NoError(t, err)
			assert.Equal(t, entitlement.OutcomeDeferred, again)
		}).Return(nil).Once()

		rec, err := f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
		require.NoError(t, err)
		assert.Equal(t, entitlement.OutcomeDeferred, deletion)
		f.provider.AssertNumberOfCalls(t, "Refund", 1)

		assert.Empty(t, rec.ActiveGrants)
		require.Len(t, rec.History, 1)
		assert.Equal(t, entitlement.StatusRefunded, rec.History[0].Status)
		assert.NotNil(t, rec.History[0].ProviderCanceledAt)
		assert.Equal(t, entitlement.TierNone, rec.EffectiveTier)
	})

	t.Run("deletion during a failed refund cancels the grant", func(t *testing.T) {
		t.Parallel()

		f := setup(t)
		f.provider.On("CancelImmediately", mock.Anything, "sub_txn_1").Return(nil).Once()
		f.provider.On("Refund", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			_, err := f.reconciler.Apply(context.Background(), deleted)
			assert.NoError(t, err)
		}).Return(errors.New("declined")).Once()

		_, err := f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
		require.ErrorIs(t, err, entitlement.ErrProvider)

		rec := f.record(t, "u1")
		assert.Empty(t, rec.ActiveGrants)
		require.Len(t, rec.History, 1)
		assert.Equal(t, entitlement.StatusCanceled, rec.History[0].Status)
	})

	t.Run("concurrent approvals refund once", func(t *testing.T) {
		t.Parallel()

		f := setup(t)
		f.provider.On("CancelImmediately", mock.Anything, "sub_txn_1").Return(nil).Maybe()
		f.provider.On("Refund", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			time.Sleep(20 * time.Millisecond)
		}).Return(nil).Maybe()

		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
			turned    atomic.Int32
		)
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.service.ApproveRefund(context.Background(), adminID, "u1", "txn_1")
				switch {
				case err == nil:
					succeeded.Add(1)
				case errors.Is(err, entitlement.ErrWrongStatus), errors.Is(err, entitlement.ErrNotFound):
					turned.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), succeeded.Load())
		assert.Equal(t, int32(4), turned.Load())
		f.provider.AssertNumberOfCalls(t, "Refund", 1)
		f.provider.AssertNumberOfCalls(t, "CancelImmediately", 1)

		rec := f.record(t, "u1")
		require.Len(t, rec.History, 1)
		assert.Equal(t, entitlement.StatusRefunded, rec.History[0].Status)
	})
}

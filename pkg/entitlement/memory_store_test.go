package entitlement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/examgate/pkg/entitlement"
	"github.com/dmitrymomot/examgate/pkg/entitlement/storetest"
)

func TestMemoryStoreContract(t *testing.T) {
	t.Parallel()
	storetest.Run(t, entitlement.NewMemoryStore())
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("get unknown user", func(t *testing.T) {
		t.Parallel()
		_, err := entitlement.NewMemoryStore().Get(ctx, "u1")
		require.ErrorIs(t, err, entitlement.ErrRecordNotFound)
	})

	t.Run("unchanged mutation is not stored", func(t *testing.T) {
		t.Parallel()

		s := entitlement.NewMemoryStore()
		rec, err := s.Update(ctx, "u1", func(*entitlement.Record) (bool, error) { return false, nil })
		require.NoError(t, err)
		assert.Equal(t, "u1", rec.UserID)

		_, err = s.Get(ctx, "u1")
		require.ErrorIs(t, err, entitlement.ErrRecordNotFound)
	})

	t.Run("mutation error aborts the write", func(t *testing.T) {
		t.Parallel()

		s := entitlement.NewMemoryStore()
		boom := errors.New("boom")
		_, err := s.Update(ctx, "u1", func(rec *entitlement.Record) (bool, error) {
			rec.HasUsedTrial = true
			return true, boom
		})
		require.ErrorIs(t, err, boom)

		_, err = s.Get(ctx, "u1")
		require.ErrorIs(t, err, entitlement.ErrRecordNotFound)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		t.Parallel()

		s := entitlement.NewMemoryStore()
		rec, err := s.Update(ctx, "u1", func(rec *entitlement.Record) (bool, error) {
			rec.CustomerRef = "ctm_1"
			return true, nil
		})
		require.NoError(t, err)
		rec.CustomerRef = "changed"

		stored, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "ctm_1", stored.CustomerRef)
		assert.Equal(t, int64(1), stored.Version)
	})

	t.Run("empty user id", func(t *testing.T) {
		t.Parallel()
		_, err := entitlement.NewMemoryStore().Update(ctx, "", func(*entitlement.Record) (bool, error) { return true, nil })
		require.ErrorIs(t, err, entitlement.ErrMissingUserID)
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := entitlement.NewMemoryStore().Update(cctx, "u1", func(*entitlement.Record) (bool, error) { return true, nil })
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestErrorReasonCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err       error
		code      string
		rejection bool
	}{
		{entitlement.ErrAlreadyUsed, "trial_already_used", true},
		{entitlement.ErrNotEligible, "not_eligible", true},
		{entitlement.ErrWrongStatus, "wrong_status", true},
		{entitlement.ErrNotRefundable, "not_refundable", true},
		{entitlement.ErrNotFound, "grant_not_found", true},
		{entitlement.ErrWrongTier, "wrong_tier", true},
		{entitlement.ErrScopeAlreadyChanged, "scope_already_changed", true},
		{errors.Join(entitlement.ErrMalformedEvent, errors.New("eof")), "malformed_event", true},
		{errors.Join(entitlement.ErrStorage, errors.New("conn reset")), "storage_failure", false},
		{errors.Join(entitlement.ErrProviderUnavailable, errors.New("open")), "provider_unavailable", false},
		{errors.New("other"), "internal", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.code, entitlement.ReasonCode(tt.err))
			assert.Equal(t, tt.rejection, entitlement.IsRejection(tt.err))
		})
	}
}

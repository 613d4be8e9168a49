// Package storetest holds the behaviour every entitlement.Store backend must
// share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/examgate/pkg/entitlement"
)

// Run exercises s against the Store contract. User ids are random, so a
// shared database does not need to be cleaned between runs.
func Run(t *testing.T, s entitlement.Store) {
	t.Helper()

	ctx := context.Background()
	user := func() string { return "usr_" + uuid.NewString() }
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("get unknown user", func(t *testing.T) {
		_, err := s.Get(ctx, user())
		require.ErrorIs(t, err, entitlement.ErrRecordNotFound)
	})

	t.Run("missing user id", func(t *testing.T) {
		_, err := s.Update(ctx, "", func(*entitlement.Record) (bool, error) { return true, nil })
		require.ErrorIs(t, err, entitlement.ErrMissingUserID)
	})

	t.Run("unchanged mutation is not stored", func(t *testing.T) {
		id := user()
		rec, err := s.Update(ctx, id, func(*entitlement.Record) (bool, error) { return false, nil })
		require.NoError(t, err)
		assert.Equal(t, id, rec.UserID)

		_, err = s.Get(ctx, id)
		require.ErrorIs(t, err, entitlement.ErrRecordNotFound)
	})

	t.Run("mutation error aborts the write", func(t *testing.T) {
		id := user()
		boom := errors.New("boom")
		_, err := s.Update(ctx, id, func(rec *entitlement.Record) (bool, error) {
			rec.HasUsedTrial = true
			return true, boom
		})
		require.ErrorIs(t, err, boom)

		_, err = s.Get(ctx, id)
		require.ErrorIs(t, err, entitlement.ErrRecordNotFound)
	})

	t.Run("round trip", func(t *testing.T) {
		id := user()
		g := entitlement.NewGrant(entitlement.TierDocument, &entitlement.Scope{DocumentID: "d1"}, now)
		g.PaymentRef = "txn_" + id
		g.SubscriptionRef = "sub_" + id

		stored, err := s.Update(ctx, id, func(rec *entitlement.Record) (bool, error) {
			rec.ActiveGrants = append(rec.ActiveGrants, g)
			rec.CustomerRef = "ctm_1"
			rec.Refresh()
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.Version)
		assert.False(t, stored.UpdatedAt.IsZero())

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.UserID)
		assert.Equal(t, entitlement.TierDocument, got.EffectiveTier)
		assert.Equal(t, "ctm_1", got.CustomerRef)
		assert.Equal(t, int64(1), got.Version)
		require.Len(t, got.ActiveGrants, 1)
		assert.Equal(t, g.ID, got.ActiveGrants[0].ID)
		assert.Equal(t, "d1", got.ActiveGrants[0].Scope.DocumentID)
		assert.True(t, g.StartDate.Equal(got.ActiveGrants[0].StartDate))
		assert.Empty(t, got.History)
	})

	t.Run("version increments per write", func(t *testing.T) {
		id := user()
		for i := range 3 {
			rec, err := s.Update(ctx, id, func(rec *entitlement.Record) (bool, error) {
				rec.CustomerRef = fmt.Sprintf("ctm_%d", i)
				return true, nil
			})
			require.NoError(t, err)
			assert.Equal(t, int64(i+1), rec.Version)
		}
	})

	t.Run("find by subscription", func(t *testing.T) {
		id := user()
		sub := "sub_" + uuid.NewString()
		g := entitlement.NewGrant(entitlement.TierUnlimited, nil, now)
		g.PaymentRef = "txn_" + uuid.NewString()
		g.SubscriptionRef = sub

		_, err := s.Update(ctx, id, func(rec *entitlement.Record) (bool, error) {
			rec.ActiveGrants = append(rec.ActiveGrants, g)
			rec.Refresh()
			return true, nil
		})
		require.NoError(t, err)

		owner, err := s.FindBySubscription(ctx, sub)
		require.NoError(t, err)
		assert.Equal(t, id, owner)

		_, err = s.FindBySubscription(ctx, "sub_unknown_"+uuid.NewString())
		require.ErrorIs(t, err, entitlement.ErrRecordNotFound)

		// Retired grants are no longer indexed.
		_, err = s.Update(ctx, id, func(rec *entitlement.Record) (bool, error) {
			ended := rec.ActiveGrants[0]
			ended.Status = entitlement.StatusCanceled
			rec.History = append(rec.History, ended)
			rec.ActiveGrants = rec.ActiveGrants[:0]
			rec.Refresh()
			return true, nil
		})
		require.NoError(t, err)

		_, err = s.FindBySubscription(ctx, sub)
		require.ErrorIs(t, err, entitlement.ErrRecordNotFound)
	})

	t.Run("list pending refunds", func(t *testing.T) {
		pending, idle := user(), user()
		requested := entitlement.NewGrant(entitlement.TierDocument, &entitlement.Scope{DocumentID: "d1"}, now)
		requested.PaymentRef = "txn_" + uuid.NewString()
		requested.Status = entitlement.StatusRefundRequested
		active := entitlement.NewGrant(entitlement.TierDocument, &entitlement.Scope{DocumentID: "d2"}, now)
		active.PaymentRef = "txn_" + uuid.NewString()

		for id, g := range map[string]entitlement.Grant{pending: requested, idle: active} {
			_, err := s.Update(ctx, id, func(rec *entitlement.Record) (bool, error) {
				rec.ActiveGrants = append(rec.ActiveGrants, g)
				rec.Refresh()
				return true, nil
			})
			require.NoError(t, err)
		}

		recs, err := s.ListPendingRefunds(ctx)
		require.NoError(t, err)

		var found, foundIdle bool
		for _, rec := range recs {
			switch rec.UserID {
			case pending:
				found = true
				require.Len(t, rec.PendingRefunds(), 1)
			case idle:
				foundIdle = true
			}
		}
		assert.True(t, found)
		assert.False(t, foundIdle)
	})

	t.Run("concurrent writers are serialised", func(t *testing.T) {
		id := user()
		const n = 20

		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				g := entitlement.NewGrant(entitlement.TierRole, &entitlement.Scope{
					DocumentID: "d1",
					RoleID:     fmt.Sprintf("r%d", i),
				}, now)
				g.PaymentRef = fmt.Sprintf("txn_%s_%d", id, i)

				var err error
				for range 5 {
					_, err = s.Update(ctx, id, func(rec *entitlement.Record) (bool, error) {
						rec.ActiveGrants = append(rec.ActiveGrants, g)
						rec.Refresh()
						return true, nil
					})
					if !errors.Is(err, entitlement.ErrConflict) {
						break
					}
				}
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		rec, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Len(t, rec.ActiveGrants, n)
		assert.Equal(t, int64(n), rec.Version)
		assert.True(t, rec.Consistent())
	})
}

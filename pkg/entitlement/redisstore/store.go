// Package redisstore is the Redis entitlement.Store.
//
// Records live as JSON strings under <prefix>:ent:rec:<user>. Update runs
// inside WATCH on that key and commits with MULTI/EXEC, so a concurrent
// writer aborts the transaction and the cycle restarts. Subscription refs are
// indexed under <prefix>:ent:sub:<ref> and users with open refund requests
// are kept in the <prefix>:ent:refunds set.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/examgate/pkg/entitlement"
)

const (
	defaultMaxRetries = 10
	defaultScanBatch  = 500
)

// Store implements entitlement.Store on go-redis.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
	scanBatch  int64
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix namespaces every key. Defaults to "examgate".
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxRetries bounds optimistic retries before ErrConflict.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithScanBatchSize sets the SSCAN COUNT hint.
func WithScanBatchSize(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.scanBatch = n
		}
	}
}

// New returns a Store using client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	if client == nil {
		panic("redisstore: client is required")
	}
	s := &Store{
		client:     client,
		prefix:     "examgate",
		maxRetries: defaultMaxRetries,
		scanBatch:  defaultScanBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) recordKey(userID string) string { return s.prefix + ":ent:rec:" + userID }
func (s *Store) subKey(ref string) string       { return s.prefix + ":ent:sub:" + ref }
func (s *Store) refundsKey() string             { return s.prefix + ":ent:refunds" }

// Get loads the user's record. It returns entitlement.ErrRecordNotFound when
// the key does not exist.
func (s *Store) Get(ctx context.Context, userID string) (*entitlement.Record, error) {
	raw, err := s.client.Get(ctx, s.recordKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, entitlement.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

// Update applies m under WATCH/MULTI on the user's key and retries when another
// writer got in first. It gives up with entitlement.ErrConflict after the
// configured number of attempts. The write is skipped when m reports no change.
func (s *Store) Update(ctx context.Context, userID string, m entitlement.Mutation) (*entitlement.Record, error) {
	if userID == "" {
		return nil, entitlement.ErrMissingUserID
	}

	key := s.recordKey(userID)
	for range s.maxRetries {
		var out *entitlement.Record
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			rec := entitlement.NewRecord(userID)
			raw, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				if rec, err = decode(raw); err != nil {
					return err
				}
			}

			before := subscriptionRefs(rec)
			changed, err := m(rec)
			if err != nil {
				return err
			}
			out = rec
			if !changed {
				return nil
			}

			rec.Version++
			rec.UpdatedAt = time.Now().UTC()
			doc, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			after := subscriptionRefs(rec)

			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, doc, 0)
				for _, ref := range before {
					if !slices.Contains(after, ref) {
						p.Del(ctx, s.subKey(ref))
					}
				}
				for _, ref := range after {
					p.Set(ctx, s.subKey(ref), userID, 0)
				}
				if len(rec.PendingRefunds()) > 0 {
					p.SAdd(ctx, s.refundsKey(), userID)
				} else {
					p.SRem(ctx, s.refundsKey(), userID)
				}
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, entitlement.ErrConflict
}

// FindBySubscription resolves the index and confirms the grant is still
// active on the owning record.
func (s *Store) FindBySubscription(ctx context.Context, subscriptionRef string) (string, error) {
	if subscriptionRef == "" {
		return "", entitlement.ErrRecordNotFound
	}
	userID, err := s.client.Get(ctx, s.subKey(subscriptionRef)).Result()
	if errors.Is(err, redis.Nil) {
		return "", entitlement.ErrRecordNotFound
	}
	if err != nil {
		return "", err
	}

	rec, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if _, ok := rec.FindActiveBySubscription(subscriptionRef); !ok {
		return "", entitlement.ErrRecordNotFound
	}
	return userID, nil
}

// ListPendingRefunds returns records tracked in the pending-refund set.
func (s *Store) ListPendingRefunds(ctx context.Context) ([]*entitlement.Record, error) {
	var (
		out    []*entitlement.Record
		cursor uint64
	)
	for {
		users, next, err := s.client.SScan(ctx, s.refundsKey(), cursor, "", s.scanBatch).Result()
		if err != nil {
			return nil, err
		}
		if len(users) > 0 {
			keys := make([]string, len(users))
			for i, u := range users {
				keys[i] = s.recordKey(u)
			}
			vals, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, err
			}
			for _, v := range vals {
				raw, ok := v.(string)
				if !ok {
					continue
				}
				rec, err := decode([]byte(raw))
				if err != nil {
					return nil, err
				}
				if len(rec.PendingRefunds()) > 0 {
					out = append(out, rec)
				}
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Healthcheck sends PING.
func (s *Store) Healthcheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func subscriptionRefs(rec *entitlement.Record) []string {
	var refs []string
	for _, g := range rec.ActiveGrants {
		if g.SubscriptionRef != "" {
			refs = append(refs, g.SubscriptionRef)
		}
	}
	return refs
}

func decode(raw []byte) (*entitlement.Record, error) {
	rec := &entitlement.Record{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, err
	}
	if rec.ActiveGrants == nil {
		rec.ActiveGrants = []entitlement.Grant{}
	}
	if rec.History == nil {
		rec.History = []entitlement.Grant{}
	}
	return rec, nil
}

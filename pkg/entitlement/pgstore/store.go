// Package pgstore is the PostgreSQL entitlement.Store. Each user record is a
// JSONB document; Update locks the row with SELECT ... FOR UPDATE for the
// whole read-modify-write cycle.
//
// Apply the embedded migrations before first use:
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log); err != nil {
//	    return err
//	}
//	store := pgstore.New(pool, pgstore.WithMaxRetries(5))
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/examgate/pkg/entitlement"
	"github.com/dmitrymomot/examgate/pkg/pg"
)

const defaultMaxRetries = 5

var errInsertRace = errors.New("pgstore: record created concurrently")

// Store implements entitlement.Store on a pgx pool.
type Store struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries bounds how often Update restarts after a serialization
// failure or a concurrent first insert.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// New returns a Store backed by pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	s := &Store{pool: pool, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get loads the user's record. It returns entitlement.ErrRecordNotFound when
// the user has never been written.
func (s *Store) Get(ctx context.Context, userID string) (*entitlement.Record, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT document FROM entitlement_records WHERE user_id = $1`, userID,
	).Scan(&doc)
	if pg.IsNotFoundError(err) {
		return nil, entitlement.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(doc)
}

// Update runs m inside a transaction holding a row lock on the user's record,
// so concurrent updates for the same user are serialized by Postgres. A missing
// row starts from a fresh record. The write is skipped when m reports no change.
// Insert races and serialization failures are retried before ErrConflict.
func (s *Store) Update(ctx context.Context, userID string, m entitlement.Mutation) (*entitlement.Record, error) {
	if userID == "" {
		return nil, entitlement.ErrMissingUserID
	}

	var lastErr error
	for range s.maxRetries {
		rec, err := s.update(ctx, userID, m)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, errInsertRace) && !pg.IsSerializationError(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, errors.Join(entitlement.ErrConflict, lastErr)
}

func (s *Store) update(ctx context.Context, userID string, m entitlement.Mutation) (*entitlement.Record, error) {
	var out *entitlement.Record
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var doc []byte
		err := tx.QueryRow(ctx,
			`SELECT document FROM entitlement_records WHERE user_id = $1 FOR UPDATE`, userID,
		).Scan(&doc)

		exists := true
		rec := entitlement.NewRecord(userID)
		switch {
		case pg.IsNotFoundError(err):
			exists = false
		case err != nil:
			return err
		default:
			if rec, err = decode(doc); err != nil {
				return err
			}
		}

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
		doc, err = json.Marshal(rec)
		if err != nil {
			return err
		}

		if exists {
			_, err = tx.Exec(ctx,
				`UPDATE entitlement_records SET document = $2, version = $3, updated_at = $4 WHERE user_id = $1`,
				userID, doc, rec.Version, rec.UpdatedAt,
			)
			return err
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO entitlement_records (user_id, document, version, updated_at)
			 VALUES ($1, $2, $3, $4) ON CONFLICT (user_id) DO NOTHING`,
			userID, doc, rec.Version, rec.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errInsertRace
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindBySubscription returns the user owning the active grant with the given
// subscription ref.
func (s *Store) FindBySubscription(ctx context.Context, subscriptionRef string) (string, error) {
	if subscriptionRef == "" {
		return "", entitlement.ErrRecordNotFound
	}
	filter, err := json.Marshal([]map[string]string{{"subscription_ref": subscriptionRef}})
	if err != nil {
		return "", err
	}

	var userID string
	err = s.pool.QueryRow(ctx,
		`SELECT user_id FROM entitlement_records
		 WHERE document -> 'active_grants' @> $1::jsonb
		 ORDER BY updated_at DESC LIMIT 1`, filter,
	).Scan(&userID)
	if pg.IsNotFoundError(err) {
		return "", entitlement.ErrRecordNotFound
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// ListPendingRefunds returns records with at least one refund_requested grant.
func (s *Store) ListPendingRefunds(ctx context.Context) ([]*entitlement.Record, error) {
	filter, err := json.Marshal([]map[string]string{{"status": string(entitlement.StatusRefundRequested)}})
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT document FROM entitlement_records
		 WHERE document -> 'active_grants' @> $1::jsonb
		 ORDER BY user_id`, filter,
	)
	if err != nil {
		return nil, err
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, err
	}

	out := make([]*entitlement.Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Healthcheck pings the underlying pool.
func (s *Store) Healthcheck(ctx context.Context) error {
	return pg.Healthcheck(s.pool)(ctx)
}

func decode(doc []byte) (*entitlement.Record, error) {
	rec := &entitlement.Record{}
	if err := json.Unmarshal(doc, rec); err != nil {
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

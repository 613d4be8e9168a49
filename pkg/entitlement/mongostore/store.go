// Package mongostore is the MongoDB entitlement.Store.
//
// Each user is one document keyed by user id. The record itself is kept under
// "document"; version, subscription refs and the pending refund flag sit next
// to it for filtering. Update is compare-and-swap on version: a replace that
// matches nothing means another writer committed first, and the cycle restarts.
//
//	db, err := mongo.NewWithDatabase(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	store := mongostore.New(db, "entitlements")
//	if err := store.EnsureIndexes(ctx); err != nil {
//	    return err
//	}
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/examgate/pkg/entitlement"
)

// DefaultCollection is used when New is given an empty name.
const DefaultCollection = "entitlement_records"

const defaultMaxRetries = 10

type envelope struct {
	UserID           string    `bson:"_id"`
	Version          int64     `bson:"version"`
	SubscriptionRefs []string  `bson:"subscription_refs"`
	PendingRefund    bool      `bson:"pending_refund"`
	UpdatedAt        time.Time `bson:"updated_at"`
	Document         bson.Raw  `bson:"document"`
}

// Store implements entitlement.Store on a mongo collection.
type Store struct {
	coll       *mongo.Collection
	maxRetries int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries bounds compare-and-swap retries before ErrConflict.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// New returns a Store on db.collection.
func New(db *mongo.Database, collection string, opts ...Option) *Store {
	if db == nil {
		panic("mongostore: database is required")
	}
	if collection == "" {
		collection = DefaultCollection
	}
	s := &Store{coll: db.Collection(collection), maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureIndexes creates the lookup indexes. It is safe to call on every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "subscription_refs", Value: 1}}},
		{Keys: bson.D{{Key: "pending_refund", Value: 1}}},
	})
	return err
}

// Get loads the user's record. It returns entitlement.ErrRecordNotFound when
// no document exists for the user.
func (s *Store) Get(ctx context.Context, userID string) (*entitlement.Record, error) {
	var env envelope
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: userID}}).Decode(&env)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, entitlement.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(env)
}

// Update applies m and writes the result back only if the stored version still
// matches the one that was read. A lost race is retried up to the configured
// number of attempts before entitlement.ErrConflict is returned.
func (s *Store) Update(ctx context.Context, userID string, m entitlement.Mutation) (*entitlement.Record, error) {
	if userID == "" {
		return nil, entitlement.ErrMissingUserID
	}

	for range s.maxRetries {
		var current envelope
		exists := true
		rec := entitlement.NewRecord(userID)

		err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: userID}}).Decode(&current)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			exists = false
		case err != nil:
			return nil, err
		default:
			if rec, err = decode(current); err != nil {
				return nil, err
			}
		}

		changed, err := m(rec)
		if err != nil {
			return nil, err
		}
		if !changed {
			return rec, nil
		}

		rec.Version++
		rec.UpdatedAt = time.Now().UTC()
		next, err := encode(rec)
		if err != nil {
			return nil, err
		}

		if !exists {
			_, err = s.coll.InsertOne(ctx, next)
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			return rec, nil
		}

		res, err := s.coll.ReplaceOne(ctx, bson.D{
			{Key: "_id", Value: userID},
			{Key: "version", Value: current.Version},
		}, next)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			continue
		}
		return rec, nil
	}
	return nil, entitlement.ErrConflict
}

// FindBySubscription returns the user owning the active grant with the given
// subscription ref.
func (s *Store) FindBySubscription(ctx context.Context, subscriptionRef string) (string, error) {
	if subscriptionRef == "" {
		return "", entitlement.ErrRecordNotFound
	}
	var found struct {
		UserID string `bson:"_id"`
	}
	err := s.coll.FindOne(ctx,
		bson.D{{Key: "subscription_refs", Value: subscriptionRef}},
		options.FindOne().SetProjection(bson.D{{Key: "_id", Value: 1}}),
	).Decode(&found)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", entitlement.ErrRecordNotFound
	}
	if err != nil {
		return "", err
	}
	return found.UserID, nil
}

func (s *Store) ListPendingRefunds(ctx context.Context) ([]*entitlement.Record, error) {
	cur, err := s.coll.Find(ctx,
		bson.D{{Key: "pending_refund", Value: true}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var envs []envelope
	if err := cur.All(ctx, &envs); err != nil {
		return nil, err
	}

	out := make([]*entitlement.Record, 0, len(envs))
	for _, env := range envs {
		rec, err := decode(env)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Healthcheck pings the primary.
func (s *Store) Healthcheck(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, nil)
}

// encode converts the record through relaxed extended JSON so the stored
// document keeps the same field names as the HTTP representation.
func encode(rec *entitlement.Record) (envelope, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return envelope{}, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return envelope{}, err
	}
	b, err := bson.Marshal(doc)
	if err != nil {
		return envelope{}, err
	}

	env := envelope{
		UserID:           rec.UserID,
		Version:          rec.Version,
		SubscriptionRefs: []string{},
		PendingRefund:    len(rec.PendingRefunds()) > 0,
		UpdatedAt:        rec.UpdatedAt,
		Document:         b,
	}
	for _, g := range rec.ActiveGrants {
		if g.SubscriptionRef != "" {
			env.SubscriptionRefs = append(env.SubscriptionRefs, g.SubscriptionRef)
		}
	}
	return env, nil
}

func decode(env envelope) (*entitlement.Record, error) {
	raw, err := bson.MarshalExtJSON(env.Document, false, false)
	if err != nil {
		return nil, err
	}
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

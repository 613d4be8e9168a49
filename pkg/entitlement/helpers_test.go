package entitlement_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/examgate/pkg/entitlement"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *testClock {
	return &testClock{now: epoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateCustomer(ctx context.Context, req entitlement.CustomerRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) CreateCheckout(ctx context.Context, req entitlement.CheckoutRequest) (*entitlement.CheckoutLink, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entitlement.CheckoutLink), args.Error(1)
}

func (m *mockProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionRef string) error {
	args := m.Called(ctx, subscriptionRef)
	return args.Error(0)
}

func (m *mockProvider) CancelImmediately(ctx context.Context, subscriptionRef string) error {
	return m.Called(ctx, subscriptionRef).Error(0)
}

func (m *mockProvider) Refund(ctx context.Context, req entitlement.RefundRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

type verifierFunc func(ctx context.Context, payload []byte, signature string) error

func (f verifierFunc) Verify(ctx context.Context, payload []byte, signature string) error {
	return f(ctx, payload, signature)
}

func acceptAll() entitlement.WebhookVerifier {
	return verifierFunc(func(context.Context, []byte, string) error { return nil })
}

const adminID = "admin-1"

type fixture struct {
	store      *entitlement.MemoryStore
	provider   *mockProvider
	clock      *testClock
	service    *entitlement.Service
	reconciler *entitlement.Reconciler
}

func newFixture(t *testing.T, opts ...entitlement.ServiceOption) *fixture {
	t.Helper()

	f := &fixture{
		store:    entitlement.NewMemoryStore(),
		provider: &mockProvider{},
		clock:    newClock(),
	}
	opts = append([]entitlement.ServiceOption{entitlement.WithClock(f.clock.Now)}, opts...)
	f.service = entitlement.NewService(f.store, f.provider, entitlement.NewAdminAllowlist(adminID), opts...)
	f.reconciler = entitlement.NewReconciler(f.store, acceptAll(), entitlement.PaddleDecoder{},
		entitlement.WithReconcilerClock(f.clock.Now),
	)
	return f
}

// purchase admits a paid grant through the reconciler, the same path a
// provider webhook takes.
func (f *fixture) purchase(t *testing.T, userID string, tier entitlement.Tier, scope *entitlement.Scope, paymentRef string) {
	t.Helper()

	ev := entitlement.CheckoutCompleted{
		ID:         "evt_" + paymentRef,
		UserID:     userID,
		Tier:       tier,
		Scope:      scope,
		PaymentRef: paymentRef,
		OccurredAt: f.clock.Now(),
	}
	if tier == entitlement.TierUnlimited {
		ev.SubscriptionRef = "sub_" + paymentRef
	}
	outcome, err := f.reconciler.Apply(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, entitlement.OutcomeAdmitted, outcome)
}

// record reads the stored record and checks that its effective tier still
// matches its active grants.
func (f *fixture) record(t *testing.T, userID string) *entitlement.Record {
	t.Helper()
	rec, err := f.store.Get(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, rec.Consistent(), "effective tier %s does not match active grants", rec.EffectiveTier)
	return rec
}

func docScope(doc string) *entitlement.Scope {
	return &entitlement.Scope{DocumentID: doc}
}

func roleScope(doc, role string) *entitlement.Scope {
	return &entitlement.Scope{DocumentID: doc, RoleID: role}
}

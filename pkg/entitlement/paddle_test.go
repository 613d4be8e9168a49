package entitlement_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/examgate/pkg/entitlement"
)

func sign(secret string, body []byte) string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + ":"))
	mac.Write(body)
	return fmt.Sprintf("ts=%s;h1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestPaddleVerifier(t *testing.T) {
	t.Parallel()

	body := []byte(`{"event_id":"evt_1","event_type":"transaction.completed"}`)
	v := entitlement.NewPaddleVerifier("whsec_test")

	t.Run("valid signature", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, v.Verify(context.Background(), body, sign("whsec_test", body)))
	})

	t.Run("signed with another secret", func(t *testing.T) {
		t.Parallel()
		err := v.Verify(context.Background(), body, sign("other", body))
		require.ErrorIs(t, err, entitlement.ErrInvalidSignature)
	})

	t.Run("tampered body", func(t *testing.T) {
		t.Parallel()
		sig := sign("whsec_test", body)
		err := v.Verify(context.Background(), append([]byte{' '}, body...), sig)
		require.ErrorIs(t, err, entitlement.ErrInvalidSignature)
	})

	t.Run("missing header", func(t *testing.T) {
		t.Parallel()
		err := v.Verify(context.Background(), body, "")
		require.ErrorIs(t, err, entitlement.ErrInvalidSignature)
	})

	t.Run("garbage header", func(t *testing.T) {
		t.Parallel()
		err := v.Verify(context.Background(), body, "nonsense")
		require.ErrorIs(t, err, entitlement.ErrInvalidSignature)
	})

	t.Run("no secret configured", func(t *testing.T) {
		t.Parallel()
		err := entitlement.NewPaddleVerifier("").Verify(context.Background(), body, sign("", body))
		require.ErrorIs(t, err, entitlement.ErrMissingWebhookSecret)
	})
}

type fakePaddleAPI struct {
	customer     *paddle.CreateCustomerRequest
	transaction  *paddle.CreateTransactionRequest
	cancellation *paddle.CancelSubscriptionRequest
	adjustment   *paddle.CreateAdjustmentRequest
	checkoutURL  string
	err          error
}

func (f *fakePaddleAPI) CreateCustomer(_ context.Context, req *paddle.CreateCustomerRequest) (*paddle.Customer, error) {
	f.customer = req
	if f.err != nil {
		return nil, f.err
	}
	return &paddle.Customer{ID: "ctm_1"}, nil
}

func (f *fakePaddleAPI) CreateTransaction(_ context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error) {
	f.transaction = req
	if f.err != nil {
		return nil, f.err
	}
	tx := &paddle.Transaction{ID: "txn_1"}
	if f.checkoutURL != "" {
		tx.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(f.checkoutURL)}
	}
	return tx, nil
}

func (f *fakePaddleAPI) CancelSubscription(_ context.Context, req *paddle.CancelSubscriptionRequest) (*paddle.Subscription, error) {
	f.cancellation = req
	return &paddle.Subscription{}, f.err
}

func (f *fakePaddleAPI) CreateAdjustment(_ context.Context, req *paddle.CreateAdjustmentRequest) (*paddle.Adjustment, error) {
	f.adjustment = req
	return &paddle.Adjustment{}, f.err
}

func paddleConfig() entitlement.PaddleConfig {
	return entitlement.PaddleConfig{
		APIKey:         "key",
		PriceRole:      "pri_role",
		PriceDocument:  "pri_doc",
		PriceUnlimited: "pri_unl",
	}
}

func TestNewPaddleProvider(t *testing.T) {
	t.Parallel()

	_, err := entitlement.NewPaddleProvider(entitlement.PaddleConfig{})
	require.ErrorIs(t, err, entitlement.ErrMissingAPIKey)

	_, err = entitlement.NewPaddleProvider(entitlement.PaddleConfig{APIKey: "key", Environment: "staging"})
	require.ErrorIs(t, err, entitlement.ErrInvalidProviderEnvironment)
}

func TestPaddleProviderCheckout(t *testing.T) {
	t.Parallel()

	t.Run("embeds metadata and customer", func(t *testing.T) {
		t.Parallel()

		api := &fakePaddleAPI{checkoutURL: "https://pay.example.com/c/txn_1"}
		p := entitlement.NewPaddleProviderWithAPI(api, paddleConfig())

		link, err := p.CreateCheckout(context.Background(), entitlement.CheckoutRequest{
			UserID:      "u1",
			CustomerRef: "ctm_1",
			Tier:        entitlement.TierRole,
			Scope:       roleScope("d1", "r1"),
			SuccessURL:  "https://app.example.com/done",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://pay.example.com/c/txn_1", link.URL)
		assert.Equal(t, "txn_1", link.SessionID)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), link.ExpiresAt, time.Minute)

		req := api.transaction
		require.NotNil(t, req)
		assert.Equal(t, "u1", req.CustomData[entitlement.MetaUserID])
		assert.Equal(t, "role", req.CustomData[entitlement.MetaTier])
		assert.Equal(t, "d1", req.CustomData[entitlement.MetaDocumentID])
		assert.Equal(t, "r1", req.CustomData[entitlement.MetaRoleID])
		require.NotNil(t, req.CustomerID)
		assert.Equal(t, "ctm_1", *req.CustomerID)
		require.NotNil(t, req.Checkout)
		assert.Equal(t, "https://app.example.com/done", *req.Checkout.URL)
	})

	t.Run("missing price", func(t *testing.T) {
		t.Parallel()

		api := &fakePaddleAPI{}
		p := entitlement.NewPaddleProviderWithAPI(api, entitlement.PaddleConfig{APIKey: "key"})
		_, err := p.CreateCheckout(context.Background(), entitlement.CheckoutRequest{UserID: "u1", Tier: entitlement.TierUnlimited})
		require.ErrorIs(t, err, entitlement.ErrMissingPriceID)
		assert.Nil(t, api.transaction)
	})

	t.Run("no checkout url", func(t *testing.T) {
		t.Parallel()

		p := entitlement.NewPaddleProviderWithAPI(&fakePaddleAPI{}, paddleConfig())
		_, err := p.CreateCheckout(context.Background(), entitlement.CheckoutRequest{UserID: "u1", Tier: entitlement.TierUnlimited})
		require.ErrorIs(t, err, entitlement.ErrNoCheckoutURL)
	})
}

func TestPaddleProviderCalls(t *testing.T) {
	t.Parallel()

	t.Run("customer", func(t *testing.T) {
		t.Parallel()

		api := &fakePaddleAPI{}
		p := entitlement.NewPaddleProviderWithAPI(api, paddleConfig())
		ref, err := p.CreateCustomer(context.Background(), entitlement.CustomerRequest{UserID: "u1", Email: "u1@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "ctm_1", ref)
		assert.Equal(t, "u1@example.com", api.customer.Email)
		assert.Equal(t, "u1", api.customer.CustomData[entitlement.MetaUserID])
	})

	t.Run("cancel at period end", func(t *testing.T) {
		t.Parallel()

		api := &fakePaddleAPI{}
		p := entitlement.NewPaddleProviderWithAPI(api, paddleConfig())
		require.NoError(t, p.CancelAtPeriodEnd(context.Background(), "sub_1"))
		require.NotNil(t, api.cancellation)
		assert.Equal(t, "sub_1", api.cancellation.SubscriptionID)
		require.NotNil(t, api.cancellation.EffectiveFrom)
		assert.Equal(t, paddle.EffectiveFromNextBillingPeriod, *api.cancellation.EffectiveFrom)
	})

	t.Run("cancel immediately", func(t *testing.T) {
		t.Parallel()

		api := &fakePaddleAPI{}
		p := entitlement.NewPaddleProviderWithAPI(api, paddleConfig())
		require.NoError(t, p.CancelImmediately(context.Background(), "sub_2"))
		require.NotNil(t, api.cancellation)
		assert.Equal(t, "sub_2", api.cancellation.SubscriptionID)
		require.NotNil(t, api.cancellation.EffectiveFrom)
		assert.Equal(t, paddle.EffectiveFromImmediately, *api.cancellation.EffectiveFrom)
	})

	t.Run("full refund", func(t *testing.T) {
		t.Parallel()

		api := &fakePaddleAPI{}
		p := entitlement.NewPaddleProviderWithAPI(api, paddleConfig())
		require.NoError(t, p.Refund(context.Background(), entitlement.RefundRequest{PaymentRef: "txn_1", Reason: "duplicate"}))
		require.NotNil(t, api.adjustment)
		assert.Equal(t, paddle.AdjustmentActionRefund, api.adjustment.Action)
		assert.Equal(t, "txn_1", api.adjustment.TransactionID)
		assert.Equal(t, "duplicate", api.adjustment.Reason)
	})

	t.Run("errors propagate", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		p := entitlement.NewPaddleProviderWithAPI(&fakePaddleAPI{err: boom}, paddleConfig())
		assert.ErrorIs(t, p.Refund(context.Background(), entitlement.RefundRequest{PaymentRef: "txn_1"}), boom)
		assert.ErrorIs(t, p.CancelAtPeriodEnd(context.Background(), "sub_1"), boom)
		assert.ErrorIs(t, p.CancelImmediately(context.Background(), "sub_1"), boom)
	})
}

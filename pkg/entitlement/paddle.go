package entitlement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleSignatureHeader carries the webhook signature.
const PaddleSignatureHeader = "Paddle-Signature"

// PaddleConfig holds configuration for the Paddle integration.
type PaddleConfig struct {
	APIKey         string        `env:"PADDLE_API_KEY"`
	WebhookSecret  string        `env:"PADDLE_WEBHOOK_SECRET"`
	Environment    string        `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	PriceRole      string        `env:"PADDLE_PRICE_ROLE"`
	PriceDocument  string        `env:"PADDLE_PRICE_DOCUMENT"`
	PriceUnlimited string        `env:"PADDLE_PRICE_UNLIMITED"`
	CheckoutTTL    time.Duration `env:"PADDLE_CHECKOUT_TTL" envDefault:"24h"`
}

// PriceID returns the catalog price for a purchasable tier.
func (c PaddleConfig) PriceID(t Tier) (string, error) {
	var id string
	switch t {
	case TierRole:
		id = c.PriceRole
	case TierDocument:
		id = c.PriceDocument
	case TierUnlimited:
		id = c.PriceUnlimited
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingPriceID, t)
	}
	return id, nil
}

// paddleAPI is the subset of *paddle.SDK the provider calls.
type paddleAPI interface {
	CreateCustomer(ctx context.Context, req *paddle.CreateCustomerRequest) (*paddle.Customer, error)
	CreateTransaction(ctx context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error)
	CancelSubscription(ctx context.Context, req *paddle.CancelSubscriptionRequest) (*paddle.Subscription, error)
	CreateAdjustment(ctx context.Context, req *paddle.CreateAdjustmentRequest) (*paddle.Adjustment, error)
}

// PaddleProvider implements PaymentProvider on top of the Paddle Billing API.
type PaddleProvider struct {
	api    paddleAPI
	config PaddleConfig
}

// NewPaddleProvider creates a Paddle client for the configured environment.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderEnvironment, config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return newPaddleProvider(client, config), nil
}

func newPaddleProvider(api paddleAPI, config PaddleConfig) *PaddleProvider {
	if config.CheckoutTTL <= 0 {
		config.CheckoutTTL = 24 * time.Hour
	}
	return &PaddleProvider{api: api, config: config}
}

func (p *PaddleProvider) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	if req.Email == "" {
		return "", fmt.Errorf("%w: customer email is required", ErrProvider)
	}
	customer, err := p.api.CreateCustomer(ctx, &paddle.CreateCustomerRequest{
		Email:      req.Email,
		CustomData: paddle.CustomData{MetaUserID: req.UserID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create paddle customer: %w", err)
	}
	return customer.ID, nil
}

// CreateCheckout creates a transaction whose custom data carries the grant
// metadata. Paddle copies transaction custom data onto the subscription it
// creates, so later subscription events resolve to the same user.
func (p *PaddleProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	priceID, err := p.config.PriceID(req.Tier)
	if err != nil {
		return nil, err
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  priceID,
		Quantity: 1,
	})
	txReq := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData(req.Metadata()),
	}
	if req.CustomerRef != "" {
		txReq.CustomerID = paddle.PtrTo(req.CustomerRef)
	}
	if req.SuccessURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	tx, err := p.api.CreateTransaction(ctx, txReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil || *tx.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutLink{
		URL:       *tx.Checkout.URL,
		SessionID: tx.ID,
		ExpiresAt: time.Now().Add(p.config.CheckoutTTL),
	}, nil
}

// CancelAtPeriodEnd schedules the cancellation for the next billing date.
func (p *PaddleProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionRef string) error {
	return p.cancel(ctx, subscriptionRef, paddle.EffectiveFromNextBillingPeriod)
}

// CancelImmediately cancels the subscription right away. Used before
// refunding a recurring grant.
func (p *PaddleProvider) CancelImmediately(ctx context.Context, subscriptionRef string) error {
	return p.cancel(ctx, subscriptionRef, paddle.EffectiveFromImmediately)
}

func (p *PaddleProvider) cancel(ctx context.Context, subscriptionRef string, from paddle.EffectiveFrom) error {
	_, err := p.api.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: subscriptionRef,
		EffectiveFrom:  paddle.PtrTo(from),
	})
	if err != nil {
		return fmt.Errorf("failed to cancel paddle subscription: %w", err)
	}
	return nil
}

// Refund issues a full refund adjustment against the transaction.
func (p *PaddleProvider) Refund(ctx context.Context, req RefundRequest) error {
	reason := req.Reason
	if reason == "" {
		reason = "refund approved within grace period"
	}
	_, err := p.api.CreateAdjustment(ctx, &paddle.CreateAdjustmentRequest{
		Action:        paddle.AdjustmentActionRefund,
		TransactionID: req.PaymentRef,
		Reason:        reason,
		Type:          paddle.PtrTo(paddle.AdjustmentTypeFull),
	})
	if err != nil {
		return fmt.Errorf("failed to create paddle refund: %w", err)
	}
	return nil
}

// PaddleVerifier checks Paddle-Signature headers with the SDK verifier.
type PaddleVerifier struct {
	verifier *paddle.WebhookVerifier
}

// NewPaddleVerifier returns a verifier for secret. An empty secret yields a
// verifier that rejects every request with ErrMissingWebhookSecret.
func NewPaddleVerifier(secret string) *PaddleVerifier {
	if secret == "" {
		return &PaddleVerifier{}
	}
	return &PaddleVerifier{verifier: paddle.NewWebhookVerifier(secret)}
}

// Verify checks the Paddle-Signature header against payload using the webhook
// secret.
func (v *PaddleVerifier) Verify(ctx context.Context, payload []byte, signature string) error {
	if v == nil || v.verifier == nil {
		return ErrMissingWebhookSecret
	}
	if signature == "" {
		return fmt.Errorf("%w: missing %s header", ErrInvalidSignature, PaddleSignatureHeader)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhooks/paddle", bytes.NewReader(payload))
	if err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}
	req.Header.Set(PaddleSignatureHeader, signature)

	ok, err := v.verifier.Verify(req)
	if err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}
	if !ok {
		return ErrInvalidSignature
	}
	return nil
}

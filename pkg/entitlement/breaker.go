package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/dmitrymomot/examgate/pkg/logger"
)

// BreakerConfig configures the circuit breaker around provider calls.
type BreakerConfig struct {
	MaxRequests      uint32        `env:"PROVIDER_BREAKER_MAX_REQUESTS" envDefault:"1"`
	Interval         time.Duration `env:"PROVIDER_BREAKER_INTERVAL" envDefault:"60s"`
	Timeout          time.Duration `env:"PROVIDER_BREAKER_TIMEOUT" envDefault:"30s"`
	FailureThreshold uint32        `env:"PROVIDER_BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
}

// BreakerProvider wraps a PaymentProvider with a circuit breaker. While the
// breaker is open, calls fail fast with ErrProviderUnavailable.
type BreakerProvider struct {
	next    PaymentProvider
	breaker *gobreaker.CircuitBreaker[any]
}

// NewBreakerProvider decorates next. A nil log uses slog.Default.
func NewBreakerProvider(next PaymentProvider, cfg BreakerConfig, log *slog.Logger) *BreakerProvider {
	if log == nil {
		log = slog.Default()
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "payment_provider",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// Configuration errors say nothing about provider health.
			return err == nil || errors.Is(err, ErrMissingPriceID)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.Component(name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &BreakerProvider{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// State reports the current breaker state name.
func (b *BreakerProvider) State() string {
	return b.breaker.State().String()
}

// CreateCustomer forwards to the wrapped provider through the breaker.
func (b *BreakerProvider) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.CreateCustomer(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (b *BreakerProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.CreateCheckout(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*CheckoutLink), nil
}

func (b *BreakerProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionRef string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.CancelAtPeriodEnd(ctx, subscriptionRef)
	})
	return err
}

func (b *BreakerProvider) CancelImmediately(ctx context.Context, subscriptionRef string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.CancelImmediately(ctx, subscriptionRef)
	})
	return err
}

// Refund forwards to the wrapped provider through the breaker.
func (b *BreakerProvider) Refund(ctx context.Context, req RefundRequest) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.next.Refund(ctx, req)
	})
	return err
}

func (b *BreakerProvider) execute(fn func() (any, error)) (any, error) {
	res, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	return res, err
}

package entitlement

import (
	"log/slog"
	"time"
)

// Policy holds the time-windowed business rules.
type Policy struct {
	// GracePeriod is the window after StartDate in which refunds and scope
	// changes are allowed. The boundary is exclusive.
	GracePeriod time.Duration
	// TrialDuration sets the informational expiry of trial grants.
	TrialDuration time.Duration
	// SingleScopeChange limits each scoped grant to one scope change.
	SingleScopeChange bool
}

// DefaultPolicy returns the production rules.
func DefaultPolicy() Policy {
	return Policy{
		GracePeriod:       7 * 24 * time.Hour,
		TrialDuration:     3 * 24 * time.Hour,
		SingleScopeChange: true,
	}
}

// PolicyConfig is the env-driven form of Policy.
type PolicyConfig struct {
	GracePeriod       time.Duration `env:"ENTITLEMENT_GRACE_PERIOD" envDefault:"168h"`
	TrialDuration     time.Duration `env:"ENTITLEMENT_TRIAL_DURATION" envDefault:"72h"`
	SingleScopeChange bool          `env:"ENTITLEMENT_SINGLE_SCOPE_CHANGE" envDefault:"true"`
	ManualRefunds     bool          `env:"ENTITLEMENT_MANUAL_REFUNDS" envDefault:"false"`
}

// Policy converts the config, falling back to defaults for non-positive durations.
func (c PolicyConfig) Policy() Policy {
	p := DefaultPolicy()
	if c.GracePeriod > 0 {
		p.GracePeriod = c.GracePeriod
	}
	if c.TrialDuration > 0 {
		p.TrialDuration = c.TrialDuration
	}
	p.SingleScopeChange = c.SingleScopeChange
	return p
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPolicy replaces DefaultPolicy. It controls the grace period, the trial
// length and whether a scope may change more than once.
func WithPolicy(p Policy) ServiceOption {
	return func(s *Service) {
		if p.GracePeriod > 0 {
			s.policy.GracePeriod = p.GracePeriod
		}
		if p.TrialDuration > 0 {
			s.policy.TrialDuration = p.TrialDuration
		}
		s.policy.SingleScopeChange = p.SingleScopeChange
	}
}

// WithClock overrides the time source. Used by tests to pin grace windows.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithManualRefunds skips the provider refund call on approval; an operator
// issues the money movement out of band.
func WithManualRefunds() ServiceOption {
	return func(s *Service) {
		s.manualRefunds = true
	}
}

package entitlement

import "errors"

var (
	ErrUnknownTier  = errors.New("entitlement: unknown tier")
	ErrInvalidScope = errors.New("entitlement: invalid scope for tier")

	// Lifecycle preconditions.
	ErrAlreadyUsed         = errors.New("entitlement: trial already used")
	ErrActivePaidGrant     = errors.New("entitlement: paid grant already active")
	ErrNotEligible         = errors.New("entitlement: outside the grace period")
	ErrWrongStatus         = errors.New("entitlement: grant status does not allow this action")
	ErrNotRefundable       = errors.New("entitlement: trial grants are not refundable")
	ErrWrongTier           = errors.New("entitlement: action not available for this tier")
	ErrScopeAlreadyChanged = errors.New("entitlement: grant scope was already changed")
	ErrNotFound            = errors.New("entitlement: grant not found")
	ErrForbidden           = errors.New("entitlement: administrator access required")
	ErrMissingUserID       = errors.New("entitlement: user id is required")

	// Webhook input.
	ErrInvalidSignature     = errors.New("entitlement: webhook signature verification failed")
	ErrMissingWebhookSecret = errors.New("entitlement: webhook secret is not configured")
	ErrMalformedEvent       = errors.New("entitlement: malformed webhook event")

	// Collaborators.
	ErrProvider            = errors.New("entitlement: payment provider call failed")
	ErrProviderUnavailable = errors.New("entitlement: payment provider temporarily unavailable")
	ErrStorage             = errors.New("entitlement: record storage failure")
	ErrRecordNotFound      = errors.New("entitlement: record not found")
	ErrConflict            = errors.New("entitlement: concurrent update conflict")

	// Provider configuration.
	ErrMissingAPIKey              = errors.New("entitlement: paddle API key is required")
	ErrInvalidProviderEnvironment = errors.New("entitlement: invalid paddle environment")
	ErrMissingPriceID             = errors.New("entitlement: no price configured for tier")
	ErrNoCheckoutURL              = errors.New("entitlement: no checkout URL returned from provider")
)

var reasonCodes = []struct {
	err  error
	code string
}{
	{ErrUnknownTier, "unknown_tier"},
	{ErrInvalidScope, "invalid_scope"},
	{ErrAlreadyUsed, "trial_already_used"},
	{ErrActivePaidGrant, "active_paid_grant"},
	{ErrNotEligible, "not_eligible"},
	{ErrWrongStatus, "wrong_status"},
	{ErrNotRefundable, "not_refundable"},
	{ErrWrongTier, "wrong_tier"},
	{ErrScopeAlreadyChanged, "scope_already_changed"},
	{ErrNotFound, "grant_not_found"},
	{ErrForbidden, "forbidden"},
	{ErrMissingUserID, "missing_user_id"},
	{ErrInvalidSignature, "invalid_signature"},
	{ErrMissingWebhookSecret, "webhook_secret_missing"},
	{ErrMalformedEvent, "malformed_event"},
	{ErrProviderUnavailable, "provider_unavailable"},
	{ErrProvider, "provider_failure"},
	{ErrRecordNotFound, "record_not_found"},
	{ErrConflict, "conflict"},
	{ErrStorage, "storage_failure"},
	{ErrMissingPriceID, "price_not_configured"},
}

// ReasonCode returns the stable, user-visible code for err.
// Errors outside the package taxonomy map to "internal".
func ReasonCode(err error) string {
	if err == nil {
		return ""
	}
	for _, rc := range reasonCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return "internal"
}

// IsRejection reports whether err is a precondition or input rejection that
// the caller must not retry unchanged.
func IsRejection(err error) bool {
	switch ReasonCode(err) {
	case "internal", "provider_failure", "provider_unavailable", "storage_failure", "conflict", "webhook_secret_missing":
		return false
	}
	return err != nil
}

package billing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/examgate/handler"
	"github.com/dmitrymomot/examgate/pkg/binder"
	"github.com/dmitrymomot/examgate/pkg/entitlement"
	"github.com/dmitrymomot/examgate/pkg/identity"
	"github.com/dmitrymomot/examgate/pkg/logger"
	"github.com/dmitrymomot/examgate/pkg/ratelimiter"
)

const (
	codeInvalidRequest = "invalid_request"
	codeUnauthorized   = "unauthorized"
	codeRateLimited    = "rate_limited"
)

var statusByCode = map[string]int{
	"unknown_tier":           http.StatusBadRequest,
	"invalid_scope":          http.StatusBadRequest,
	"invalid_signature":      http.StatusBadRequest,
	"malformed_event":        http.StatusBadRequest,
	codeInvalidRequest:       http.StatusBadRequest,
	codeUnauthorized:         http.StatusUnauthorized,
	"missing_user_id":        http.StatusUnauthorized,
	"forbidden":              http.StatusForbidden,
	codeRateLimited:          http.StatusTooManyRequests,
	"grant_not_found":        http.StatusNotFound,
	"record_not_found":       http.StatusNotFound,
	"trial_already_used":     http.StatusConflict,
	"active_paid_grant":      http.StatusConflict,
	"wrong_status":           http.StatusConflict,
	"scope_already_changed":  http.StatusConflict,
	"conflict":               http.StatusConflict,
	"not_eligible":           http.StatusUnprocessableEntity,
	"not_refundable":         http.StatusUnprocessableEntity,
	"wrong_tier":             http.StatusUnprocessableEntity,
	"provider_failure":       http.StatusBadGateway,
	"provider_unavailable":   http.StatusServiceUnavailable,
	"price_not_configured":   http.StatusInternalServerError,
	"webhook_secret_missing": http.StatusInternalServerError,
	"storage_failure":        http.StatusInternalServerError,
}

var messageByCode = map[string]string{
	codeInvalidRequest:       "The request could not be parsed.",
	codeUnauthorized:         "A valid bearer token is required.",
	"missing_user_id":        "A valid bearer token is required.",
	"unknown_tier":           "Unknown tier.",
	"invalid_scope":          "The scope does not match the tier.",
	"invalid_signature":      "Webhook signature verification failed.",
	"malformed_event":        "Webhook payload could not be decoded.",
	"forbidden":              "Administrator access is required.",
	codeRateLimited:          "Too many requests, retry later.",
	"grant_not_found":        "No active grant matches this payment reference.",
	"record_not_found":       "No entitlement record exists for this user.",
	"trial_already_used":     "The trial has already been used.",
	"active_paid_grant":      "A paid grant is already active.",
	"wrong_status":           "The grant's status does not allow this action.",
	"scope_already_changed":  "The grant's scope was already changed once.",
	"conflict":               "The record was modified concurrently, retry the request.",
	"not_eligible":           "The grace period for this action has ended.",
	"not_refundable":         "Trial grants cannot be refunded.",
	"wrong_tier":             "This action is not available for the grant's tier.",
	"provider_failure":       "The payment provider rejected the request.",
	"provider_unavailable":   "The payment provider is temporarily unavailable.",
	"price_not_configured":   "No price is configured for this tier.",
	"webhook_secret_missing": "Webhook verification is not configured.",
	"storage_failure":        "Internal error.",
	"internal":               "Internal error.",
}

// errorCode maps err to a stable public code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, binder.ErrFailedToParseJSON),
		errors.Is(err, binder.ErrFailedToParseQuery),
		errors.Is(err, binder.ErrFailedToParsePath),
		errors.Is(err, binder.ErrUnsupportedMediaType):
		return codeInvalidRequest
	case errors.Is(err, identity.ErrMissingToken),
		errors.Is(err, identity.ErrInvalidToken),
		errors.Is(err, identity.ErrMissingUserID),
		errors.Is(err, identity.ErrNoPrincipal):
		return codeUnauthorized
	}
	var httpErr handler.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code != "" {
		return httpErr.Code
	}
	return entitlement.ReasonCode(err)
}

func statusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func messageFor(code string, err error) string {
	var httpErr handler.HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "" {
		return httpErr.Message
	}
	if msg, ok := messageByCode[code]; ok {
		return msg
	}
	return messageByCode["internal"]
}

// errorResponse renders err as the JSON error envelope and logs server-side
// failures.
func (h *handlers) errorResponse(r *http.Request, err error) handler.Response {
	code := errorCode(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			logger.Reason(code),
			logger.Error(err),
			slog.String("path", r.URL.Path),
		)
	}
	return handler.JSONError(status, code, messageFor(code, err))
}

func (h *handlers) fail(ctx handler.Context, err error) {
	h.render(ctx.ResponseWriter(), ctx.Request(), h.errorResponse(ctx.Request(), err))
}

func (h *handlers) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	h.render(w, r, h.errorResponse(r, err))
}

func (h *handlers) forbidden(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, h.errorResponse(r, entitlement.ErrForbidden))
}

func (h *handlers) limited(w http.ResponseWriter, r *http.Request, res *ratelimiter.Result, err error) {
	if err != nil {
		h.render(w, r, h.errorResponse(r, err))
		return
	}
	h.logger.WarnContext(r.Context(), "action rate limited", logger.Duration(res.RetryAfter()))
	h.render(w, r, handler.JSONError(http.StatusTooManyRequests, codeRateLimited, messageFor(codeRateLimited, nil)))
}

func (h *handlers) render(w http.ResponseWriter, r *http.Request, resp handler.Response) {
	if err := resp.Render(w, r); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write response", logger.Error(err))
	}
}

package billing

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrymomot/examgate/handler"
	"github.com/dmitrymomot/examgate/pkg/entitlement"
	"github.com/dmitrymomot/examgate/pkg/logger"
)

const maxWebhookBody = 1 << 20

var errWebhookTooLarge = errors.New("billing: webhook body too large")

type webhookResponse struct {
	Received bool `json:"received"`
}

// webhook verifies against the raw bytes, so it reads the body itself
// instead of going through a binder. Any failure after verification answers
// 500 so that the provider redelivers the event.
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err == nil && len(payload) > maxWebhookBody {
		err = errWebhookTooLarge
	}
	if err != nil {
		h.render(w, r, h.errorResponse(r, errors.Join(entitlement.ErrMalformedEvent, err)))
		return
	}

	outcome, err := h.reconciler.HandleWebhook(r.Context(), payload, r.Header.Get(entitlement.PaddleSignatureHeader))
	if err != nil {
		code := errorCode(err)
		if entitlement.IsRejection(err) && statusFor(code) < http.StatusInternalServerError {
			h.render(w, r, handler.JSONError(statusFor(code), code, messageFor(code, err)))
			return
		}
		h.logger.ErrorContext(r.Context(), "webhook processing failed",
			logger.Reason(code),
			logger.Error(err),
		)
		h.render(w, r, handler.JSONError(http.StatusInternalServerError, code,
			fmt.Sprintf("%s The event will be retried.", messageFor(code, err))))
		return
	}

	h.logger.DebugContext(r.Context(), "webhook handled", logger.Outcome(string(outcome)))
	h.render(w, r, handler.JSON(webhookResponse{Received: true}))
}

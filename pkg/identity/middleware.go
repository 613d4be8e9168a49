package identity

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/examgate/pkg/logger"
)

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Middleware requires a valid "Authorization: Bearer" token and stores the
// principal in the request context. Rejections go to onError; nil writes a
// bare 401.
func Middleware(tokens *Tokens, onError ErrorHandler) func(http.Handler) http.Handler {
	if tokens == nil {
		panic("identity: tokens are required")
	}
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := tokens.Verify(BearerToken(r))
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// BearerToken returns the token from the Authorization header or "".
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// LoggerExtractor adds user_id to records logged within an authenticated request.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if p, ok := FromContext(ctx); ok {
			return logger.UserID(p.UserID), true
		}
		return slog.Attr{}, false
	}
}

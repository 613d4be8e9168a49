package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/examgate/pkg/logger"
)

// Check is a named dependency health check.
type Check struct {
	Name string
	Ping func(context.Context) error
}

// HealthHandler runs every check with a shared deadline and answers
// {"status":"ok"|"unavailable","checks":{name:"ok"|"error"}}. Any failure
// turns the response into 503. With no checks it is a plain liveness check.
func HealthHandler(log *slog.Logger, timeout time.Duration, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Ping(ctx); err != nil {
				log.WarnContext(ctx, "health check failed", logger.Component(c.Name), logger.Error(err))
				results[c.Name] = "error"
				status = http.StatusServiceUnavailable
				continue
			}
			results[c.Name] = "ok"
		}

		body := struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks,omitempty"`
		}{Status: "ok", Checks: results}
		if status != http.StatusOK {
			body.Status = "unavailable"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

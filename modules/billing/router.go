package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/examgate/handler"
	"github.com/dmitrymomot/examgate/pkg/binder"
	"github.com/dmitrymomot/examgate/pkg/entitlement"
	"github.com/dmitrymomot/examgate/pkg/identity"
	"github.com/dmitrymomot/examgate/pkg/logger"
	"github.com/dmitrymomot/examgate/pkg/ratelimiter"
	"github.com/dmitrymomot/examgate/pkg/requestid"
)

// RouterOptions wires the billing module. Service, Reconciler, Tokens and
// Authorizer are required.
type RouterOptions struct {
	Service    *entitlement.Service
	Reconciler *entitlement.Reconciler
	Tokens     *identity.Tokens
	Authorizer entitlement.Authorizer
	Logger     *slog.Logger

	// ActionLimiter, when set, limits per user the actions that reach the
	// payment provider or write the record.
	ActionLimiter *ratelimiter.Bucket

	// Health is mounted at /healthz when set.
	Health http.Handler
}

// Router creates the billing HTTP API.
//
//	r := chi.NewRouter()
//	r.Mount("/", billing.Router(billing.RouterOptions{
//	    Service:    svc,
//	    Reconciler: rec,
//	    Tokens:     tokens,
//	    Authorizer: admins,
//	}))
func Router(opts RouterOptions) chi.Router {
	if opts.Service == nil || opts.Reconciler == nil {
		panic("billing: Service and Reconciler are required")
	}
	if opts.Tokens == nil {
		panic("billing: Tokens are required")
	}
	if opts.Authorizer == nil {
		panic("billing: Authorizer is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	h := &handlers{
		service:    opts.Service,
		reconciler: opts.Reconciler,
		logger:     log.With(logger.Component("billing_http")),
	}
	fail := handler.WithErrorHandler(h.fail)
	jsonBody := handler.WithBinders(binder.JSON())
	pathAndBody := handler.WithBinders(binder.Path(), binder.JSON())

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	if opts.Health != nil {
		r.Method(http.MethodGet, "/healthz", opts.Health)
	}

	r.Post("/webhooks/paddle", h.webhook)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(opts.Tokens, h.unauthorized))

		r.Route("/me", func(r chi.Router) {
			r.Get("/entitlement", handler.Wrap(h.showEntitlement, fail))
			r.Get("/access", handler.Wrap(h.access, handler.WithBinders(binder.Query()), fail))

			r.Group(func(r chi.Router) {
				if opts.ActionLimiter != nil {
					r.Use(ratelimiter.Middleware(opts.ActionLimiter, userKey, h.limited))
				}
				r.Post("/trial", handler.Wrap(h.startTrial, fail))
				r.Post("/checkout", handler.Wrap(h.checkout, jsonBody, fail))
				r.Route("/grants/{paymentRef}", func(r chi.Router) {
					r.Post("/refund", handler.Wrap(h.requestRefund, pathAndBody, fail))
					r.Post("/scope", handler.Wrap(h.changeScope, pathAndBody, fail))
					r.Post("/cancel", handler.Wrap(h.cancel, handler.WithBinders(binder.Path()), fail))
				})
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin(opts.Authorizer, h.forbidden))
			r.Get("/refunds", handler.Wrap(h.listRefunds, fail))
			r.Post("/refunds/{userID}/{paymentRef}/approve",
				handler.Wrap(h.approveRefund, handler.WithBinders(binder.Path()), fail))
		})
	})

	return r
}

func userKey(r *http.Request) string {
	if p, ok := identity.FromContext(r.Context()); ok {
		return "user:" + p.UserID
	}
	return ""
}

func requireAdmin(auth entitlement.Authorizer, onDenied func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := identity.FromContext(r.Context())
			if !ok || !auth.IsAdmin(r.Context(), p.UserID) {
				onDenied(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

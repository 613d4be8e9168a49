package main

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/examgate/modules/billing"
	"github.com/dmitrymomot/examgate/pkg/config"
	"github.com/dmitrymomot/examgate/pkg/entitlement"
	"github.com/dmitrymomot/examgate/pkg/httpserver"
	"github.com/dmitrymomot/examgate/pkg/identity"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the provider webhook endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}
	var idCfg identity.Config
	if err := config.Load(&idCfg); err != nil {
		return err
	}
	tokens, err := identity.NewTokens(idCfg)
	if err != nil {
		return err
	}

	sh, err := openStore(ctx, c.cfg.StoreBackend, c.log)
	if err != nil {
		return err
	}
	defer sh.close()

	limiter, closeLimiter, err := newActionLimiter(sh)
	if err != nil {
		return err
	}
	defer closeLimiter()

	svc, paddleCfg, err := c.newService(sh.store)
	if err != nil {
		return err
	}

	notifier, busChecks, closeNotifier, err := newNotifier(ctx, c.log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	reconciler := entitlement.NewReconciler(sh.store,
		entitlement.NewPaddleVerifier(paddleCfg.WebhookSecret),
		entitlement.PaddleDecoder{},
		entitlement.WithNotifier(notifier),
		entitlement.WithReconcilerLogger(c.log),
		entitlement.WithNotifyTimeout(c.cfg.NotifyTimeout),
	)
	if paddleCfg.WebhookSecret == "" {
		c.log.WarnContext(ctx, "PADDLE_WEBHOOK_SECRET not set, webhooks will be answered with 500")
	}

	checks := append(sh.checks, busChecks...)
	r := chi.NewRouter()
	r.Mount("/", billing.Router(billing.RouterOptions{
		Service:       svc,
		Reconciler:    reconciler,
		Tokens:        tokens,
		Authorizer:    entitlement.NewAdminAllowlist(c.cfg.AdminUserIDs...),
		Logger:        c.log,
		ActionLimiter: limiter,
		Health:        httpserver.HealthHandler(c.log, c.cfg.HealthTimeout, checks...),
	}))

	srv := httpserver.NewFromConfig(httpCfg,
		httpserver.WithLogger(c.log),
		httpserver.WithStartHook(func(ctx context.Context, addr string) {
			c.log.InfoContext(ctx, "examgate ready",
				slog.String("addr", addr),
				slog.String("store", c.cfg.StoreBackend),
				slog.Int("admins", len(c.cfg.AdminUserIDs)),
			)
		}),
		httpserver.WithStopHook(func(context.Context) {
			reconciler.Wait()
		}),
	)
	return srv.Run(ctx, r)
}

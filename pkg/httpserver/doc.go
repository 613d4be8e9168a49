// Package httpserver runs the HTTP API with graceful shutdown.
//
// Server.Run binds the listener, serves until the context is canceled and
// then drains in-flight requests within the shutdown timeout. Start and stop
// hooks let the caller log the bound address or close stores afterwards.
// HealthHandler aggregates dependency checks into a JSON readiness response.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	return srv.Run(ctx, router)
package httpserver

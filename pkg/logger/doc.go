// Package logger builds the service's *slog.Logger and keeps attribute
// names consistent across packages.
//
// New creates a logger configured by Option functions. WithEnvironment picks
// per-environment defaults, WithConfig applies LOG_LEVEL and LOG_FORMAT
// overrides, and WithContextExtractors injects request-scoped values (the
// request id, for example) on every record through NewContextHandler.
//
//	log := logger.New(
//	    logger.WithEnvironment(environment.Production, "examgate"),
//	    logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "grant admitted",
//	    logger.UserID(userID),
//	    logger.PaymentRef(ref),
//	)
//
// Helpers such as Error return an empty Attr for nil values, so they can be
// passed unconditionally.
package logger

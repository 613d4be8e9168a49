// Package requestid tags every HTTP request with an X-Request-ID and exposes
// it through the context and the structured logger.
//
//	r.Use(requestid.Middleware)
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
package requestid

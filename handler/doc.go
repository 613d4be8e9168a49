// Package handler turns typed request handlers into http.HandlerFunc.
//
// Wrap binds the request into a value of type R with the configured binders,
// calls the handler and renders the Response it returns. Errors from binding
// or rendering go to the ErrorHandler, which the API module replaces with its
// JSON error mapper.
//
//	r.Post("/me/checkout", handler.Wrap(h.checkout,
//	    handler.WithBinders(binder.JSON()),
//	    handler.WithErrorHandler(h.fail),
//	))
package handler

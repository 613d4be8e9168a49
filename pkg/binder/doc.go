// Package binder decodes HTTP request data into handler request structs.
//
// JSON reads a strict JSON body, Query reads `query:"..."` tagged fields from
// the URL and Path reads `path:"..."` tagged fields from chi route
// parameters. Each binder has the func(*http.Request, any) error shape that
// handler.WithBinders accepts, and binders run in the order given.
//
//	type refundRequest struct {
//	    PaymentRef string `path:"paymentRef"`
//	    Reason     string `json:"reason"`
//	}
//
//	r.Post("/me/grants/{paymentRef}/refund", handler.Wrap(h.requestRefund,
//	    handler.WithBinders(binder.Path(), binder.JSON()),
//	))
package binder

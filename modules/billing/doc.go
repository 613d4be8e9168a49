// Package billing exposes the entitlement engine over HTTP.
//
// Routes:
//
//	POST /webhooks/paddle                              provider webhook, raw body + Paddle-Signature
//	GET  /me/entitlement                               the caller's record
//	GET  /me/access?document_id=&role_id=              access check
//	POST /me/trial                                     start the one-time trial
//	POST /me/checkout                                  open a hosted checkout
//	POST /me/grants/{paymentRef}/refund                request a refund
//	POST /me/grants/{paymentRef}/scope                 change a scoped grant's scope once
//	POST /me/grants/{paymentRef}/cancel                cancel a subscription at period end
//	GET  /admin/refunds                                pending refund queue
//	POST /admin/refunds/{userID}/{paymentRef}/approve  approve a refund
//
// /me and /admin require a bearer token; /admin also requires the caller to
// be an administrator. Every error is rendered as
// {"error":{"code":"...","message":"..."}} where code is the stable reason
// code from entitlement.ReasonCode.
package billing

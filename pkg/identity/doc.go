// Package identity authenticates API callers with HS256 JWTs.
//
// The account service issues tokens whose subject is the user id. Tokens
// verifies signature, expiry and the optional issuer and audience, and
// Middleware turns a valid bearer token into a Principal on the request
// context:
//
//	tokens, err := identity.NewTokens(cfg)
//	if err != nil {
//	    return err
//	}
//	r.With(identity.Middleware(tokens, writeError)).Get("/me/entitlement", h)
package identity

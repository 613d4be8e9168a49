package identity

import "errors"

var (
	ErrMissingSecret = errors.New("identity: jwt secret is required")
	ErrMissingToken  = errors.New("identity: bearer token is missing")
	ErrInvalidToken  = errors.New("identity: invalid token")
	ErrMissingUserID = errors.New("identity: user id is required")
	ErrNoPrincipal   = errors.New("identity: no authenticated user in context")
)

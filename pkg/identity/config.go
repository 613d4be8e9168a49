package identity

import "time"

// Config is filled from IDENTITY_* variables. Tokens are HS256 JWTs issued
// by the account service that shares Secret.
type Config struct {
	Secret   string        `env:"IDENTITY_JWT_SECRET"`
	Issuer   string        `env:"IDENTITY_JWT_ISSUER"`
	Audience string        `env:"IDENTITY_JWT_AUDIENCE"`
	Leeway   time.Duration `env:"IDENTITY_JWT_LEEWAY" envDefault:"30s"`
	TokenTTL time.Duration `env:"IDENTITY_TOKEN_TTL" envDefault:"1h"`
}

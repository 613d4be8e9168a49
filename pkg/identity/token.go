package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the token payload. Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
}

// Tokens signs and verifies HS256 identity tokens.
type Tokens struct {
	secret []byte
	cfg    Config
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokens returns a verifier for cfg.
func NewTokens(cfg Config) (*Tokens, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Tokens{
		secret: []byte(cfg.Secret),
		cfg:    cfg,
		now:    time.Now,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Issue signs a token for userID valid for the configured TTL. The admin CLI
// uses it; production tokens come from the account service.
func (t *Tokens) Issue(userID, email string) (string, error) {
	if userID == "" {
		return "", ErrMissingUserID
	}
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    t.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.TokenTTL)),
		},
		Email: email,
	}
	if t.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{t.cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses raw and returns the principal it names.
func (t *Tokens) Verify(raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	var claims Claims
	_, err := t.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return Principal{}, errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Principal{}, errors.Join(ErrInvalidToken, ErrMissingUserID)
	}
	return Principal{UserID: claims.Subject, Email: claims.Email}, nil
}

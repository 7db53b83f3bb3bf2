package auth

import (
	"fmt"
	"slices"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kbukum/backendkit/errors"
)

// Token kinds.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims are the claims carried by every issued token.
type Claims struct {
	gojwt.RegisteredClaims
	Kind  string   `json:"kind"`
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the token grants role.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// TokenPair is the result of a successful issue or refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (p *Provider) sign(s Settings, subject, kind string, roles []string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    s.Issuer,
			Audience:  s.Audience,
			IssuedAt:  gojwt.NewNumericDate(now),
			NotBefore: gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(exp),
		},
		Kind:  kind,
		Roles: roles,
	}
	signed, err := gojwt.NewWithClaims(s.method(), claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, exp, nil
}

func (p *Provider) parse(s Settings, token string) (*Claims, error) {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{s.Method}),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(p.now),
	}
	if s.Issuer != "" {
		opts = append(opts, gojwt.WithIssuer(s.Issuer))
	}
	if len(s.Audience) > 0 {
		opts = append(opts, gojwt.WithAudience(s.Audience[0]))
	}

	claims := &Claims{}
	_, err := gojwt.ParseWithClaims(token, claims, func(*gojwt.Token) (any, error) {
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		return nil, errors.InvalidInput("token", err.Error()).WithCause(err)
	}
	if p.revoked(claims.ID) {
		return nil, errors.InvalidInput("token", "token has been revoked")
	}
	return claims, nil
}

// ABOUTME: Bearer token handling for the gateway connection
// ABOUTME: Inspects JWT claims client-side to warn about expired credentials

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrNotJWT       = errors.New("token is not a JWT")
	ErrExpiredToken = errors.New("token expired")
)

// TokenInfo holds the claims fold-console cares about. The console never
// verifies signatures; the gateway does that. Inspection exists so the user
// hears "your token expired yesterday" instead of a bare 401.
type TokenInfo struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// Expired reports whether the token was expired at the given instant.
// Tokens without an exp claim never expire.
func (ti *TokenInfo) Expired(now time.Time) bool {
	return !ti.ExpiresAt.IsZero() && now.After(ti.ExpiresAt)
}

// ExpiresWithin reports whether the token expires within d of now.
func (ti *TokenInfo) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !ti.ExpiresAt.IsZero() && ti.ExpiresAt.Before(now.Add(d))
}

// Inspect parses a JWT without verifying its signature and returns the
// registered claims. Opaque (non-JWT) tokens return ErrNotJWT; callers
// should treat that as "cannot tell" rather than a failure.
func Inspect(tokenString string) (*TokenInfo, error) {
	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	info := &TokenInfo{}

	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}

	return info, nil
}

// Check inspects a token and returns ErrExpiredToken when it is already
// expired. Opaque tokens pass: the gateway is the authority on those.
func Check(tokenString string, now time.Time) error {
	info, err := Inspect(tokenString)
	if err != nil {
		return nil
	}
	if info.Expired(now) {
		return fmt.Errorf("%w at %s", ErrExpiredToken, info.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

package token

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Claims are the fields the console reads from an access token without verifying it
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
	UserID    string
}

type accessClaims struct {
	UserID any `json:"user_id,omitempty"`
	jwtlib.RegisteredClaims
}

// ParseClaims parses rawToken as a JWT without checking its signature
func ParseClaims(rawToken string) (*Claims, error) {
	var claims accessClaims
	if _, _, err := jwtlib.NewParser().ParseUnverified(rawToken, &claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	c := &Claims{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		c.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		c.IssuedAt = claims.IssuedAt.Time
	}
	if claims.UserID != nil {
		c.UserID = fmt.Sprint(claims.UserID)
	}
	return c, nil
}

// WellFormed reports whether rawToken parses as a JWT and has not expired.
// A token that fails this check is never sent for remote verification.
func WellFormed(rawToken string) bool {
	claims, err := ParseClaims(rawToken)
	if err != nil {
		return false
	}
	if claims.ExpiresAt.IsZero() {
		return true
	}
	return NowTimeFunc().Before(claims.ExpiresAt)
}

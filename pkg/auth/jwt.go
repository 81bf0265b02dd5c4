package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Expiry reads the exp claim of a token without verifying its signature.
// The token is only inspected to decide whether to refresh it; the API
// verifies it.
func Expiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read token expiry: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("token has no expiry")
	}
	return exp.Time, nil
}

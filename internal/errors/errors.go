package errors

import (
	"errors"
	"fmt"
)

// Common error types for the retail console
var (
	// Connectivity errors
	ErrOffline = errors.New("api unreachable")

	// Token errors
	ErrNoTokens            = errors.New("no tokens")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidCredentials  = errors.New("invalid credentials")

	// Shop errors
	ErrNoShopSelected = errors.New("no shop selected")
	ErrShopNotFound   = errors.New("shop not found")
	ErrAccessRevoked  = errors.New("shop access revoked")
	ErrInvalidRole    = errors.New("invalid role")

	// Session state errors
	ErrNotHydrated  = errors.New("session state not hydrated")
	ErrCorruptState = errors.New("corrupt persisted state")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNoAuthorizationServer = errors.New("no authorization server advertised by the resource")
	ErrNoPortAvailable       = errors.New("no callback port available")
	ErrInvalidState          = errors.New("invalid state")
	ErrMissingCode           = errors.New("authorization code missing in callback")
	ErrCallbackTimeout       = errors.New("timed out waiting for the authorization callback")
	ErrCancelled             = errors.New("authentication cancelled")
	ErrNoRefreshToken        = errors.New("no refresh token available")
	ErrNotAuthenticated      = errors.New("not authenticated")
)

// ProviderError is an error returned by the authorization server through the redirect.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization server returned %q: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization server returned %q", e.Code)
}

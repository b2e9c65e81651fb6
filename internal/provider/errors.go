package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthUnavailable means no authorization capability is configured.
	ErrAuthUnavailable = errors.New("authorization unavailable")
	// ErrAuthFailed means an interactive grant failed or was denied.
	ErrAuthFailed = errors.New("authorization failed")
	// ErrCredentialInvalid means a downstream service rejected the credential.
	ErrCredentialInvalid = errors.New("credential invalid or expired")
	// ErrTransport covers network and infrastructure failures.
	ErrTransport = errors.New("transport error")
)

// Describe renders err as a user-facing message.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthUnavailable):
		return "No authorization configured. Open settings to add a client ID or access token."
	case errors.Is(err, ErrAuthFailed):
		return fmt.Sprintf("Sign-in failed: %v", err)
	case errors.Is(err, ErrCredentialInvalid):
		return "Access token rejected or expired. Sign in again or paste a fresh token."
	default:
		return fmt.Sprintf("Error talking to Drive: %v", err)
	}
}

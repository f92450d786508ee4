package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals that no organization or registration matches the lookup.
	ErrNotFound = errors.New("domain: not found")
	// ErrUnauthenticated indicates a bad, expired or otherwise unacceptable token.
	ErrUnauthenticated = errors.New("domain: unauthenticated")
	// ErrTokenRevoked indicates a well-formed token that matches a revocation record.
	ErrTokenRevoked = fmt.Errorf("%w: token revoked", ErrUnauthenticated)
	// ErrDecryptionFailed is the single error returned for any cookie decryption failure.
	ErrDecryptionFailed = errors.New("domain: decryption failed")
	// ErrMalformedCookie indicates a cookie value that is not a valid encoding.
	ErrMalformedCookie = errors.New("domain: malformed cookie")
	// ErrUpstream marks failures of the authentication store or the identity provider.
	ErrUpstream = errors.New("domain: upstream error")
	// ErrLogoutInvalidationFailed marks a logout that could not record the revocation.
	ErrLogoutInvalidationFailed = errors.New("domain: logout invalidation failed")
)

// UpstreamError wraps a store or IdP failure without hiding the original cause.
type UpstreamError struct {
	Op  string
	Err error
}

// NewUpstreamError wraps err unless it already carries the upstream kind.
func NewUpstreamError(op string, err error) error {
	if err == nil {
		return nil
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// LogoutError is returned when any step between tenant resolution and the
// revocation write fails.
type LogoutError struct {
	Err error
}

func (e *LogoutError) Error() string {
	return fmt.Sprintf("could not logout JWT token: %v", e.Err)
}

func (e *LogoutError) Unwrap() error { return e.Err }

func (e *LogoutError) Is(target error) bool { return target == ErrLogoutInvalidationFailed }

package oauth

import "errors"

var (
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("oauth: invalid request")
	// ErrInvalidState indicates the authorization request cookie is missing or does not match.
	ErrInvalidState = errors.New("oauth: invalid state")
	// ErrTokenInvalid indicates the IdP returned an unusable token response.
	ErrTokenInvalid = errors.New("oauth: token invalid")
	// ErrAccessDenied is returned when the IdP reports an error on the callback.
	ErrAccessDenied = errors.New("oauth: access denied")
)

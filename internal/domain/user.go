package domain

import "time"

// PrincipalVersion is the current schema version of a serialized Principal.
const PrincipalVersion = 1

// Principal is the authenticated OIDC user kept in the session cookie.
type Principal struct {
	Version        int            `json:"v" validate:"required,eq=1"`
	Subject        string         `json:"sub" validate:"required"`
	Name           string         `json:"name,omitempty"`
	Email          string         `json:"email,omitempty"`
	OrganizationID string         `json:"org" validate:"required"`
	RegistrationID string         `json:"reg" validate:"required"`
	Claims         map[string]any `json:"claims,omitempty"`
	IssuedAt       time.Time      `json:"iat"`
	ExpiresAt      time.Time      `json:"exp" validate:"required"`
}

// Expired reports whether the session principal is no longer usable.
func (p Principal) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// AuthenticationMethod tells how a request was authenticated.
type AuthenticationMethod string

const (
	AuthenticationMethodJWT     AuthenticationMethod = "jwt"
	AuthenticationMethodSession AuthenticationMethod = "session"
)

// Authentication is the result of authenticating a request.
type Authentication interface {
	Name() string
	Method() AuthenticationMethod
}

// JWTAuthentication is a request authenticated with a bearer JWT.
type JWTAuthentication struct {
	OrganizationID string
	Token          VerifiedToken
}

func (a *JWTAuthentication) Name() string { return a.Token.Subject }

func (a *JWTAuthentication) Method() AuthenticationMethod { return AuthenticationMethodJWT }

// SessionAuthentication is a request authenticated by the encrypted session cookie.
type SessionAuthentication struct {
	Principal Principal
}

func (a *SessionAuthentication) Name() string { return a.Principal.Subject }

func (a *SessionAuthentication) Method() AuthenticationMethod {
	return AuthenticationMethodSession
}

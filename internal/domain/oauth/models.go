package oauth

import "time"

// AuthorizationRequestVersion is the schema version of a serialized AuthorizationRequest.
const AuthorizationRequestVersion = 1

// AuthorizationRequest captures the state/nonce/pkce tuple kept in the
// authorization request cookie between the redirect and the callback.
type AuthorizationRequest struct {
	Version          int       `json:"v" validate:"required,eq=1"`
	State            string    `json:"state" validate:"required"`
	Nonce            string    `json:"nonce" validate:"required"`
	CodeVerifier     string    `json:"code_verifier" validate:"required"`
	RedirectURI      string    `json:"redirect_uri" validate:"required"`
	ReturnTo         string    `json:"return_to,omitempty"`
	RegistrationID   string    `json:"registration_id" validate:"required"`
	ClientID         string    `json:"client_id" validate:"required"`
	AuthorizationURI string    `json:"authorization_uri" validate:"required"`
	Scopes           []string  `json:"scopes"`
	CreatedAt        time.Time `json:"created_at"`
}

// OAuthTokenResponse models the response from an external IdP token endpoint.
type OAuthTokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenType    string
	IDToken      string
	Scope        string
	Raw          map[string]any
}

// OAuthUserInfo is the normalized profile returned by the userinfo endpoint.
type OAuthUserInfo struct {
	Subject string
	Email   string
	Name    string
	Raw     map[string]any
}

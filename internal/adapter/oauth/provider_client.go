package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
	domainoauth "github.com/sadam21/gooddata-server-oauth2/internal/domain/oauth"
)

const maxResponseSize = 1 << 20

// ProviderClient encapsulates outbound HTTP calls to the tenant's IdP.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, registration domain.ClientRegistration, code, codeVerifier, redirectURI string) (*domainoauth.OAuthTokenResponse, error)
	FetchUserInfo(ctx context.Context, registration domain.ClientRegistration, accessToken string) (*domainoauth.OAuthUserInfo, error)
	FetchKeySet(ctx context.Context, jwkSetURI string) (*jose.JSONWebKeySet, error)
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	httpClient *http.Client
}

var _ ProviderClient = (*HTTPProviderClient)(nil)

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{httpClient: client}
}

// ExchangeCode performs the authorization code exchange.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, registration domain.ClientRegistration, code, codeVerifier, redirectURI string) (*domainoauth.OAuthTokenResponse, error) {
	if strings.TrimSpace(registration.TokenURI) == "" {
		return nil, fmt.Errorf("token uri missing")
	}
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	if strings.TrimSpace(codeVerifier) != "" {
		data.Set("code_verifier", codeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registration.TokenURI, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(url.QueryEscape(registration.ClientID), url.QueryEscape(registration.ClientSecret))

	body, err := c.do(req, "token exchange")
	if err != nil {
		return nil, err
	}

	var payload tokenPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)

	return &domainoauth.OAuthTokenResponse{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    payload.ExpiresIn,
		TokenType:    payload.TokenType,
		IDToken:      payload.IDToken,
		Scope:        payload.Scope,
		Raw:          raw,
	}, nil
}

// FetchUserInfo loads the userinfo endpoint profile.
func (c *HTTPProviderClient) FetchUserInfo(ctx context.Context, registration domain.ClientRegistration, accessToken string) (*domainoauth.OAuthUserInfo, error) {
	if strings.TrimSpace(registration.UserInfoURI) == "" {
		return nil, fmt.Errorf("userinfo uri missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, registration.UserInfoURI, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, "userinfo")
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}

	return &domainoauth.OAuthUserInfo{
		Subject: stringValue(raw["sub"]),
		Email:   firstString(raw["email"], raw["mail"]),
		Name:    firstString(raw["name"], raw["preferred_username"]),
		Raw:     raw,
	}, nil
}

// FetchKeySet downloads the JSON Web Key Set published by the IdP.
func (c *HTTPProviderClient) FetchKeySet(ctx context.Context, jwkSetURI string) (*jose.JSONWebKeySet, error) {
	if strings.TrimSpace(jwkSetURI) == "" {
		return nil, fmt.Errorf("jwk set uri missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwkSetURI, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, "jwks")
	if err != nil {
		return nil, err
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	return &set, nil
}

func (c *HTTPProviderClient) do(req *http.Request, what string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", what, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", what, err)
	}
	if resp.StatusCode >= 300 {
		var oauthErr errorPayload
		if json.Unmarshal(body, &oauthErr) == nil && oauthErr.Error != "" {
			return nil, fmt.Errorf("%s failed: status=%d error=%s %s", what, resp.StatusCode, oauthErr.Error, oauthErr.Description)
		}
		return nil, fmt.Errorf("%s failed: status=%d", what, resp.StatusCode)
	}
	return body, nil
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	IDToken      string `json:"id_token"`
	Scope        string `json:"scope"`
}

type errorPayload struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func stringValue(input any) string {
	if v, ok := input.(string); ok {
		return v
	}
	return ""
}

// firstString returns the first non-blank string among values.
func firstString(values ...any) string {
	for _, v := range values {
		if s := stringValue(v); strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

package oauth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"

	"github.com/sadam21/gooddata-server-oauth2/internal/adapter/oauth"
	"github.com/sadam21/gooddata-server-oauth2/internal/domain"
)

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "client", user)
		require.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		require.Equal(t, "the-code", r.PostForm.Get("code"))
		require.Equal(t, "verifier", r.PostForm.Get("code_verifier"))
		require.Equal(t, "https://org.example.com/login/oauth2/code/org.example.com", r.PostForm.Get("redirect_uri"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","id_token":"idt","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	client := oauth.NewHTTPProviderClient(srv.Client())
	registration := domain.ClientRegistration{ClientID: "client", ClientSecret: "secret", TokenURI: srv.URL}

	token, err := client.ExchangeCode(context.Background(), registration, "the-code", "verifier", "https://org.example.com/login/oauth2/code/org.example.com")
	require.NoError(t, err)
	require.Equal(t, "at", token.AccessToken)
	require.Equal(t, "idt", token.IDToken)
	require.Equal(t, int64(3600), token.ExpiresIn)
}

func TestExchangeCodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := oauth.NewHTTPProviderClient(srv.Client())
	_, err := client.ExchangeCode(context.Background(), domain.ClientRegistration{TokenURI: srv.URL}, "c", "", "r")
	require.ErrorContains(t, err, "status=400")

	_, err = client.ExchangeCode(context.Background(), domain.ClientRegistration{}, "c", "", "r")
	require.ErrorContains(t, err, "token uri missing")
}

func TestExchangeCodeOAuthErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer srv.Close()

	client := oauth.NewHTTPProviderClient(srv.Client())
	_, err := client.ExchangeCode(context.Background(), domain.ClientRegistration{TokenURI: srv.URL}, "c", "v", "r")
	require.ErrorContains(t, err, "status=400 error=invalid_grant code expired")
}

func TestFetchUserInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"sub":"alice","mail":"alice@example.com","preferred_username":"Alice"}`))
	}))
	defer srv.Close()

	client := oauth.NewHTTPProviderClient(srv.Client())
	info, err := client.FetchUserInfo(context.Background(), domain.ClientRegistration{UserInfoURI: srv.URL}, "at")
	require.NoError(t, err)
	require.Equal(t, "alice", info.Subject)
	require.Equal(t, "alice@example.com", info.Email)
	require.Equal(t, "Alice", info.Name)
}

func TestFetchKeySet(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{Key: &key.PublicKey, KeyID: "k1", Algorithm: string(jose.RS256), Use: "sig"}}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(set))
	}))
	defer srv.Close()

	client := oauth.NewHTTPProviderClient(srv.Client())
	got, err := client.FetchKeySet(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, got.Key("k1"), 1)
}

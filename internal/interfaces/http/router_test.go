package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/manorfm/oauth2-provider/internal/application"
	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/config"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/jwt"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/keygen"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/password"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/storage"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/storage/memory"
	"github.com/manorfm/oauth2-provider/internal/interfaces/http/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	clientID     = "c1"
	clientSecret = "c1-secret"
	publicClient = "spa"
	redirectURI  = "https://client.example.com/callback"
)

type tokenStores map[domain.TokenKind]*memory.TokenStore

func (s tokenStores) TokenStorage(kind domain.TokenKind) (domain.TokenStorage, error) {
	return s[kind], nil
}

type testServer struct {
	*httptest.Server
	stores    tokenStores
	unhealthy atomic.Bool
}

func newTestServer(t *testing.T, rotate bool) *testServer {
	t.Helper()
	logger := zap.NewNop()

	secretHash, err := password.Hash(clientSecret)
	require.NoError(t, err)
	aliceHash, err := password.Hash("wonderland")
	require.NoError(t, err)
	rootHash, err := password.Hash("toor")
	require.NoError(t, err)

	owners, err := storage.ParseOwners("alice:" + aliceHash + ",root:" + rootHash)
	require.NoError(t, err)

	clients := memory.NewClientStore(
		&domain.Client{
			ID:           clientID,
			Secret:       secretHash,
			RedirectURIs: []string{redirectURI},
			GrantTypes:   domain.GrantTypes,
			Scopes:       domain.NewScope("read", "write"),
		},
		&domain.Client{
			ID:           publicClient,
			RedirectURIs: []string{redirectURI},
			GrantTypes:   []string{domain.GrantTypeImplicit},
			Scopes:       domain.NewScope("read"),
		},
	)

	ts := &testServer{stores: tokenStores{
		domain.AccessTokenKind:       memory.NewTokenStore(),
		domain.RefreshTokenKind:      memory.NewTokenStore(),
		domain.AuthorizationCodeKind: memory.NewTokenStore(),
	}}

	cfg := config.NewConfig().OAuth2
	cfg.RefreshTokenRotation = rotate
	core, err := application.NewCore(cfg, clients, ts.stores, owners, keygen.New(), logger)
	require.NoError(t, err)

	sessions, err := jwt.New(time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	router := NewRouter(ctx, Services{
		Grants:        core.Grants,
		Authorization: core.Authorization,
		Introspection: core.Introspection,
		Clients:       core.Clients,
		Owners:        owners,
		Sessions:      sessions,
		SessionKey:    sessions.PublicKey(),
		AdminUsers:    []string{"root"},
		Health: func(context.Context) error {
			if ts.unhealthy.Load() {
				return errors.New("connection refused")
			}
			return nil
		},
	}, logger)

	ts.Server = httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"read"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.URL + "/oauth2/authorize",
			TokenURL:  ts.URL + "/oauth2/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// browser keeps cookies and does not follow redirects
func (ts *testServer) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (ts *testServer) login(t *testing.T, client *http.Client, username, secret string) string {
	t.Helper()
	body, _ := json.Marshal(handlers.SessionRequest{Username: username, Password: secret})
	resp, err := client.Post(ts.URL+"/session", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session handlers.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	return session.Token
}

func decodeError(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp
}

func retrieveError(t *testing.T, err error) *oauth2.RetrieveError {
	t.Helper()
	var re *oauth2.RetrieveError
	require.True(t, errors.As(err, &re), "expected a RetrieveError, got %v", err)
	return re
}

func TestPasswordAndRefreshFlow(t *testing.T) {
	ts := newTestServer(t, false)
	ctx := context.Background()
	conf := ts.oauthConfig()

	token, err := conf.PasswordCredentialsToken(ctx, "alice", "wonderland")
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
	assert.NotEmpty(t, token.RefreshToken)
	assert.Equal(t, "Bearer", token.Type())
	assert.Equal(t, "read", token.Extra("scope"))
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.Expiry, time.Minute)

	refreshed, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken}).Token()
	require.NoError(t, err)
	assert.NotEqual(t, token.AccessToken, refreshed.AccessToken)
	assert.Equal(t, token.RefreshToken, refreshed.RefreshToken)

	_, err = conf.PasswordCredentialsToken(ctx, "alice", "queen-of-hearts")
	re := retrieveError(t, err)
	assert.Equal(t, "invalid_grant", re.ErrorCode)
	assert.Equal(t, http.StatusBadRequest, re.Response.StatusCode)
}

func TestRefreshRotation(t *testing.T) {
	ts := newTestServer(t, true)
	ctx := context.Background()
	conf := ts.oauthConfig()

	token, err := conf.PasswordCredentialsToken(ctx, "alice", "wonderland")
	require.NoError(t, err)

	refreshed, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken}).Token()
	require.NoError(t, err)
	assert.NotEqual(t, token.RefreshToken, refreshed.RefreshToken)

	_, err = conf.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken}).Token()
	assert.Equal(t, "invalid_grant", retrieveError(t, err).ErrorCode)
}

func TestClientCredentialsFlow(t *testing.T) {
	ts := newTestServer(t, false)
	ctx := context.Background()

	for _, style := range []oauth2.AuthStyle{oauth2.AuthStyleInHeader, oauth2.AuthStyleInParams} {
		conf := clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     ts.URL + "/oauth2/token",
			Scopes:       []string{"write"},
			AuthStyle:    style,
		}

		token, err := conf.Token(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, token.AccessToken)
		assert.Empty(t, token.RefreshToken)
		assert.Equal(t, "write", token.Extra("scope"))
	}

	before := ts.stores[domain.AccessTokenKind].Len()
	conf := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: "wrong",
		TokenURL:     ts.URL + "/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	_, err := conf.Token(ctx)
	re := retrieveError(t, err)
	assert.Equal(t, "invalid_client", re.ErrorCode)
	assert.Equal(t, http.StatusUnauthorized, re.Response.StatusCode)
	assert.NotEmpty(t, re.Response.Header.Get("WWW-Authenticate"))
	assert.Equal(t, before, ts.stores[domain.AccessTokenKind].Len())
}

func TestAuthorizationCodeFlow(t *testing.T) {
	ts := newTestServer(t, false)
	ctx := context.Background()
	conf := ts.oauthConfig()
	browser := ts.browser(t)

	ts.login(t, browser, "alice", "wonderland")

	resp, err := browser.Get(conf.AuthCodeURL("xyz"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "client.example.com", location.Host)
	assert.Equal(t, "xyz", location.Query().Get("state"))
	code := location.Query().Get("code")
	require.NotEmpty(t, code)

	token, err := conf.Exchange(ctx, code)
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
	assert.NotEmpty(t, token.RefreshToken)
	assert.Equal(t, "read", token.Extra("scope"))

	// Codes are single use
	_, err = conf.Exchange(ctx, code)
	assert.Equal(t, "invalid_grant", retrieveError(t, err).ErrorCode)
	assert.Equal(t, 0, ts.stores[domain.AuthorizationCodeKind].Len())
}

func TestAuthorizeErrors(t *testing.T) {
	ts := newTestServer(t, false)
	conf := ts.oauthConfig()
	browser := ts.browser(t)

	t.Run("no session redirects with access_denied", func(t *testing.T) {
		resp, err := browser.Get(conf.AuthCodeURL("xyz"))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusFound, resp.StatusCode)

		location, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "access_denied", location.Query().Get("error"))
		assert.Equal(t, "xyz", location.Query().Get("state"))
	})

	ts.login(t, browser, "alice", "wonderland")

	t.Run("unregistered redirect is not followed", func(t *testing.T) {
		query := url.Values{
			"response_type": {"code"},
			"client_id":     {clientID},
			"redirect_uri":  {"https://evil.example.com/callback"},
		}
		resp, err := browser.Get(ts.URL + "/oauth2/authorize?" + query.Encode())
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Location"))
		assert.Equal(t, "invalid_request", decodeError(t, resp.Body)["error"])
	})

	t.Run("unknown response type", func(t *testing.T) {
		query := url.Values{
			"response_type": {"id_token"},
			"client_id":     {clientID},
			"redirect_uri":  {redirectURI},
		}
		resp, err := browser.Get(ts.URL + "/oauth2/authorize?" + query.Encode())
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusFound, resp.StatusCode)

		location, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "unsupported_response_type", location.Query().Get("error"))
	})

	t.Run("scope beyond the client", func(t *testing.T) {
		conf := ts.oauthConfig()
		conf.Scopes = []string{"admin"}
		resp, err := browser.Get(conf.AuthCodeURL("s"))
		require.NoError(t, err)
		resp.Body.Close()

		location, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "invalid_scope", location.Query().Get("error"))
	})
}

func TestImplicitFlow(t *testing.T) {
	ts := newTestServer(t, false)
	browser := ts.browser(t)
	ts.login(t, browser, "alice", "wonderland")

	query := url.Values{
		"response_type": {"token"},
		"client_id":     {publicClient},
		"redirect_uri":  {redirectURI},
		"state":         {"abc"},
	}
	resp, err := browser.Get(ts.URL + "/oauth2/authorize?" + query.Encode())
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Empty(t, location.RawQuery)

	fragment, err := url.ParseQuery(location.Fragment)
	require.NoError(t, err)
	assert.NotEmpty(t, fragment.Get("access_token"))
	assert.Equal(t, "bearer", fragment.Get("token_type"))
	assert.Equal(t, "3600", fragment.Get("expires_in"))
	assert.Equal(t, "abc", fragment.Get("state"))
	assert.Empty(t, fragment.Get("refresh_token"))
	assert.Equal(t, 0, ts.stores[domain.RefreshTokenKind].Len())
}

func TestTokenEndpoint(t *testing.T) {
	ts := newTestServer(t, false)

	t.Run("unsupported grant type", func(t *testing.T) {
		resp, err := http.PostForm(ts.URL+"/oauth2/token", url.Values{
			"grant_type":    {"urn:ietf:params:oauth:grant-type:device_code"},
			"client_id":     {clientID},
			"client_secret": {clientSecret},
		})
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "unsupported_grant_type", decodeError(t, resp.Body)["error"])
	})

	t.Run("json body", func(t *testing.T) {
		body := `{"grant_type":"client_credentials","client_id":"c1","client_secret":"c1-secret","scope":"read write"}`
		resp, err := http.Post(ts.URL+"/oauth2/token", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

		var token domain.TokenResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&token))
		assert.Equal(t, "bearer", token.TokenType)
		assert.Equal(t, int64(3600), token.ExpiresIn)
		assert.Equal(t, "read write", token.Scope)
	})

	t.Run("malformed json", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/oauth2/token", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_request", decodeError(t, resp.Body)["error"])
	})
}

func TestIntrospect(t *testing.T) {
	ts := newTestServer(t, false)
	ctx := context.Background()

	token, err := ts.oauthConfig().PasswordCredentialsToken(ctx, "alice", "wonderland")
	require.NoError(t, err)

	introspect := func(t *testing.T, form url.Values) (*http.Response, application.Introspection) {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/oauth2/introspect", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(clientID, clientSecret)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		var result application.Introspection
		if resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		}
		return resp, result
	}

	t.Run("access token", func(t *testing.T) {
		resp, result := introspect(t, url.Values{"token": {token.AccessToken}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, result.Active)
		assert.Equal(t, "alice", result.Subject)
		assert.Equal(t, clientID, result.ClientID)
		assert.Equal(t, "read", result.Scope)
		assert.Equal(t, domain.TokenTypeBearer, result.TokenType)
	})

	t.Run("refresh token with hint", func(t *testing.T) {
		resp, result := introspect(t, url.Values{
			"token":           {token.RefreshToken},
			"token_type_hint": {"refresh_token"},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, result.Active)
		assert.Equal(t, domain.TokenTypeBearer, result.TokenType)
	})

	t.Run("unknown token", func(t *testing.T) {
		resp, result := introspect(t, url.Values{"token": {"unknown"}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.False(t, result.Active)
		assert.Empty(t, result.ClientID)
	})

	t.Run("missing token", func(t *testing.T) {
		resp, _ := introspect(t, url.Values{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("public client", func(t *testing.T) {
		resp, err := http.PostForm(ts.URL+"/oauth2/introspect", url.Values{
			"client_id": {publicClient},
			"token":     {token.AccessToken},
		})
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, domain.ErrorCodeInvalidClient, decodeError(t, resp.Body)["error"])
	})
}

func TestSession(t *testing.T) {
	ts := newTestServer(t, false)

	t.Run("wrong password", func(t *testing.T) {
		body := `{"username":"alice","password":"nope"}`
		resp, err := http.Post(ts.URL+"/session", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "access_denied", decodeError(t, resp.Body)["error"])
	})

	t.Run("missing field", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/session", "application/json", strings.NewReader(`{"username":"alice"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeError(t, resp.Body)
		assert.Equal(t, "invalid_request", body["error"])
		assert.NotEmpty(t, body["details"])
	})

	t.Run("logout expires the cookie", func(t *testing.T) {
		browser := ts.browser(t)
		ts.login(t, browser, "alice", "wonderland")

		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/session", nil)
		require.NoError(t, err)
		resp, err := browser.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, err = browser.Get(ts.oauthConfig().AuthCodeURL("s"))
		require.NoError(t, err)
		resp.Body.Close()
		location, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "access_denied", location.Query().Get("error"))
	})
}

func TestClientAdmin(t *testing.T) {
	ts := newTestServer(t, false)
	ctx := context.Background()

	rootToken := ts.login(t, ts.browser(t), "root", "toor")
	aliceToken := ts.login(t, ts.browser(t), "alice", "wonderland")

	do := func(t *testing.T, method, path, token, body string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("anonymous", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, "/api/oauth2/clients", "", "").StatusCode)
	})

	t.Run("not an admin", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, do(t, http.MethodGet, "/api/oauth2/clients", aliceToken, "").StatusCode)
	})

	var created handlers.ClientResponse
	t.Run("register and use a client", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/api/oauth2/clients", rootToken,
			`{"grant_types":["client_credentials"],"scope":"reports","confidential":true}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		assert.NotEmpty(t, created.ID)
		assert.NotEmpty(t, created.ClientSecret)
		assert.True(t, created.Confidential)

		conf := clientcredentials.Config{
			ClientID:     created.ID,
			ClientSecret: created.ClientSecret,
			TokenURL:     ts.URL + "/oauth2/token",
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		token, err := conf.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "reports", token.Extra("scope"))
	})

	t.Run("get never returns the secret", func(t *testing.T) {
		resp := do(t, http.MethodGet, "/api/oauth2/clients/"+created.ID, rootToken, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got handlers.ClientResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, created.ID, got.ID)
		assert.Empty(t, got.ClientSecret)
	})

	t.Run("list", func(t *testing.T) {
		resp := do(t, http.MethodGet, "/api/oauth2/clients", rootToken, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var list []handlers.ClientResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
		assert.Len(t, list, 3)
	})

	t.Run("update", func(t *testing.T) {
		resp := do(t, http.MethodPut, "/api/oauth2/clients/"+created.ID, rootToken,
			`{"grant_types":["client_credentials"],"scope":"reports audit"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got handlers.ClientResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "audit reports", got.Scope)
		assert.True(t, got.Confidential)
	})

	t.Run("validation", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/api/oauth2/clients", rootToken, `{"grant_types":["device_code"]}`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		body := decodeError(t, resp.Body)
		details := body["details"].([]interface{})
		require.Len(t, details, 1)
		assert.Equal(t, "grant_types[0]", details[0].(map[string]interface{})["field"])
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, "/api/oauth2/clients/"+created.ID, rootToken, "").StatusCode)
		assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, "/api/oauth2/clients/"+created.ID, rootToken, "").StatusCode)
		assert.Equal(t, http.StatusNotFound, do(t, http.MethodDelete, "/api/oauth2/clients/"+created.ID, rootToken, "").StatusCode)
	})
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, false)

	get := func(path string) int {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, get("/health"))
	assert.Equal(t, http.StatusOK, get("/health/live"))
	assert.Equal(t, http.StatusOK, get("/health/ready"))

	ts.unhealthy.Store(true)
	assert.Equal(t, http.StatusServiceUnavailable, get("/health/ready"))
	assert.Equal(t, http.StatusOK, get("/health/live"))
}

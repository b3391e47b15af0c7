package domain

import "context"

// Grant types registered by default
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypePassword          = "password"
	GrantTypeImplicit          = "implicit"
	GrantTypeClientCredentials = "client_credentials"
)

// GrantTypes lists every grant type in registration order
var GrantTypes = []string{
	GrantTypeAuthorizationCode,
	GrantTypeRefreshToken,
	GrantTypePassword,
	GrantTypeImplicit,
	GrantTypeClientCredentials,
}

// IsKnownGrantType reports whether grantType is one of GrantTypes
func IsKnownGrantType(grantType string) bool {
	for _, gt := range GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// TokenTypeBearer is the only token type this server issues
const TokenTypeBearer = "bearer"

// GrantRequest carries the grant type and every flow-specific parameter.
// It is built per request and never persisted.
type GrantRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	RefreshToken string
	Username     string
	Password     string
	Scope        string
	// UserID is the resource owner of the current session, used by the implicit grant
	UserID string
}

// TokenResponse is the successful token endpoint response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ResourceOwnerAuthenticator checks resource owner credentials for the password grant
type ResourceOwnerAuthenticator interface {
	// Authenticate returns the user ID for valid credentials
	Authenticate(ctx context.Context, username, password string) (string, error)
}

package handlers

import "time"

// TokenRequest is the token endpoint body when sent as JSON
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	RefreshToken string `json:"refresh_token"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Scope        string `json:"scope"`
}

// ClientRequest creates or updates a client
type ClientRequest struct {
	RedirectURIs []string `json:"redirect_uris" validate:"omitempty,dive,required,url"`
	GrantTypes   []string `json:"grant_types" validate:"required,min=1,dive,oneof=authorization_code refresh_token password implicit client_credentials"`
	Scope        string   `json:"scope"`
	Confidential bool     `json:"confidential"`
}

// ClientResponse is a registered client. ClientSecret is only set on creation.
type ClientResponse struct {
	ID           string    `json:"client_id"`
	ClientSecret string    `json:"client_secret,omitempty"`
	RedirectURIs []string  `json:"redirect_uris"`
	GrantTypes   []string  `json:"grant_types"`
	Scope        string    `json:"scope"`
	Confidential bool      `json:"confidential"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionRequest logs a resource owner in
type SessionRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SessionResponse carries the session token also set as the jwt cookie
type SessionResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

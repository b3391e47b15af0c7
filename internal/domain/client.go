package domain

import (
	"context"
	"errors"
	"time"
)

// ErrClientNotFound is returned by client storage when the id is unknown
var ErrClientNotFound = errors.New("client not found")

// Client represents a registered OAuth2 client application
type Client struct {
	ID string `json:"id"`
	// Secret holds the bcrypt hash of the client secret. Public clients have none.
	Secret       string    `json:"-"`
	RedirectURIs []string  `json:"redirect_uris"`
	GrantTypes   []string  `json:"grant_types"`
	Scopes       Scope     `json:"scopes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsConfidential reports whether the client authenticates with a secret
func (c *Client) IsConfidential() bool {
	return c.Secret != ""
}

// HasRedirectURI reports whether uri is one of the registered redirect URIs
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// AllowsGrantType reports whether the client may use the given grant type
func (c *Client) AllowsGrantType(grantType string) bool {
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// ClientStorage defines the interface for OAuth2 client data access
type ClientStorage interface {
	// FindClient finds a client by ID, returning ErrClientNotFound if absent
	FindClient(ctx context.Context, id string) (*Client, error)

	// SaveClient creates or replaces a client
	SaveClient(ctx context.Context, client *Client) error

	// DeleteClient deletes a client
	DeleteClient(ctx context.Context, id string) error

	// ListClients lists all clients
	ListClients(ctx context.Context) ([]*Client, error)
}

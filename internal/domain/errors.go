package domain

import "errors"

// OAuth2 error codes (RFC 6749 section 5.2)
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeServerError             = "server_error"
)

// Error is an OAuth2 protocol error.
// Two errors match with errors.Is when their codes are equal, so a copy with a
// different description still matches the sentinel it was derived from.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// Is matches another *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDescription returns a copy of the error carrying a different description
func (e *Error) WithDescription(description string) *Error {
	return &Error{Code: e.Code, Description: description}
}

var (
	// ErrInvalidRequest is returned when a required parameter is missing
	ErrInvalidRequest = &Error{Code: ErrorCodeInvalidRequest, Description: "The request is missing a required parameter"}

	// ErrInvalidClient is returned when the client is unknown or its secret does not match
	ErrInvalidClient = &Error{Code: ErrorCodeInvalidClient, Description: "Client authentication failed"}

	// ErrInvalidGrant is returned for any invalid, expired or consumed grant
	ErrInvalidGrant = &Error{Code: ErrorCodeInvalidGrant, Description: "The provided authorization grant is invalid"}

	// ErrInvalidScope is returned when the requested scope exceeds what is authorized
	ErrInvalidScope = &Error{Code: ErrorCodeInvalidScope, Description: "The requested scope is invalid"}

	// ErrUnauthorizedClient is returned when the client may not use the grant type
	ErrUnauthorizedClient = &Error{Code: ErrorCodeUnauthorizedClient, Description: "The client is not authorized to use this grant type"}

	// ErrUnsupportedGrantType is returned when no strategy handles the grant type
	ErrUnsupportedGrantType = &Error{Code: ErrorCodeUnsupportedGrantType, Description: "The authorization grant type is not supported"}

	// ErrUnsupportedResponseType is returned by the authorization endpoint
	ErrUnsupportedResponseType = &Error{Code: ErrorCodeUnsupportedResponseType, Description: "The response type is not supported"}

	// ErrAccessDenied is returned when there is no authenticated resource owner
	ErrAccessDenied = &Error{Code: ErrorCodeAccessDenied, Description: "The resource owner is not authenticated"}

	// ErrStorage is returned when the storage backend fails
	ErrStorage = &Error{Code: ErrorCodeServerError, Description: "The server encountered an unexpected condition"}
)

// ErrInvalidCredentials is returned by resource owner authenticators
var ErrInvalidCredentials = errors.New("invalid credentials")

// AsError extracts the OAuth2 error from err. Unknown errors become ErrStorage.
func AsError(err error) *Error {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return ErrStorage
}

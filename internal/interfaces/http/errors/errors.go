package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/manorfm/oauth2-provider/internal/domain"
)

// ErrorResponse is the OAuth2 error body (RFC 6749 section 5.2)
type ErrorResponse struct {
	Error       string        `json:"error"`
	Description string        `json:"error_description,omitempty"`
	Details     []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail represents a validation error detail
type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Status returns the HTTP status for err
func Status(err error) int {
	switch {
	case errors.Is(err, domain.ErrClientNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	}

	switch domain.AsError(err).Code {
	case domain.ErrorCodeInvalidClient:
		return http.StatusUnauthorized
	case domain.ErrorCodeAccessDenied:
		return http.StatusForbidden
	case domain.ErrorCodeServerError:
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

// response converts err into the body sent to the client.
// Errors outside the OAuth2 model never leak their message.
func response(err error) ErrorResponse {
	switch {
	case errors.Is(err, domain.ErrClientNotFound):
		return ErrorResponse{Error: domain.ErrorCodeInvalidRequest, Description: "Client not found"}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return ErrorResponse{Error: domain.ErrorCodeAccessDenied, Description: "Invalid username or password"}
	}

	oauthErr := domain.AsError(err)
	if oauthErr.Code == domain.ErrorCodeServerError {
		return ErrorResponse{Error: domain.ErrStorage.Code, Description: domain.ErrStorage.Description}
	}
	return ErrorResponse{Error: oauthErr.Code, Description: oauthErr.Description}
}

// RespondWithError writes err as an OAuth2 error response
func RespondWithError(w http.ResponseWriter, err error) {
	status := Status(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2"`)
	}
	w.Header().Set("Cache-Control", "no-store")
	RespondWithJSON(w, status, response(err))
}

// RespondWithValidationError reports a failed request body validation
func RespondWithValidationError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{
		Error:       domain.ErrorCodeInvalidRequest,
		Description: "Validation failed",
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			resp.Details = append(resp.Details, ErrorDetail{
				Field:   fieldName(fe),
				Message: fieldMessage(fe),
			})
		}
	} else {
		resp.Description = "Invalid request body"
	}

	RespondWithJSON(w, http.StatusBadRequest, resp)
}

// RespondWithJSON writes v with the given status
func RespondWithJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func fieldName(fe validator.FieldError) string {
	// Namespace is Type.field[index]; the type prefix means nothing to the caller
	_, name, found := strings.Cut(fe.Namespace(), ".")
	if !found {
		return fe.Field()
	}
	return name
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " needs at least " + fe.Param() + " entries"
	case "url":
		return fe.Field() + " must be an absolute URL"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	}
	return fe.Field() + " is invalid"
}

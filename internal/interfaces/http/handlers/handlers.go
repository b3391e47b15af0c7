package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	httperrors "github.com/manorfm/oauth2-provider/internal/interfaces/http/errors"
	"go.uber.org/zap"
)

// validate reports field errors by their JSON names
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into req and validates it.
// On failure the error response has already been written.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		httperrors.RespondWithValidationError(w, err)
		return false
	}
	if err := validate.Struct(req); err != nil {
		httperrors.RespondWithValidationError(w, err)
		return false
	}
	return true
}

// HealthHandler serves the liveness and readiness probes
type HealthHandler struct {
	check  func(ctx context.Context) error
	logger *zap.Logger
}

// NewHealthHandler creates a HealthHandler. check reports whether storage is reachable.
func NewHealthHandler(check func(ctx context.Context) error, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{check: check, logger: logger}
}

// Health always answers OK
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Live always answers Alive
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Alive"))
}

// Ready answers 503 while a storage backend is unreachable
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.check != nil {
		if err := h.check(r.Context()); err != nil {
			h.logger.Error("Storage health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Storage unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/manorfm/oauth2-provider/internal/application"
	"github.com/manorfm/oauth2-provider/internal/domain"
	httperrors "github.com/manorfm/oauth2-provider/internal/interfaces/http/errors"
	"go.uber.org/zap"
)

// ClientHandler handles OAuth2 client management
type ClientHandler struct {
	service *application.ClientService
	logger  *zap.Logger
}

// NewClientHandler creates a new ClientHandler
func NewClientHandler(service *application.ClientService, logger *zap.Logger) *ClientHandler {
	return &ClientHandler{
		service: service,
		logger:  logger,
	}
}

// CreateClientHandler registers a client. The secret of a confidential client
// is only ever returned here.
func (h *ClientHandler) CreateClientHandler(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	client, secret, err := h.service.Register(r.Context(), registration(req))
	if err != nil {
		httperrors.RespondWithError(w, err)
		return
	}

	resp := clientResponse(client)
	resp.ClientSecret = secret
	httperrors.RespondWithJSON(w, http.StatusCreated, resp)
}

// UpdateClientHandler replaces the redirect URIs, grant types and scope of a client
func (h *ClientHandler) UpdateClientHandler(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "id")

	var req ClientRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	client, err := h.service.Update(r.Context(), clientID, registration(req))
	if err != nil {
		httperrors.RespondWithError(w, err)
		return
	}

	h.logger.Info("OAuth2 client updated", zap.String("client_id", clientID))
	httperrors.RespondWithJSON(w, http.StatusOK, clientResponse(client))
}

// DeleteClientHandler deletes a client
func (h *ClientHandler) DeleteClientHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httperrors.RespondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListClientsHandler lists every client
func (h *ClientHandler) ListClientsHandler(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.List(r.Context())
	if err != nil {
		httperrors.RespondWithError(w, err)
		return
	}

	resp := make([]ClientResponse, 0, len(clients))
	for _, c := range clients {
		resp = append(resp, clientResponse(c))
	}
	httperrors.RespondWithJSON(w, http.StatusOK, resp)
}

// GetClientHandler returns a single client
func (h *ClientHandler) GetClientHandler(w http.ResponseWriter, r *http.Request) {
	client, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httperrors.RespondWithError(w, err)
		return
	}
	httperrors.RespondWithJSON(w, http.StatusOK, clientResponse(client))
}

func registration(req ClientRequest) application.ClientRegistration {
	return application.ClientRegistration{
		RedirectURIs: req.RedirectURIs,
		GrantTypes:   req.GrantTypes,
		Scope:        req.Scope,
		Confidential: req.Confidential,
	}
}

func clientResponse(c *domain.Client) ClientResponse {
	return ClientResponse{
		ID:           c.ID,
		RedirectURIs: c.RedirectURIs,
		GrantTypes:   c.GrantTypes,
		Scope:        c.Scopes.String(),
		Confidential: c.IsConfidential(),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

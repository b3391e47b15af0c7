package http

import (
	"context"
	"crypto/rsa"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/manorfm/oauth2-provider/internal/application"
	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/manorfm/oauth2-provider/internal/interfaces/http/handlers"
	"github.com/manorfm/oauth2-provider/internal/interfaces/http/middleware/auth"
	"github.com/manorfm/oauth2-provider/internal/interfaces/http/middleware/ratelimit"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// Services are the application components exposed over HTTP
type Services struct {
	Grants        *application.GrantContext
	Authorization *application.AuthorizationService
	Introspection *application.IntrospectionService
	Clients       *application.ClientService
	Owners        domain.ResourceOwnerAuthenticator

	// Sessions signs resource owner sessions, SessionKey verifies them
	Sessions   handlers.SessionIssuer
	SessionKey *rsa.PublicKey
	AdminUsers []string

	// Health reports whether the storage backends are reachable
	Health func(ctx context.Context) error
}

type Router struct {
	router *chi.Mux
}

// NewRouter wires the handlers. The rate limiter janitor stops with ctx.
func NewRouter(ctx context.Context, svc Services, logger *zap.Logger) *Router {
	authMiddleware := auth.NewAuthMiddleware(svc.SessionKey, logger)

	oauth2Handler := handlers.NewOAuth2Handler(svc.Grants, svc.Authorization, svc.Introspection, logger)
	clientHandler := handlers.NewClientHandler(svc.Clients, logger)
	sessionHandler := handlers.NewSessionHandler(svc.Owners, svc.Sessions, svc.AdminUsers, logger)
	healthHandler := handlers.NewHealthHandler(svc.Health, logger)

	router := createRouter()

	rateLimiter := ratelimit.NewRateLimiter(ctx, 100, 200, 3*time.Minute)
	router.Use(rateLimiter.Middleware)

	// Health check endpoints
	router.Group(func(r chi.Router) {
		r.Get("/health", healthHandler.Health)
		r.Get("/health/ready", healthHandler.Ready)
		r.Get("/health/live", healthHandler.Live)
	})

	// Swagger UI configuration
	router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
		httpSwagger.DeepLinking(true),
	))

	router.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, "docs/swagger.json")
	})

	// OAuth2 endpoints
	router.Route("/oauth2", func(r chi.Router) {
		r.Post("/token", oauth2Handler.TokenHandler)
		r.Post("/introspect", oauth2Handler.IntrospectHandler)
		r.With(authMiddleware.Identify).Get("/authorize", oauth2Handler.AuthorizeHandler)
	})

	// Resource owner sessions
	router.Post("/session", sessionHandler.LoginHandler)
	router.Delete("/session", sessionHandler.LogoutHandler)

	// Admin routes
	router.Route("/api/oauth2/clients", func(r chi.Router) {
		r.Use(authMiddleware.Identify, authMiddleware.Authenticator, authMiddleware.RequireRole(auth.RoleAdmin))
		r.Get("/", clientHandler.ListClientsHandler)
		r.Post("/", clientHandler.CreateClientHandler)
		r.Get("/{id}", clientHandler.GetClientHandler)
		r.Put("/{id}", clientHandler.UpdateClientHandler)
		r.Delete("/{id}", clientHandler.DeleteClientHandler)
	})

	return &Router{router: router}
}

func createRouter() *chi.Mux {
	router := chi.NewRouter()

	// Add middleware
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Timeout(60 * time.Second))

	return router
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

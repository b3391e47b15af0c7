package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrDuplicateGrantType is returned when two strategies claim the same grant type
var ErrDuplicateGrantType = errors.New("grant type registered twice")

// GrantStrategy implements one OAuth2 grant
type GrantStrategy interface {
	// GrantType returns the grant_type value handled by the strategy
	GrantType() string

	// Handle validates the request and issues tokens
	Handle(ctx context.Context, req *domain.GrantRequest) (*domain.TokenResponse, error)
}

// GrantContext dispatches grant requests to the strategy registered for their grant type.
// The mapping is fixed at construction.
type GrantContext struct {
	strategies map[string]GrantStrategy
	order      []string
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewGrantContext registers the strategies. Registering a grant type twice is an error.
func NewGrantContext(logger *zap.Logger, strategies ...GrantStrategy) (*GrantContext, error) {
	gc := &GrantContext{
		strategies: make(map[string]GrantStrategy, len(strategies)),
		tracer:     otel.Tracer(instrumentationName),
		logger:     logger,
	}
	for _, s := range strategies {
		grantType := s.GrantType()
		if _, exists := gc.strategies[grantType]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateGrantType, grantType)
		}
		gc.strategies[grantType] = s
		gc.order = append(gc.order, grantType)
	}
	return gc, nil
}

// GrantTypes returns the registered grant types in registration order
func (gc *GrantContext) GrantTypes() []string {
	types := make([]string, len(gc.order))
	copy(types, gc.order)
	return types
}

// Supports reports whether a strategy is registered for grantType
func (gc *GrantContext) Supports(grantType string) bool {
	_, ok := gc.strategies[grantType]
	return ok
}

// Handle routes the request to its strategy.
// Strategy errors are returned unchanged.
func (gc *GrantContext) Handle(ctx context.Context, req *domain.GrantRequest) (*domain.TokenResponse, error) {
	if req == nil {
		return nil, domain.ErrInvalidRequest
	}

	ctx, span := gc.tracer.Start(ctx, "oauth2.grant",
		trace.WithAttributes(attribute.String("oauth2.grant_type", req.GrantType)))
	defer span.End()

	strategy, ok := gc.strategies[req.GrantType]
	if !ok {
		gc.logger.Debug("Unsupported grant type", zap.String("grant_type", req.GrantType))
		span.SetStatus(codes.Error, domain.ErrorCodeUnsupportedGrantType)
		return nil, domain.ErrUnsupportedGrantType
	}

	resp, err := strategy.Handle(ctx, req)
	if err != nil {
		gc.logger.Debug("Grant failed",
			zap.String("grant_type", req.GrantType),
			zap.String("client_id", req.ClientID),
			zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.AsError(err).Code)
		return nil, err
	}

	span.SetAttributes(attribute.String("oauth2.client_id", req.ClientID))
	return resp, nil
}

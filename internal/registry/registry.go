package registry

import (
	"log/slog"
	"net/http"

	"dab/internal/registry/handler"
	"dab/internal/registry/service"
)

// Service is the controller-gated named registry.
type Service = service.Service

// Handler wires HTTP endpoints to the registry service.
type Handler = handler.Handler

// NewService constructs the registry service with required dependencies.
func NewService(guard service.Guard, store service.Store, opts ...service.Option) (*Service, error) {
	return service.New(guard, store, opts...)
}

// NewHandler constructs the HTTP handler. Mutating routes run behind requireCaller.
func NewHandler(s *Service, logger *slog.Logger, requireCaller func(http.Handler) http.Handler) *Handler {
	return handler.New(s, logger, requireCaller)
}

// Service options re-exported for wiring in main.
var (
	WithLogger         = service.WithLogger
	WithAuditPublisher = service.WithAuditPublisher
	WithMetrics        = service.WithMetrics
)

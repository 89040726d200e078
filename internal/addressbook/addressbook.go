package addressbook

import (
	"log/slog"
	"net/http"

	"dab/internal/addressbook/handler"
	"dab/internal/addressbook/service"
)

// Service is the per-caller address book.
type Service = service.Service

// Handler wires HTTP endpoints to the address book service.
type Handler = handler.Handler

func NewService(store service.Store, opts ...service.Option) (*Service, error) {
	return service.New(store, opts...)
}

func NewHandler(s *Service, logger *slog.Logger, requireCaller func(http.Handler) http.Handler) *Handler {
	return handler.New(s, logger, requireCaller)
}

// Service options re-exported for wiring in main.
var (
	WithLogger         = service.WithLogger
	WithAuditPublisher = service.WithAuditPublisher
	WithMetrics        = service.WithMetrics
)

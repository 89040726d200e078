package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	registrymetrics "dab/internal/registry/metrics"
	"dab/internal/registry/models"
	"dab/internal/registry/store"
	id "dab/pkg/domain"
	dErrors "dab/pkg/domain-errors"
	audit "dab/pkg/platform/audit"
	"dab/pkg/requestcontext"
)

// ServiceName is reported by the name query.
const ServiceName = "NFT Registry Canister"

// Messages returned to callers.
const (
	MsgSuccess       = "Operation was successful."
	MsgNotAuthorized = "You are not authorized to make changes."
	MsgNoSuchEntry   = "No such entry exists in the registry."
	MsgEditNotFound  = "The canister you want to change does not exist in the registry."
	MsgEditEmpty     = "You should pass at least one of the principal_id or standard parameters."
)

var tracer = otel.Tracer("dab/internal/registry/service")

// Store persists descriptors keyed by name.
type Store interface {
	Save(ctx context.Context, d *models.CanisterDescriptor) error
	Delete(ctx context.Context, name string) error
	FindByName(ctx context.Context, name string) (*models.CanisterDescriptor, error)
	ListAll(ctx context.Context) ([]*models.CanisterDescriptor, error)
	Count(ctx context.Context) (int, error)
}

// Guard decides whether a caller may mutate the registry.
type Guard interface {
	IsController(caller id.Identity) bool
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the controller-gated named registry.
//
// Mutations are serialized by mu so each check-then-act runs as one logical call.
type Service struct {
	mu             sync.Mutex
	guard          Guard
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *registrymetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service. A nil guard or store is a wiring bug.
func New(guard Guard, store Store, opts ...Option) (*Service, error) {
	if guard == nil {
		return nil, errors.New("guard is required")
	}
	if store == nil {
		return nil, errors.New("registry store is required")
	}
	s := &Service{guard: guard, store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

func (s *Service) Name() string {
	return ServiceName
}

// Add inserts or overwrites the descriptor under its name.
func (s *Service) Add(ctx context.Context, caller id.Identity, d *models.CanisterDescriptor) (err error) {
	ctx, span := tracer.Start(ctx, "registry.Add", trace.WithAttributes(attribute.String("canister.name", d.Name)))
	defer func() { endSpan(span, err) }()
	defer s.observe("add", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(ctx, caller, "add", d.Name); err != nil {
		return err
	}
	if err := d.Validate(); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return err
	}
	if err := s.store.Save(ctx, d.Clone()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save canister")
	}

	s.recordMutation(ctx, caller, audit.EventCanisterAdded, d.Name)
	return nil
}

// Remove deletes the descriptor stored under name.
func (s *Service) Remove(ctx context.Context, caller id.Identity, name string) (err error) {
	ctx, span := tracer.Start(ctx, "registry.Remove", trace.WithAttributes(attribute.String("canister.name", name)))
	defer func() { endSpan(span, err) }()
	defer s.observe("remove", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(ctx, caller, "remove", name); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, MsgNoSuchEntry)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove canister")
	}

	s.recordMutation(ctx, caller, audit.EventCanisterRemoved, name)
	return nil
}

// Edit changes one field of an existing descriptor. When both fields are
// supplied only the target identity is applied.
func (s *Service) Edit(ctx context.Context, caller id.Identity, name string, req models.EditRequest) (err error) {
	ctx, span := tracer.Start(ctx, "registry.Edit", trace.WithAttributes(attribute.String("canister.name", name)))
	defer func() { endSpan(span, err) }()
	defer s.observe("edit", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(ctx, caller, "edit", name); err != nil {
		return err
	}
	if req.IsEmpty() {
		return dErrors.New(dErrors.CodeValidation, MsgEditEmpty)
	}
	current, err := s.store.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, MsgEditNotFound)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load canister")
	}
	req.ApplyTo(current)
	if err := s.store.Save(ctx, current); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save canister")
	}

	s.recordMutation(ctx, caller, audit.EventCanisterEdited, name)
	return nil
}

// Get returns the descriptor under name. Open to any caller.
func (s *Service) Get(ctx context.Context, name string) (_ *models.CanisterDescriptor, err error) {
	ctx, span := tracer.Start(ctx, "registry.Get", trace.WithAttributes(attribute.String("canister.name", name)))
	defer func() { endSpan(span, err) }()
	defer s.observe("get", time.Now())

	d, err := s.store.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, MsgNoSuchEntry)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load canister")
	}
	return d, nil
}

// GetAll returns every descriptor sorted by name. Open to any caller.
func (s *Service) GetAll(ctx context.Context) (_ []*models.CanisterDescriptor, err error) {
	ctx, span := tracer.Start(ctx, "registry.GetAll")
	defer func() { endSpan(span, err) }()
	defer s.observe("get_all", time.Now())

	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list canisters")
	}
	return all, nil
}

func (s *Service) authorize(ctx context.Context, caller id.Identity, operation, name string) error {
	if s.guard.IsController(caller) {
		return nil
	}
	s.logger.WarnContext(ctx, "registry mutation denied",
		"caller", caller.String(),
		"operation", operation,
		"canister_name", name,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementDenied()
	}
	s.emit(ctx, audit.Event{
		Actor:   caller,
		Action:  string(audit.EventMutationDenied),
		Subject: name,
		Reason:  operation,
	})
	return dErrors.New(dErrors.CodeForbidden, MsgNotAuthorized)
}

func (s *Service) recordMutation(ctx context.Context, caller id.Identity, event audit.AuditEvent, name string) {
	s.logger.InfoContext(ctx, string(event),
		"caller", caller.String(),
		"canister_name", name,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	s.emit(ctx, audit.Event{
		Actor:   caller,
		Action:  string(event),
		Subject: name,
	})
	if s.metrics == nil {
		return
	}
	s.metrics.IncrementMutation(string(event))
	if n, err := s.store.Count(ctx); err == nil {
		s.metrics.SetEntries(n)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.Timestamp = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}

func (s *Service) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, start)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

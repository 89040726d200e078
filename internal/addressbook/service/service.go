package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	bookmetrics "dab/internal/addressbook/metrics"
	"dab/internal/addressbook/models"
	"dab/internal/addressbook/store"
	id "dab/pkg/domain"
	dErrors "dab/pkg/domain-errors"
	audit "dab/pkg/platform/audit"
	"dab/pkg/requestcontext"
)

// ServiceName is reported by the name query.
const ServiceName = "DAB"

var tracer = otel.Tracer("dab/internal/addressbook/service")

// Store persists (owner, name) -> target entries.
type Store interface {
	Put(ctx context.Context, entry *models.AddressEntry) error
	Delete(ctx context.Context, key models.Key) (bool, error)
	Find(ctx context.Context, key models.Key) (*models.AddressEntry, error)
	ListByOwner(ctx context.Context, owner id.Identity) ([]*models.AddressEntry, error)
	DeleteByOwner(ctx context.Context, owner id.Identity) (int, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the per-caller address book. The owner of every entry is the
// calling identity; there is no cross-owner access.
type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *bookmetrics.Metrics
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

func WithMetrics(m *bookmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("address book store is required")
	}
	s := &Service{store: store}
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

// AddAddress records target under name in the caller's book, overwriting any
// previous entry. Names are not length checked.
func (s *Service) AddAddress(ctx context.Context, caller id.Identity, name string, target id.Identity) (err error) {
	ctx, span := s.start(ctx, "addressbook.AddAddress", caller, name)
	defer func() { endSpan(span, err) }()
	defer s.observe("add", time.Now())

	if err := requireCaller(caller); err != nil {
		return err
	}
	entry := &models.AddressEntry{Owner: caller, Name: name, TargetID: target}
	if err := s.store.Put(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save address")
	}
	s.recordMutation(ctx, caller, audit.EventAddressAdded, name)
	return nil
}

// RemoveAddress deletes the caller's entry under name. A missing entry is not
// an error.
func (s *Service) RemoveAddress(ctx context.Context, caller id.Identity, name string) (err error) {
	ctx, span := s.start(ctx, "addressbook.RemoveAddress", caller, name)
	defer func() { endSpan(span, err) }()
	defer s.observe("remove", time.Now())

	if err := requireCaller(caller); err != nil {
		return err
	}
	removed, err := s.store.Delete(ctx, models.Key{Owner: caller, Name: name})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove address")
	}
	if removed {
		s.recordMutation(ctx, caller, audit.EventAddressRemoved, name)
	}
	return nil
}

// GetAddress looks up name in the caller's book. A miss returns a lookup with
// a nil target, not an error.
func (s *Service) GetAddress(ctx context.Context, caller id.Identity, name string) (_ *models.AddressLookup, err error) {
	ctx, span := s.start(ctx, "addressbook.GetAddress", caller, name)
	defer func() { endSpan(span, err) }()
	defer s.observe("get", time.Now())

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	lookup := &models.AddressLookup{Name: name}
	entry, err := s.store.Find(ctx, models.Key{Owner: caller, Name: name})
	switch {
	case err == nil:
		target := entry.TargetID
		lookup.TargetID = &target
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load address")
	}
	if s.metrics != nil {
		s.metrics.IncrementLookup(lookup.Found())
	}
	return lookup, nil
}

// RemoveAll clears the caller's book and returns how many entries were removed.
func (s *Service) RemoveAll(ctx context.Context, caller id.Identity) (_ int, err error) {
	ctx, span := s.start(ctx, "addressbook.RemoveAll", caller, "")
	defer func() { endSpan(span, err) }()
	defer s.observe("remove_all", time.Now())

	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	n, err := s.store.DeleteByOwner(ctx, caller)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear address book")
	}
	span.SetAttributes(attribute.Int("addressbook.removed", n))
	if n > 0 {
		s.recordMutation(ctx, caller, audit.EventAddressBookCleared, "")
	}
	return n, nil
}

// GetAll returns the caller's entries sorted by name.
func (s *Service) GetAll(ctx context.Context, caller id.Identity) (_ []*models.AddressEntry, err error) {
	ctx, span := s.start(ctx, "addressbook.GetAll", caller, "")
	defer func() { endSpan(span, err) }()
	defer s.observe("get_all", time.Now())

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	entries, err := s.store.ListByOwner(ctx, caller)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list address book")
	}
	return entries, nil
}

func requireCaller(caller id.Identity) error {
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	return nil
}

func (s *Service) recordMutation(ctx context.Context, caller id.Identity, event audit.AuditEvent, name string) {
	s.logger.InfoContext(ctx, string(event),
		"caller", caller.String(),
		"canister_name", name,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	if s.metrics != nil {
		s.metrics.IncrementMutation(string(event))
	}
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Actor:     caller,
		Action:    string(event),
		Subject:   name,
		RequestID: requestcontext.RequestID(ctx),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", string(event),
			"error", err,
		)
	}
}

func (s *Service) start(ctx context.Context, op string, caller id.Identity, name string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("caller", caller.String())}
	if name != "" {
		attrs = append(attrs, attribute.String("canister.name", name))
	}
	return tracer.Start(ctx, op, trace.WithAttributes(attrs...))
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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"dab/internal/addressbook"
	bookmetrics "dab/internal/addressbook/metrics"
	bookservice "dab/internal/addressbook/service"
	bookstore "dab/internal/addressbook/store"
	"dab/internal/guard"
	jwttoken "dab/internal/jwt_token"
	"dab/internal/platform/config"
	"dab/internal/platform/httpserver"
	"dab/internal/platform/logger"
	"dab/internal/platform/metrics"
	"dab/internal/platform/postgres"
	redisclient "dab/internal/platform/redis"
	"dab/internal/registry"
	registrymetrics "dab/internal/registry/metrics"
	registryservice "dab/internal/registry/service"
	regstore "dab/internal/registry/store"
	"dab/internal/snapshot"
	httptransport "dab/internal/transport/http"
	id "dab/pkg/domain"
	"dab/pkg/platform/audit"
	"dab/pkg/platform/audit/publisher"
	kafkasink "dab/pkg/platform/audit/store/kafka"
	auditmemory "dab/pkg/platform/audit/store/memory"
	auditpostgres "dab/pkg/platform/audit/store/postgres"
	"dab/pkg/platform/middleware/auth"
)

type registryStore interface {
	registryservice.Store
	snapshot.RegistryStore
}

type bookStore interface {
	bookservice.Store
	snapshot.BookStore
}

// stores groups the selected backend with its health checks and cleanup.
type stores struct {
	registry registryStore
	book     bookStore
	audit    audit.Sink
	// fallback receives events while the Kafka sink is failing.
	fallback audit.Sink
	health   map[string]httptransport.HealthCheck
	closers  []func() error
}

func main() {
	if err := run(); err != nil {
		slog.Error("dab stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close(log)

	g, err := restoreState(ctx, cfg, st, log)
	if err != nil {
		return err
	}

	pubOpts := []publisher.Option{
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithLogger(log),
	}
	if st.fallback != nil {
		pubOpts = append(pubOpts, publisher.WithFallback(st.fallback))
	}
	pub := publisher.NewPublisher(st.audit, pubOpts...)
	defer pub.Close()

	reg := metrics.NewRegistry()
	regSvc, err := registry.NewService(g, st.registry,
		registry.WithLogger(log),
		registry.WithAuditPublisher(pub),
		registry.WithMetrics(registrymetrics.New(reg)),
	)
	if err != nil {
		return err
	}
	bookSvc, err := addressbook.NewService(st.book,
		addressbook.WithLogger(log),
		addressbook.WithAuditPublisher(pub),
		addressbook.WithMetrics(bookmetrics.New(reg)),
	)
	if err != nil {
		return err
	}

	requireCaller := auth.RequireCaller(
		tokenValidator(cfg.Auth, log),
		auth.Options{TrustCallerHeader: cfg.Auth.TrustCallerHeader},
		log,
	)
	if cfg.Auth.TrustCallerHeader {
		log.Warn("caller header is trusted; run behind a proxy that sets it", "header", auth.CallerHeader)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:   log,
		Metrics:  metrics.New(reg),
		Registry: reg,
		Modules: []httptransport.Registrar{
			registry.NewHandler(regSvc, log, requireCaller),
			addressbook.NewHandler(bookSvc, log, requireCaller),
		},
		HealthChecks: st.health,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info("starting dab", "addr", cfg.Server.Addr, "store", cfg.Store, "controller", g.Controller())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return captureState(shutdownCtx, cfg, g, st, log)
	})
	return eg.Wait()
}

// tokenValidator returns nil when bearer tokens are disabled.
func tokenValidator(cfg config.AuthConfig, log *slog.Logger) auth.TokenValidator {
	if cfg.JWTSigningKey == "" {
		log.Info("bearer tokens disabled: no JWT_SIGNING_KEY")
		return nil
	}
	if cfg.DevMode && cfg.JWTSigningKey == config.DevSigningKey {
		log.Warn("dev mode: tokens are signed with the public development key; anyone can impersonate the controller")
	}
	return jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer))
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*stores, error) {
	st := &stores{health: map[string]httptransport.HealthCheck{}}

	switch cfg.Store {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, db.Close)
		st.health["postgres"] = db.PingContext

		rs := regstore.NewPostgres(db)
		bs := bookstore.NewPostgres(db)
		as := auditpostgres.New(db)
		for _, m := range []interface{ Migrate(context.Context) error }{rs, bs, as} {
			if err := m.Migrate(ctx); err != nil {
				st.close(log)
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		st.registry, st.book, st.audit = rs, bs, as
	case config.StoreRedis:
		rc, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, rc.Close)
		st.health["redis"] = rc.Health
		st.registry = regstore.NewRedis(rc.Client)
		st.book = bookstore.NewRedis(rc.Client)
	default:
		st.registry = regstore.NewInMemory()
		st.book = bookstore.NewInMemory()
	}

	if len(cfg.Audit.KafkaBrokers) > 0 {
		sink, err := kafkasink.New(cfg.Audit.KafkaBrokers,
			kafkasink.WithTopic(cfg.Audit.KafkaTopic),
			kafkasink.WithLogger(log),
		)
		if err != nil {
			st.close(log)
			return nil, err
		}
		if err := sink.EnsureTopic(ctx, 1, 1); err != nil {
			log.Warn("could not ensure audit topic", "topic", cfg.Audit.KafkaTopic, "error", err)
		}
		st.closers = append(st.closers, func() error { sink.Close(); return nil })
		st.fallback = st.audit
		st.audit = sink
	}
	if st.audit == nil {
		st.audit = auditmemory.NewInMemoryStore()
	}
	if st.fallback == nil && len(cfg.Audit.KafkaBrokers) > 0 {
		st.fallback = auditmemory.NewInMemoryStore()
	}
	return st, nil
}

func (s *stores) close(log *slog.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn("close failed", "error", err)
		}
	}
	s.closers = nil
}

// restoreState builds the guard from configuration and any saved snapshot,
// then loads the snapshot into the stores.
func restoreState(ctx context.Context, cfg config.Config, st *stores, log *slog.Logger) (*guard.Guard, error) {
	var configured id.Identity
	if cfg.Controller != "" {
		c, err := id.ParseIdentity(cfg.Controller)
		if err != nil {
			return nil, fmt.Errorf("DAB_CONTROLLER: %w", err)
		}
		configured = c
	}

	var snap *snapshot.Snapshot
	if cfg.SnapshotPath != "" {
		loaded, err := snapshot.Load(cfg.SnapshotPath)
		switch {
		case errors.Is(err, snapshot.ErrNoSnapshot):
			log.Info("no snapshot found", "path", cfg.SnapshotPath)
		case err != nil:
			return nil, err
		default:
			snap = loaded
		}
	}

	controller, err := snapshot.CheckController(configured, snap)
	if err != nil {
		return nil, err
	}
	g, err := guard.New(controller)
	if err != nil {
		return nil, fmt.Errorf("DAB_CONTROLLER is required without a snapshot: %w", err)
	}

	if snap != nil {
		restored, err := snapshot.RestoreIfEmpty(ctx, snap, st.registry, st.book)
		if err != nil {
			return nil, err
		}
		if !restored {
			log.Warn("snapshot not restored: store already holds state",
				"path", cfg.SnapshotPath,
				"store", cfg.Store,
			)
			return g, nil
		}
		log.Info("snapshot restored",
			"path", cfg.SnapshotPath,
			"registry_entries", len(snap.Registry),
			"address_entries", len(snap.AddressBook),
		)
	}
	return g, nil
}

func captureState(ctx context.Context, cfg config.Config, g *guard.Guard, st *stores, log *slog.Logger) error {
	if cfg.SnapshotPath == "" {
		return nil
	}
	snap, err := snapshot.Capture(ctx, g, st.registry, st.book)
	if err != nil {
		return fmt.Errorf("capture snapshot: %w", err)
	}
	if err := snapshot.Save(cfg.SnapshotPath, snap); err != nil {
		return err
	}
	log.Info("snapshot saved", "path", cfg.SnapshotPath)
	return nil
}

package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"dab/internal/platform/metrics"
	"dab/pkg/platform/httputil"
	"dab/pkg/platform/middleware/metadata"
	request "dab/pkg/platform/middleware/request"
	"dab/pkg/platform/middleware/requesttime"
)

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Registry     *prometheus.Registry
	Modules      []Registrar
	HealthChecks map[string]HealthCheck
	// HealthTimeout bounds each health check; zero means two seconds.
	HealthTimeout time.Duration
}

// NewRouter wires the shared middleware chain, module routes, /healthz and /metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(logger))
	if cfg.Metrics != nil {
		r.Use(request.Metrics(cfg.Metrics))
	}

	r.Get("/healthz", healthHandler(cfg.HealthChecks, cfg.HealthTimeout, logger))
	if cfg.Registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Registry))
	}

	for _, m := range cfg.Modules {
		m.Register(r)
	}
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck, timeout time.Duration, logger *slog.Logger) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		status := http.StatusOK
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			err := checks[name](ctx)
			cancel()
			if err != nil {
				logger.WarnContext(r.Context(), "health check failed",
					"check", name,
					"error", err,
					"request_id", request.GetRequestID(r),
				)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}

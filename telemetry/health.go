package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"

	"github.com/brightclass/voicetutor/internal/httputil"
)

// HealthStatus represents the operational state of a component.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// HealthResult contains the outcome of a single health check.
type HealthResult struct {
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	Component string       `json:"component"`
	Timestamp time.Time    `json:"timestamp"`
}

// HealthChecker is implemented by any component that can report its health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) HealthResult
}

// HealthCheckerFunc adapts a plain function to the HealthChecker interface.
type HealthCheckerFunc func(ctx context.Context) HealthResult

func (f HealthCheckerFunc) HealthCheck(ctx context.Context) HealthResult { return f(ctx) }

// HealthRegistry aggregates named health checkers and runs them concurrently.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthRegistry creates an empty HealthRegistry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{checkers: make(map[string]HealthChecker)}
}

// Register adds a named health checker, replacing any existing one by name.
func (r *HealthRegistry) Register(name string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// CheckAll runs every registered health checker concurrently.
func (r *HealthRegistry) CheckAll(ctx context.Context) []HealthResult {
	r.mu.RLock()
	checkers := make(map[string]HealthChecker, len(r.checkers))
	for k, v := range r.checkers {
		checkers[k] = v
	}
	r.mu.RUnlock()

	if len(checkers) == 0 {
		return nil
	}

	type namedResult struct {
		result HealthResult
	}
	ch := make(chan namedResult, len(checkers))
	for name, checker := range checkers {
		go func(n string, c HealthChecker) {
			result := c.HealthCheck(ctx)
			result.Component = n
			if result.Timestamp.IsZero() {
				result.Timestamp = time.Now()
			}
			ch <- namedResult{result: result}
		}(name, checker)
	}

	results := make([]HealthResult, 0, len(checkers))
	for range len(checkers) {
		results = append(results, (<-ch).result)
	}
	return results
}

// HealthServer exposes /healthz (liveness/readiness, backed by a
// HealthRegistry) and /metrics (Prometheus scrape, backed by the exporter
// returned from InitMeter) for a single worker process. Container
// orchestrators poll /healthz; the observability stack scrapes /metrics as a
// secondary, pull-based complement to the push-based OTLP traces.
type HealthServer struct {
	lifecycle httputil.ServerLifecycle
	registry  *HealthRegistry
	router    *mux.Router
}

// NewHealthServer builds a HealthServer. promExporter is the *otelprom.Exporter
// returned by InitMeter; pass nil to omit the /metrics endpoint (e.g. in tests
// that don't exercise metrics).
func NewHealthServer(checks *HealthRegistry, promExporter *otelprom.Exporter) *HealthServer {
	h := &HealthServer{registry: checks, router: mux.NewRouter()}

	h.router.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)

	if promExporter != nil {
		reg := promclient.NewRegistry()
		reg.MustRegister(promExporter)
		h.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return h
}

func (h *HealthServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	results := h.registry.CheckAll(r.Context())

	status := Healthy
	for _, res := range results {
		if res.Status == Unhealthy {
			status = Unhealthy
			break
		}
		if res.Status == Degraded && status != Unhealthy {
			status = Degraded
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status == Unhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": results,
	})
}

// Serve starts the health/metrics HTTP server and blocks until ctx is
// canceled or the server exits.
func (h *HealthServer) Serve(ctx context.Context, addr string) error {
	return h.lifecycle.Serve(ctx, addr, h.router, 5*time.Second, 5*time.Second, 30*time.Second, "telemetry/health")
}

// Shutdown gracefully stops the server started by Serve.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	return h.lifecycle.Shutdown(ctx, "telemetry/health")
}

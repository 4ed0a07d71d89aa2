package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/dago-sandbox-router/internal/metrics"
	"github.com/aescanero/dago-sandbox-router/internal/policy"
	"github.com/aescanero/dago-sandbox-router/internal/rules"
)

// CheckFunc reports the health of one dependency.
type CheckFunc func(ctx context.Context) error

// RoutingState is the view of the rules cache served by the health server.
type RoutingState interface {
	Snapshot() rules.Snapshot
	Stale() bool
	Refresh(ctx context.Context) error
}

// HealthConfig configures the health server.
type HealthConfig struct {
	Port    int
	Role    policy.Role
	Checks  map[string]CheckFunc
	Routing RoutingState
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// HealthServer provides HTTP health check, metrics and routing endpoints
type HealthServer struct {
	port    int
	role    policy.Role
	checks  map[string]CheckFunc
	routing RoutingState
	metrics *metrics.Collector
	logger  *zap.Logger
	router  *chi.Mux
	server  *http.Server
}

// NewHealthServer creates a new health server
func NewHealthServer(cfg HealthConfig) *HealthServer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	hs := &HealthServer{
		port:    cfg.Port,
		role:    cfg.Role,
		checks:  cfg.Checks,
		routing: cfg.Routing,
		metrics: cfg.Metrics,
		logger:  logger,
		router:  chi.NewRouter(),
	}

	hs.router.Use(middleware.Recoverer)
	hs.routes()

	return hs
}

// routes registers all HTTP routes on the router
func (hs *HealthServer) routes() {
	hs.router.Get("/health", hs.handleHealth)
	hs.router.Get("/ready", hs.handleReady)
	if hs.metrics != nil {
		hs.router.Handle("/metrics", hs.metrics.Handler())
	}
	if hs.routing != nil {
		hs.router.Get("/routing", hs.handleRouting)
		hs.router.Post("/routing/refresh", hs.handleRoutingRefresh)
	}
}

// Handler returns the HTTP handler serving all endpoints
func (hs *HealthServer) Handler() http.Handler {
	return hs.router
}

// Start starts the health check server
func (hs *HealthServer) Start() error {
	hs.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", hs.port),
		Handler:           hs.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	hs.logger.Info("starting health server", zap.Int("port", hs.port))

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			hs.logger.Error("health server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the health check server
func (hs *HealthServer) Stop() error {
	if hs.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hs.logger.Info("stopping health server")
	return hs.server.Shutdown(ctx)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// RoutingResponse describes the routing rules this worker decides with
type RoutingResponse struct {
	Role       string    `json:"role"`
	Keys       []string  `json:"keys"`
	Generation uint64    `json:"generation"`
	Populated  bool      `json:"populated"`
	FetchedAt  time.Time `json:"fetched_at"`
	Stale      bool      `json:"stale"`
}

// runChecks runs all dependency checks
func (hs *HealthServer) runChecks(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(hs.checks))
	for name := range hs.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := hs.checks[name](ctx); err != nil {
			results[name] = fmt.Sprintf("unhealthy: %v", err)
			healthy = false
			continue
		}
		results[name] = "healthy"
	}
	return results, healthy
}

// handleHealth handles the /health endpoint
func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks, healthy := hs.runChecks(r.Context())
	if !healthy {
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Checks: checks,
		})
		return
	}

	// All checks passed
	hs.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Checks: checks,
	})
}

// handleReady handles the /ready endpoint
func (hs *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, healthy := hs.runChecks(r.Context()); !healthy {
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "not ready",
		})
		return
	}

	// Worker is ready; an unpopulated rule set still decides safely
	hs.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ready",
	})
}

// handleRouting handles the /routing endpoint
func (hs *HealthServer) handleRouting(w http.ResponseWriter, r *http.Request) {
	hs.respondJSON(w, http.StatusOK, hs.routingResponse())
}

// handleRoutingRefresh handles the /routing/refresh endpoint
func (hs *HealthServer) handleRoutingRefresh(w http.ResponseWriter, r *http.Request) {
	if err := hs.routing.Refresh(r.Context()); err != nil {
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: fmt.Sprintf("refresh interrupted: %v", err),
		})
		return
	}

	hs.logger.Info("routing rules refreshed on request",
		zap.String("remote_addr", r.RemoteAddr),
	)
	hs.respondJSON(w, http.StatusOK, hs.routingResponse())
}

func (hs *HealthServer) routingResponse() RoutingResponse {
	snap := hs.routing.Snapshot()

	return RoutingResponse{
		Role:       hs.role.String(),
		Keys:       snap.Keys.Keys(),
		Generation: snap.Generation,
		Populated:  snap.Populated,
		FetchedAt:  snap.FetchedAt,
		Stale:      hs.routing.Stale(),
	}
}

// respondJSON writes a JSON response
func (hs *HealthServer) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.Error("failed to encode response", zap.Error(err))
	}
}

// RedisCheck returns a check that pings Redis
func RedisCheck(client *redis.Client) CheckFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// AMQPCheck returns a check that fails once the connection is closed
func AMQPCheck(conn interface{ IsClosed() bool }) CheckFunc {
	return func(ctx context.Context) error {
		if conn.IsClosed() {
			return fmt.Errorf("connection closed")
		}
		return nil
	}
}

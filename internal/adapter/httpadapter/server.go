// Package httpadapter exposes the operational HTTP surface: health,
// readiness, metrics, and manual sync triggers.
package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/the-data-sherpa/vanguard-sub000/internal/domain"
	"github.com/the-data-sherpa/vanguard-sub000/internal/syncer"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// TenantLookup resolves a tenant id for the manual sync endpoints.
type TenantLookup interface {
	EligibleTenants(ctx context.Context) ([]domain.TenantConfig, error)
}

// IncidentLister feeds the collapsed incident listing.
type IncidentLister interface {
	RecentIncidents(ctx context.Context, tenantID string, since time.Time) ([]*domain.Incident, error)
}

// SyncTrigger runs a single tenant sync on demand.
type SyncTrigger interface {
	SyncTenantIncidents(ctx context.Context, tenant domain.TenantConfig) syncer.IncidentSyncResult
	SyncTenantWeather(ctx context.Context, tenant domain.TenantConfig) syncer.WeatherSyncResult
}

// Server exposes health, readiness, metrics, and manual sync routes.
type Server struct {
	httpServer *http.Server
	ready      ReadinessChecker
	tenants    TenantLookup
	trigger    SyncTrigger
	incidents  IncidentLister
	logger     *slog.Logger
}

func NewServer(addr string, ready ReadinessChecker, tenants TenantLookup, trigger SyncTrigger, incidents IncidentLister, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		ready:     ready,
		tenants:   tenants,
		trigger:   trigger,
		incidents: incidents,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /incidents/{tenant}", s.handleListIncidents)
	mux.HandleFunc("POST /sync/incidents/{tenant}", s.handleSyncIncidents)
	mux.HandleFunc("POST /sync/weather/{tenant}", s.handleSyncWeather)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ready.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleListIncidents serves a tenant's recent incidents with duplicate
// calls collapsed to one representative per merge group. The window query
// parameter takes a Go duration and defaults to 24h.
func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.resolveTenant(w, r)
	if !ok {
		return
	}

	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("invalid window %q", raw),
			})
			return
		}
		window = d
	}

	incidents, err := s.incidents.RecentIncidents(r.Context(), tenant.ID, time.Now().Add(-window))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	collapsed := domain.CollapseIncidents(incidents)
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenant.ID,
		"count":     len(collapsed),
		"incidents": collapsed,
	})
}

func (s *Server) handleSyncIncidents(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.resolveTenant(w, r)
	if !ok {
		return
	}
	res := s.trigger.SyncTenantIncidents(r.Context(), tenant)
	status := http.StatusOK
	if !res.Success() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func (s *Server) handleSyncWeather(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.resolveTenant(w, r)
	if !ok {
		return
	}
	res := s.trigger.SyncTenantWeather(r.Context(), tenant)
	status := http.StatusOK
	if !res.Success() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func (s *Server) resolveTenant(w http.ResponseWriter, r *http.Request) (domain.TenantConfig, bool) {
	id := r.PathValue("tenant")

	tenants, err := s.tenants.EligibleTenants(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return domain.TenantConfig{}, false
	}
	for _, t := range tenants {
		if t.ID == id {
			return t, true
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": fmt.Sprintf("unknown tenant %q", id),
	})
	return domain.TenantConfig{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort status response
}

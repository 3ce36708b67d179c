package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/taskmaster/pkg/coordinator"
	"github.com/cuemby/taskmaster/pkg/metrics"
)

// HealthServer is a plain HTTP server exposing liveness, readiness, and
// Prometheus metrics for the Master process. It runs alongside the
// admin façade's net/rpc listener rather than replacing it — operators
// and orchestrators expect a plain HTTP probe.
type HealthServer struct {
	coord *coordinator.Coordinator
	mux   *http.ServeMux
}

// NewHealthServer builds the health check HTTP server over coord.
func NewHealthServer(coord *coordinator.Coordinator) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{coord: coord, mux: mux}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	// /healthz and /readyz expose the per-component tracker (pkg/metrics)
	// that individual subsystems update via metrics.RegisterComponent as
	// they come up, distinct from the coordinator-only check above.
	mux.Handle("/healthz", metrics.HealthHandler())
	mux.Handle("/readyz", metrics.ReadyHandler())

	return hs
}

// Start serves the health endpoints on addr. Blocks.
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// HealthResponse is the /health liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the /ready readiness payload.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// healthHandler is a liveness check: 200 if the process can answer.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// readyHandler checks the coordinator's own store is reachable; there is
// no leader election to check (§1 Non-goals: no HA), only storage.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true

	if hs.coord != nil {
		if _, _, err := hs.coord.NodeCounts(); err != nil {
			checks["storage"] = err.Error()
			ready = false
		} else {
			checks["storage"] = "ok"
		}
	} else {
		checks["storage"] = "not initialized"
		ready = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ReadyResponse{Status: status, Timestamp: time.Now(), Checks: checks})
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

// Package api implements the read-only REST/HTTP query surface: gorilla/mux
// routes over a query.View, plus a host system-info endpoint backed by
// gopsutil.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/host"

	"netsentry/internal/metrics"
	"netsentry/internal/netlog"
	"netsentry/internal/query"
)

// Handler serves the REST surface's routes.
type Handler struct {
	view     *query.View
	registry *metrics.Registry
}

// NewHandler creates a Handler backed by view, exposing registry's
// metrics at /metrics in Prometheus text format alongside the JSON
// surface.
func NewHandler(view *query.View, registry *metrics.Registry) *Handler {
	return &Handler{view: view, registry: registry}
}

// Router builds the mux.Router wiring every REST endpoint plus the
// Prometheus exposition endpoint.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/metrics", h.listMetrics).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/metrics/{name}", h.getMetric).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/network/stats", h.networkStats).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/network/connections", h.networkConnections).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/network/hosts", h.networkHosts).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/system/info", h.systemInfo).Methods(http.MethodGet)
	r.Handle("/metrics", h.promHandler())
	return r
}

func (h *Handler) promHandler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewPromCollector(h.registry))
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (h *Handler) listMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"metrics": h.view.Metrics()})
}

func (h *Handler) getMetric(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	m, ok := h.view.Metric(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Metric not found"})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) networkStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view.NetworkStats())
}

func (h *Handler) networkConnections(w http.ResponseWriter, r *http.Request) {
	limit := query.NormalizeLimit(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, map[string]interface{}{"connections": h.view.Connections(limit)})
}

func (h *Handler) networkHosts(w http.ResponseWriter, r *http.Request) {
	limit := query.NormalizeLimit(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, map[string]interface{}{"hosts": h.view.Hosts(limit)})
}

// systemInfoView is the /api/v1/system/info response shape.
type systemInfoView struct {
	Hostname string `json:"hostname"`
	Platform string `json:"platform"`
	NumCPUs  int    `json:"num_cpus"`
	Uptime   uint64 `json:"uptime"`
}

func (h *Handler) systemInfo(w http.ResponseWriter, r *http.Request) {
	info, err := host.InfoWithContext(r.Context())
	if err != nil {
		netlog.Default.Warnf("api: host info unavailable: %v", err)
		writeJSON(w, http.StatusOK, systemInfoView{NumCPUs: runtime.NumCPU()})
		return
	}
	writeJSON(w, http.StatusOK, systemInfoView{
		Hostname: info.Hostname,
		Platform: info.Platform,
		NumCPUs:  runtime.NumCPU(),
		Uptime:   info.Uptime,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Server wraps an http.Server bound to the Handler's router.
type Server struct {
	httpServer *http.Server
}

// NewServer builds a Server listening on addr.
func NewServer(addr string, h *Handler) *Server {
	return &Server{httpServer: &http.Server{Addr: addr, Handler: h.Router()}}
}

// ListenAndServe starts serving; it blocks until the server stops, and
// returns nil when stopped deliberately via Shutdown.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ShutdownTimeout is the default grace period for a clean shutdown.
const ShutdownTimeout = 5 * time.Second

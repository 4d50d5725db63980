package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sightline/pkg/version"
)

// Handlers groups the endpoint handlers. Nil handlers leave their routes
// unregistered.
type Handlers struct {
	Analysis    *AnalysisHandler
	Stations    *StationHandler
	FlightPaths *FlightPathHandler
	Progress    *ProgressHub
	Metrics     prometheus.Gatherer
}

// NewServer creates and configures the HTTP server.
// shutdown is invoked asynchronously by POST /api/shutdown.
func NewServer(addr string, h Handlers, shutdown func()) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      NewHandler(h, shutdown),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // large grids
		IdleTimeout:  60 * time.Second,
	}
}

// NewHandler builds the routed handler wrapped in request logging.
func NewHandler(h Handlers, shutdown func()) http.Handler {
	mux := http.NewServeMux()

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Metrics
	if h.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.Metrics, promhttp.HandlerOpts{}))
	}

	// 3. Analysis
	if a := h.Analysis; a != nil {
		mux.HandleFunc("POST /api/analysis/station", a.HandleStation)
		mux.HandleFunc("POST /api/analysis/flightpath", a.HandleFlightPath)
		mux.HandleFunc("POST /api/analysis/merged", a.HandleMerged)
		mux.HandleFunc("POST /api/analysis/flightpath/visibility", a.HandlePathVisibility)
		mux.HandleFunc("POST /api/los/check", a.HandleLOSCheck)
		mux.HandleFunc("POST /api/los/profile", a.HandleLOSProfile)
		mux.HandleFunc("GET /api/elevation", a.HandleElevation)
	}

	// 4. Stations
	if s := h.Stations; s != nil {
		mux.HandleFunc("GET /api/stations", s.HandleList)
		mux.HandleFunc("POST /api/stations", s.HandleSave)
		mux.HandleFunc("GET /api/stations/{id}", s.HandleGet)
		mux.HandleFunc("PUT /api/stations/{id}", s.HandleSave)
		mux.HandleFunc("DELETE /api/stations/{id}", s.HandleDelete)
	}

	// 5. Flight paths
	if f := h.FlightPaths; f != nil {
		mux.HandleFunc("GET /api/flightpaths", f.HandleList)
		mux.HandleFunc("POST /api/flightpaths", f.HandleSave)
		mux.HandleFunc("GET /api/flightpaths/{id}", f.HandleGet)
		mux.HandleFunc("DELETE /api/flightpaths/{id}", f.HandleDelete)
	}

	// 6. Progress stream
	if h.Progress != nil {
		mux.HandleFunc("GET /api/progress", h.Progress.HandleConnection)
	}

	// 7. Shutdown
	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Info("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			// Call shutdown in a goroutine to allow response to flush
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	return withRequestLog(mux)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": %q}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/hamed0406/reachmon/internal/config"
	"github.com/hamed0406/reachmon/internal/hub"
	apimw "github.com/hamed0406/reachmon/internal/httpapi/middleware"
	"github.com/hamed0406/reachmon/internal/monitor"
	"github.com/hamed0406/reachmon/internal/probe"
	"github.com/hamed0406/reachmon/internal/repo"
)

// Scanner runs ad-hoc port scans.
type Scanner interface {
	Scan(ctx context.Context, host string, ports []int, timeout time.Duration, workers int) (probe.ScanReport, error)
}

type Server struct {
	Logger      *zap.Logger
	Monitor     *monitor.Monitor
	Defaults    config.Monitor
	Results     repo.ResultStore
	Transitions repo.TransitionStore
	Scans       repo.ScanStore
	Prober      probe.Prober
	Scanner     Scanner

	// Optional. A nil Resolver uses net.DefaultResolver.
	Resolver probe.DNSResolver
	Hub      *hub.Hub
	Metrics  *sdkmetric.ManualReader
}

func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	origins := allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		// read-only
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(pubRPM, pubBurst))
			r.Use(apimw.RequireAny(keys))

			r.Get("/targets", s.handleListTargets)
			r.Get("/targets/{id}", s.handleGetTarget)
			r.Get("/targets/{id}/results", s.handleHistory)
			r.Get("/targets/{id}/transitions", s.handleTransitions)
			r.Get("/states", s.handleStates)
			r.Get("/results/latest", s.handleLatest)
			r.Get("/scans", s.handleListScans)
			r.Get("/dns", s.handleDNS)
			if s.Metrics != nil {
				r.Get("/metrics", s.handleMetrics)
			}
			if s.Hub != nil {
				r.Get("/stream", s.Hub.HandleConnect)
			}
		})

		// mutating and probing
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(admRPM, admBurst))
			r.Use(apimw.RequireAdmin(keys))

			r.Post("/targets", s.handleAddTarget)
			r.Delete("/targets/{id}", s.handleDeleteTarget)
			r.Post("/probe", s.handleProbe)
			r.Post("/scan", s.handleScan)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

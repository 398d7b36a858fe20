package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zoravur/orderfeed/internal/metrics"
	"github.com/zoravur/orderfeed/internal/service"
)

// Deps are the shared resources injected from app.Server. Metrics and
// Gatherer are optional.
type Deps struct {
	Orders   *service.Orders
	Registry *service.Registry
	Logger   *zap.Logger
	Metrics  *metrics.ServerMetrics
	Gatherer prometheus.Gatherer
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.L()
	}
	h := &Handler{orders: d.Orders}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(d.Logger, d.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(d.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/live", func(w http.ResponseWriter, r *http.Request) {
			handleLiveOrders(w, r, d.Registry)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.listOrders)
			r.Post("/", h.createOrder)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getOrder)
				r.Put("/state", h.updateState)
				r.Get("/stream", h.streamOrder)
				r.Post("/entries", h.addEntry)
				r.Delete("/entries/{entryID}", h.removeEntry)
				r.Put("/entries/{entryID}/paid", h.setEntryPaid)
			})
		})
	})

	return r
}

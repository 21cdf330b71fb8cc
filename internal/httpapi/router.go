package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"PaperPerps/internal/observability"
)

// RouterDeps wires the API surface together.
type RouterDeps struct {
	Handler   *Handler
	WSHandler http.Handler
	Health    *observability.HealthChecker
	Metrics   *observability.Metrics
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(metricsMiddleware(d.Metrics))
	}

	if d.Health != nil {
		r.Get("/healthz", d.Health.LivenessHandler)
		r.Get("/readyz", d.Health.ReadinessHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/register", d.Handler.Register)
			r.Get("/{player}", d.Handler.Account)
		})
		r.Route("/trades", func(r chi.Router) {
			r.Post("/open", d.Handler.OpenTrade)
			r.Post("/close", d.Handler.CloseTrade)
			r.Get("/{player}", d.Handler.Trade)
		})
		r.Post("/resolve", d.Handler.Resolve)
		r.Post("/admin/price-authority", d.Handler.SetPriceAuthority)
		r.Get("/history/{player}", d.Handler.History)
		if d.WSHandler != nil {
			r.Handle("/events/ws", d.WSHandler)
		}
	})

	return r
}

func metricsMiddleware(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
			m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

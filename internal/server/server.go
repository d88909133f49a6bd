package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RouterOptions attaches the optional endpoints.
type RouterOptions struct {
	Metrics http.Handler    // served at /metrics when set
	Stream  http.Handler    // served at /v1/stream when set
	History *HistoryHandler // served at /v1/history when set
}

func NewRouter(server *Server, opts RouterOptions, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(zapLoggerMiddleware(logger))

	r.Get("/health", server.GetHealth)

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.Stream != nil {
		// Compression wraps the ResponseWriter and breaks the upgrade.
		r.Method(http.MethodGet, "/v1/stream", opts.Stream)
	}

	r.Group(func(api chi.Router) {
		api.Use(middleware.Compress(5))

		api.Get("/v1/markets", server.GetMarkets)
		api.Get("/v1/roll-pressure", server.GetRollPressure)
		api.Get("/v1/alerts/latest", server.GetLatestAlerts)
		api.Get("/v1/summary", server.GetSummary)
		api.Post("/admin/reload", server.PostReload)

		if opts.History != nil {
			api.Get("/v1/history", opts.History.GetHistory)
			api.Get("/v1/history/latest", opts.History.GetLatest)
		}
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("requestID", middleware.GetReqID(r.Context())),
			)
			next.ServeHTTP(w, r)
		})
	}
}

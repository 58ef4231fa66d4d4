// Package api serves the configuration registry over HTTP for the browser
// console front-end.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/valter-silva-au/knc/internal/core"
	"github.com/valter-silva-au/knc/internal/storage"
)

// BasePath prefixes every versioned endpoint.
const BasePath = "/api/v1"

// Deps are the services the router dispatches to. Tester, Instances,
// Settings and Metrics are optional; their endpoints answer 503 when unset.
type Deps struct {
	Registry   core.ConfigRegistry
	Serializer core.Serializer
	Tester     core.ConnectionTester
	Instances  core.InstanceBrowser
	Settings   storage.SettingsStore
	Metrics    http.Handler
	Logger     *slog.Logger

	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
}

// NewRouter builds the admin API handler.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route(BasePath, func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/configs", h.listConfigs)
		r.Post("/configs/{variant}", h.createConfig)
		r.Get("/configs/{id}", h.getConfig)
		r.Patch("/configs/{id}", h.updateConfig)
		r.Delete("/configs/{id}", h.deleteConfig)
		r.Post("/configs/{id}/duplicate", h.duplicateConfig)
		r.Post("/configs/{id}/toggle", h.toggleConfig)
		r.Post("/configs/{id}/test", h.testConfig)
		r.Get("/configs/{id}/instances", h.listInstances)
		r.Post("/validate/{variant}", h.validate)
		r.Get("/export", h.exportConfigs)
		r.Post("/import", h.importConfigs)
		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.putSettings)
	})

	return r
}

// requestLogger logs one line per request at debug level, or warn for 5xx.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

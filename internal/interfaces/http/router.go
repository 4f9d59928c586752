// Package http assembles molcore's HTTP transport: the gin engine, its
// middleware chain, and the route tree exposing the C2/C5 molecule
// operations, the C3 upload pipeline, the C4 prediction coordinator, audit
// log replay, and health probes.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cro-platform/molcore/internal/infrastructure/monitoring/logging"
	"github.com/cro-platform/molcore/internal/interfaces/http/handlers"
)

// RouterConfig aggregates the handler and middleware dependencies needed to
// assemble the full HTTP route tree. Middleware fields follow the
// func(http.Handler) http.Handler convention used across the codebase's
// net/http middleware package; nil entries are skipped.
type RouterConfig struct {
	MoleculeHandler   *handlers.MoleculeHandler
	IngestionHandler  *handlers.IngestionHandler
	PredictionHandler *handlers.PredictionHandler
	EventsHandler     *handlers.EventsHandler
	HealthHandler     *handlers.HealthHandler

	CORS          func(http.Handler) http.Handler
	RequestLogger func(http.Handler) http.Handler
	RateLimit     func(http.Handler) http.Handler
	Auth          func(http.Handler) http.Handler
	Tenant        func(http.Handler) http.Handler

	Logger logging.Logger
}

// adaptMiddleware lifts a standard func(http.Handler) http.Handler middleware
// into a gin.HandlerFunc so the net/http middleware stack can run inside the
// gin engine's pipeline.
func adaptMiddleware(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})
		mw(next).ServeHTTP(c.Writer, c.Request)
	}
}

// NewRouter constructs the complete HTTP route tree: a public health group
// and an authenticated, tenant-scoped /api/v1 group carrying the molecule
// resource routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	if cfg.CORS != nil {
		r.Use(adaptMiddleware(cfg.CORS))
	}
	if cfg.RequestLogger != nil {
		r.Use(adaptMiddleware(cfg.RequestLogger))
	}
	if cfg.RateLimit != nil {
		r.Use(adaptMiddleware(cfg.RateLimit))
	}

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}

	api := r.Group("/api/v1")
	if cfg.Auth != nil {
		api.Use(adaptMiddleware(cfg.Auth))
	}
	if cfg.Tenant != nil {
		api.Use(adaptMiddleware(cfg.Tenant))
	}

	if cfg.MoleculeHandler != nil {
		cfg.MoleculeHandler.RegisterRoutes(api)
	}
	if cfg.IngestionHandler != nil {
		cfg.IngestionHandler.RegisterRoutes(api)
	}
	if cfg.PredictionHandler != nil {
		cfg.PredictionHandler.RegisterRoutes(api)
	}
	if cfg.EventsHandler != nil {
		cfg.EventsHandler.RegisterRoutes(api)
	}

	return r
}

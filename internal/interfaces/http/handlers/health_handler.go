package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker is implemented by infrastructure components that can report
// their own connectivity health (Postgres, Redis, Kafka, OpenSearch, Milvus).
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthHandler serves the liveness, readiness, and detailed health endpoints
// consumed by orchestrator probes and operators.
type HealthHandler struct {
	checkers []HealthChecker
	version  string
	startAt  time.Time
}

// NewHealthHandler constructs a HealthHandler over the given component checkers.
func NewHealthHandler(version string, checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		version:  version,
		startAt:  time.Now(),
	}
}

// RegisterRoutes mounts the health endpoints onto the given router group.
func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/healthz/detail", h.Detailed)
}

// LivenessResponse is the liveness probe response body.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse is the readiness probe response body.
type ReadinessResponse struct {
	Status     string                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
}

// ComponentCheck reports a single dependency's health status.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Liveness always reports 200 while the process is running.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(200, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  time.Since(h.startAt).Truncate(time.Second).String(),
	})
}

// Readiness reports 503 if any registered dependency check fails.
func (h *HealthHandler) Readiness(c *gin.Context) {
	if len(h.checkers) == 0 {
		c.JSON(200, ReadinessResponse{Status: "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := h.checkAll(ctx)
	allHealthy := allComponentsHealthy(components)

	resp := ReadinessResponse{Components: components}
	if allHealthy {
		resp.Status = "ready"
		c.JSON(200, resp)
		return
	}
	resp.Status = "not_ready"
	c.JSON(503, resp)
}

// Detailed reports per-component latency and status for operator diagnosis.
func (h *HealthHandler) Detailed(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	components := h.checkAll(ctx)
	allHealthy := allComponentsHealthy(components)

	status := "healthy"
	code := 200
	if !allHealthy {
		status = "degraded"
		code = 503
	}

	c.JSON(code, gin.H{
		"status":     status,
		"version":    h.version,
		"uptime":     time.Since(h.startAt).Truncate(time.Second).String(),
		"components": components,
	})
}

func allComponentsHealthy(components map[string]ComponentCheck) bool {
	for _, cc := range components {
		if cc.Status != "healthy" {
			return false
		}
	}
	return true
}

func (h *HealthHandler) checkAll(ctx context.Context) map[string]ComponentCheck {
	results := make(map[string]ComponentCheck, len(h.checkers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, checker := range h.checkers {
		wg.Add(1)
		go func(chk HealthChecker) {
			defer wg.Done()

			start := time.Now()
			err := chk.Check(ctx)
			latency := time.Since(start)

			cc := ComponentCheck{
				Status:  "healthy",
				Latency: latency.Truncate(time.Microsecond).String(),
			}
			if err != nil {
				cc.Status = "unhealthy"
				cc.Error = err.Error()
			}

			mu.Lock()
			results[chk.Name()] = cc
			mu.Unlock()
		}(checker)
	}

	wg.Wait()
	return results
}

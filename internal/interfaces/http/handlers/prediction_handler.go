package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/cro-platform/molcore/internal/application/prediction"
	"github.com/cro-platform/molcore/internal/infrastructure/monitoring/logging"
	"github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
)

// PredictionHandler serves the C4 prediction job operations over HTTP.
type PredictionHandler struct {
	svc    *prediction.Service
	logger logging.Logger
}

// NewPredictionHandler constructs a PredictionHandler over the given application service.
func NewPredictionHandler(svc *prediction.Service, logger logging.Logger) *PredictionHandler {
	return &PredictionHandler{svc: svc, logger: logger}
}

// RegisterRoutes mounts prediction-job routes under the given router group.
func (h *PredictionHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/jobs", h.RequestPrediction)
	r.GET("/jobs/:id", h.Get)
	r.POST("/jobs/:id/cancel", h.Cancel)
}

type requestPredictionRequest struct {
	MoleculeIDs []string `json:"molecule_ids" binding:"required"`
	Properties  []string `json:"properties,omitempty"`
}

// RequestPrediction handles POST /jobs: request_prediction.
func (h *PredictionHandler) RequestPrediction(c *gin.Context) {
	var req requestPredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.InvalidParam("at least one molecule_id is required"))
		return
	}

	ids := make([]common.ID, len(req.MoleculeIDs))
	for i, id := range req.MoleculeIDs {
		ids[i] = common.ID(id)
	}

	job, err := h.svc.RequestPrediction(c.Request.Context(), prediction.RequestInput{
		MoleculeIDs: ids,
		Properties:  req.Properties,
	})
	if err != nil {
		h.logger.Error("request prediction failed", logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.JSON(201, job.ToDTO())
}

// Get handles GET /jobs/:id: the jobs --show lookup path.
func (h *PredictionHandler) Get(c *gin.Context) {
	id := common.ID(c.Param("id"))
	job, err := h.svc.GetJob(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get job failed", logging.String("id", string(id)), logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.JSON(200, job.ToDTO())
}

type cancelJobRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Cancel handles POST /jobs/:id/cancel.
func (h *PredictionHandler) Cancel(c *gin.Context) {
	id := common.ID(c.Param("id"))

	var req cancelJobRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.svc.Cancel(c.Request.Context(), id, req.Reason); err != nil {
		h.logger.Error("cancel job failed", logging.String("id", string(id)), logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.Status(204)
}

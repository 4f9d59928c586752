package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/cro-platform/molcore/internal/application/ingestion"
	"github.com/cro-platform/molcore/internal/infrastructure/monitoring/logging"
	"github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// IngestionHandler serves the C3 upload/ingest operations over HTTP.
type IngestionHandler struct {
	svc    *ingestion.Service
	logger logging.Logger
}

// NewIngestionHandler constructs an IngestionHandler over the given application service.
func NewIngestionHandler(svc *ingestion.Service, logger logging.Logger) *IngestionHandler {
	return &IngestionHandler{svc: svc, logger: logger}
}

// RegisterRoutes mounts upload routes under the given router group.
func (h *IngestionHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/uploads", h.BeginUpload)
	r.GET("/uploads/:id", h.Get)
	r.POST("/uploads/:id/ingest", h.Ingest)
	r.POST("/uploads/:id/cancel", h.Cancel)
}

type beginUploadRequest struct {
	OwnerID   string               `json:"owner_id" binding:"required"`
	Filename  string               `json:"filename" binding:"required"`
	SizeBytes int64                `json:"size_bytes"`
	Mapping   mtypes.ColumnMapping `json:"mapping" binding:"required"`
}

// BeginUpload handles POST /uploads: begin_upload.
func (h *IngestionHandler) BeginUpload(c *gin.Context) {
	var req beginUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.InvalidParam("owner_id, filename, and mapping are required"))
		return
	}

	upload, err := h.svc.BeginUpload(c.Request.Context(), ingestion.BeginUploadInput{
		OwnerID:   common.UserID(req.OwnerID),
		Filename:  req.Filename,
		SizeBytes: req.SizeBytes,
		Mapping:   req.Mapping,
	})
	if err != nil {
		h.logger.Error("begin upload failed", logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.JSON(201, upload.ToDTO())
}

// Get handles GET /uploads/:id.
func (h *IngestionHandler) Get(c *gin.Context) {
	id := common.ID(c.Param("id"))
	upload, err := h.svc.GetUpload(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get upload failed", logging.String("id", string(id)), logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.JSON(200, upload.ToDTO())
}

// Ingest handles POST /uploads/:id/ingest: the request body is the raw CSV
// file streamed directly into the pipeline, matching the CLI's one-shot
// ingest command which opens the file and posts it in a single call.
func (h *IngestionHandler) Ingest(c *gin.Context) {
	id := common.ID(c.Param("id"))

	result, err := h.svc.Ingest(c.Request.Context(), id, c.Request.Body)
	if err != nil {
		h.logger.Error("ingest failed", logging.String("id", string(id)), logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.JSON(200, gin.H{
		"upload":     result.Upload.ToDTO(),
		"row_errors": result.RowErrors,
	})
}

type cancelUploadRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Cancel handles POST /uploads/:id/cancel.
func (h *IngestionHandler) Cancel(c *gin.Context) {
	id := common.ID(c.Param("id"))

	var req cancelUploadRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.svc.Cancel(c.Request.Context(), id, req.Reason); err != nil {
		h.logger.Error("cancel upload failed", logging.String("id", string(id)), logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.Status(204)
}

package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/cro-platform/molcore/internal/application/molecule"
	"github.com/cro-platform/molcore/internal/infrastructure/monitoring/logging"
	"github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// MoleculeHandler serves the C2 molecule store and C5 query operations over HTTP.
type MoleculeHandler struct {
	svc    molecule.Service
	logger logging.Logger
}

// NewMoleculeHandler constructs a MoleculeHandler over the given application service.
func NewMoleculeHandler(svc molecule.Service, logger logging.Logger) *MoleculeHandler {
	return &MoleculeHandler{svc: svc, logger: logger}
}

// RegisterRoutes mounts molecule routes under the given router group.
func (h *MoleculeHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/molecules", h.Create)
	r.GET("/molecules", h.List)
	r.GET("/molecules/:id", h.Get)
	r.POST("/molecules/:id/observations", h.RecordObservations)
	r.GET("/molecules/:id/observations", h.ListObservations)
	r.POST("/molecules/:id/transition", h.TransitionState)
	r.POST("/molecules/:id/flags", h.SetFlag)
	r.DELETE("/molecules/:id/flags/:kind", h.ClearFlag)
	r.POST("/molecules/search/similarity", h.SearchSimilar)
	r.POST("/molecules/search/substructure", h.SearchSubstructure)
}

type upsertMoleculeRequest struct {
	Structure string `json:"structure" binding:"required"`
}

// Create handles POST /molecules: upsert_molecule.
func (h *MoleculeHandler) Create(c *gin.Context) {
	var req upsertMoleculeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.InvalidParam("structure is required"))
		return
	}

	mol, created, err := h.svc.Upsert(c.Request.Context(), req.Structure, userIDFromContext(c))
	if err != nil {
		h.logger.Error("upsert molecule failed", logging.Err(err))
		abortWithError(c, err)
		return
	}

	status := 200
	if created {
		status = 201
	}
	c.JSON(status, mol)
}

// Get handles GET /molecules/:id.
func (h *MoleculeHandler) Get(c *gin.Context) {
	id := common.ID(c.Param("id"))
	mol, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get molecule failed", logging.String("id", string(id)), logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.JSON(200, mol)
}

// List handles GET /molecules: conjunctive filter search (C5 snapshot_for_query).
func (h *MoleculeHandler) List(c *gin.Context) {
	page := parsePagination(c)

	req := mtypes.MoleculeSearchRequest{PageRequest: page}
	if name := c.Query("name"); name != "" {
		req.Name = &name
	}
	if state := c.Query("state"); state != "" {
		s := mtypes.MoleculeState(state)
		req.State = &s
	}

	result, err := h.svc.Search(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("list molecules failed", logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.JSON(200, result)
}

type recordObservationsRequest struct {
	Observations []mtypes.PropertyObservation `json:"observations" binding:"required"`
}

// RecordObservations handles POST /molecules/:id/observations.
func (h *MoleculeHandler) RecordObservations(c *gin.Context) {
	id := common.ID(c.Param("id"))

	var req recordObservationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.InvalidParam("at least one observation is required"))
		return
	}

	if err := h.svc.RecordObservations(c.Request.Context(), id, req.Observations); err != nil {
		h.logger.Error("record observations failed", logging.String("id", string(id)), logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.Status(204)
}

// ListObservations handles GET /molecules/:id/observations.
func (h *MoleculeHandler) ListObservations(c *gin.Context) {
	id := common.ID(c.Param("id"))
	obs, err := h.svc.Observations(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("list observations failed", logging.String("id", string(id)), logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.JSON(200, gin.H{"observations": obs})
}

type transitionStateRequest struct {
	From mtypes.MoleculeState `json:"from" binding:"required"`
	To   mtypes.MoleculeState `json:"to" binding:"required"`
}

// TransitionState handles POST /molecules/:id/transition.
func (h *MoleculeHandler) TransitionState(c *gin.Context) {
	id := common.ID(c.Param("id"))

	var req transitionStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.InvalidParam("from and to states are required"))
		return
	}

	if err := h.svc.TransitionState(c.Request.Context(), id, req.From, req.To); err != nil {
		h.logger.Error("transition state failed", logging.String("id", string(id)), logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.Status(204)
}

type setFlagRequest struct {
	Kind string `json:"kind" binding:"required"`
	Note string `json:"note,omitempty"`
}

// SetFlag handles POST /molecules/:id/flags.
func (h *MoleculeHandler) SetFlag(c *gin.Context) {
	id := common.ID(c.Param("id"))

	var req setFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.InvalidParam("flag kind is required"))
		return
	}

	if err := h.svc.SetFlag(c.Request.Context(), id, userIDFromContext(c), req.Kind, req.Note); err != nil {
		h.logger.Error("set flag failed", logging.String("id", string(id)), logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.Status(204)
}

// ClearFlag handles DELETE /molecules/:id/flags/:kind.
func (h *MoleculeHandler) ClearFlag(c *gin.Context) {
	id := common.ID(c.Param("id"))
	kind := c.Param("kind")

	if err := h.svc.ClearFlag(c.Request.Context(), id, userIDFromContext(c), kind); err != nil {
		h.logger.Error("clear flag failed", logging.String("id", string(id)), logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.Status(204)
}

type similaritySearchRequest struct {
	Structure       string                  `json:"structure" binding:"required"`
	Threshold       float64                 `json:"threshold,omitempty"`
	FingerprintType mtypes.FingerprintType  `json:"fingerprint_type,omitempty"`
	MaxResults      int                     `json:"max_results,omitempty"`
}

// SearchSimilar handles POST /molecules/search/similarity.
func (h *MoleculeHandler) SearchSimilar(c *gin.Context) {
	var req similaritySearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.InvalidParam("structure is required"))
		return
	}
	if req.Threshold <= 0 || req.Threshold > 1.0 {
		req.Threshold = 0.7
	}
	if req.MaxResults <= 0 || req.MaxResults > 1000 {
		req.MaxResults = 100
	}

	results, err := h.svc.FindSimilar(c.Request.Context(), req.Structure, req.Threshold, req.FingerprintType, req.MaxResults)
	if err != nil {
		h.logger.Error("similarity search failed", logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.JSON(200, gin.H{"results": results, "total": len(results)})
}

type substructureSearchRequest struct {
	Structure  string `json:"structure" binding:"required"`
	MaxResults int    `json:"max_results,omitempty"`
}

// SearchSubstructure handles POST /molecules/search/substructure.
func (h *MoleculeHandler) SearchSubstructure(c *gin.Context) {
	var req substructureSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.InvalidParam("structure is required"))
		return
	}

	result, err := h.svc.SubstructureSearch(c.Request.Context(), mtypes.SubstructureSearchRequest{
		Structure:  req.Structure,
		MaxResults: req.MaxResults,
	})
	if err != nil {
		h.logger.Error("substructure search failed", logging.Err(err))
		abortWithError(c, err)
		return
	}
	c.JSON(200, result)
}

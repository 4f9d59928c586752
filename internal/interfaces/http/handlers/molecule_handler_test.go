package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cro-platform/molcore/internal/infrastructure/monitoring/logging"
	"github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

type mockMoleculeService struct {
	mock.Mock
}

func (m *mockMoleculeService) Upsert(ctx context.Context, structure string, userID common.UserID) (*mtypes.MoleculeDTO, bool, error) {
	args := m.Called(ctx, structure, userID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*mtypes.MoleculeDTO), args.Bool(1), args.Error(2)
}

func (m *mockMoleculeService) Get(ctx context.Context, id common.ID) (*mtypes.MoleculeDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mtypes.MoleculeDTO), args.Error(1)
}

func (m *mockMoleculeService) Search(ctx context.Context, req mtypes.MoleculeSearchRequest) (*mtypes.MoleculeSearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mtypes.MoleculeSearchResponse), args.Error(1)
}

func (m *mockMoleculeService) FindSimilar(ctx context.Context, structure string, threshold float64, fpType mtypes.FingerprintType, maxResults int) ([]mtypes.MoleculeDTO, error) {
	args := m.Called(ctx, structure, threshold, fpType, maxResults)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mtypes.MoleculeDTO), args.Error(1)
}

func (m *mockMoleculeService) SubstructureSearch(ctx context.Context, req mtypes.SubstructureSearchRequest) (*mtypes.SubstructureSearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mtypes.SubstructureSearchResponse), args.Error(1)
}

func (m *mockMoleculeService) RecordObservations(ctx context.Context, moleculeID common.ID, obs []mtypes.PropertyObservation) error {
	return m.Called(ctx, moleculeID, obs).Error(0)
}

func (m *mockMoleculeService) Observations(ctx context.Context, moleculeID common.ID) ([]mtypes.PropertyObservation, error) {
	args := m.Called(ctx, moleculeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mtypes.PropertyObservation), args.Error(1)
}

func (m *mockMoleculeService) TransitionState(ctx context.Context, id common.ID, from, to mtypes.MoleculeState) error {
	return m.Called(ctx, id, from, to).Error(0)
}

func (m *mockMoleculeService) SetFlag(ctx context.Context, moleculeID common.ID, userID common.UserID, kind, note string) error {
	return m.Called(ctx, moleculeID, userID, kind, note).Error(0)
}

func (m *mockMoleculeService) ClearFlag(ctx context.Context, moleculeID common.ID, userID common.UserID, kind string) error {
	return m.Called(ctx, moleculeID, userID, kind).Error(0)
}

func newTestMoleculeHandler() (*MoleculeHandler, *mockMoleculeService) {
	svc := new(mockMoleculeService)
	return NewMoleculeHandler(svc, logging.NewNopLogger()), svc
}

func TestMoleculeHandler_Create_Success(t *testing.T) {
	h, svc := newTestMoleculeHandler()

	expected := &mtypes.MoleculeDTO{BaseEntity: common.BaseEntity{ID: "mol-1"}, Structure: "CCO"}
	svc.On("Upsert", mock.Anything, "CCO", mock.Anything).Return(expected, true, nil)

	body, _ := json.Marshal(map[string]string{"structure": "CCO"})
	rec := performRequest(h.Create, http.MethodPost, "/api/v1/molecules", body, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var dto mtypes.MoleculeDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, "CCO", dto.Structure)
}

func TestMoleculeHandler_Create_Deduplicated(t *testing.T) {
	h, svc := newTestMoleculeHandler()

	expected := &mtypes.MoleculeDTO{BaseEntity: common.BaseEntity{ID: "mol-1"}, Structure: "CCO"}
	svc.On("Upsert", mock.Anything, "CCO", mock.Anything).Return(expected, false, nil)

	body, _ := json.Marshal(map[string]string{"structure": "CCO"})
	rec := performRequest(h.Create, http.MethodPost, "/api/v1/molecules", body, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMoleculeHandler_Create_InvalidBody(t *testing.T) {
	h, _ := newTestMoleculeHandler()

	rec := performRequest(h.Create, http.MethodPost, "/api/v1/molecules", []byte(`{}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMoleculeHandler_Get_Success(t *testing.T) {
	h, svc := newTestMoleculeHandler()

	expected := &mtypes.MoleculeDTO{BaseEntity: common.BaseEntity{ID: "mol-1"}, Structure: "CCO"}
	svc.On("Get", mock.Anything, common.ID("mol-1")).Return(expected, nil)

	rec := performRequest(h.Get, http.MethodGet, "/api/v1/molecules/mol-1", nil, gin.Params{{Key: "id", Value: "mol-1"}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMoleculeHandler_Get_NotFound(t *testing.T) {
	h, svc := newTestMoleculeHandler()
	svc.On("Get", mock.Anything, common.ID("missing")).Return(nil, errors.New(errors.CodeMoleculeNotFound, "molecule not found"))

	rec := performRequest(h.Get, http.MethodGet, "/api/v1/molecules/missing", nil, gin.Params{{Key: "id", Value: "missing"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMoleculeHandler_List_Success(t *testing.T) {
	h, svc := newTestMoleculeHandler()
	svc.On("Search", mock.Anything, mock.AnythingOfType("molecule.MoleculeSearchRequest")).
		Return(&mtypes.MoleculeSearchResponse{Total: 0}, nil)

	rec := performRequest(h.List, http.MethodGet, "/api/v1/molecules", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMoleculeHandler_SetFlag_Success(t *testing.T) {
	h, svc := newTestMoleculeHandler()
	svc.On("SetFlag", mock.Anything, common.ID("mol-1"), mock.Anything, "toxic", "flagged by reviewer").Return(nil)

	body, _ := json.Marshal(map[string]string{"kind": "toxic", "note": "flagged by reviewer"})
	rec := performRequest(h.SetFlag, http.MethodPost, "/api/v1/molecules/mol-1/flags", body, gin.Params{{Key: "id", Value: "mol-1"}})

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMoleculeHandler_ClearFlag_Success(t *testing.T) {
	h, svc := newTestMoleculeHandler()
	svc.On("ClearFlag", mock.Anything, common.ID("mol-1"), mock.Anything, "toxic").Return(nil)

	rec := performRequest(h.ClearFlag, http.MethodDelete, "/api/v1/molecules/mol-1/flags/toxic", nil,
		gin.Params{{Key: "id", Value: "mol-1"}, {Key: "kind", Value: "toxic"}})

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

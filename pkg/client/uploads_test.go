package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUploadsClient(t *testing.T, handler http.HandlerFunc) *UploadsClient {
	c := newTestClient(t, handler)
	return c.Uploads()
}

func TestUploads_BeginUpload(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/uploads", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req BeginUploadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "structure", req.Mapping.StructureColumn)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Upload{ID: "up-1", Status: "pending"})
	}
	uc := newTestUploadsClient(t, handler)

	upload, err := uc.BeginUpload(context.Background(), BeginUploadRequest{
		OwnerID:  "owner-1",
		Filename: "batch.csv",
		Mapping:  ColumnMapping{StructureColumn: "structure"},
	})
	require.NoError(t, err)
	assert.Equal(t, "up-1", upload.ID)
	assert.Equal(t, "pending", upload.Status)
}

func TestUploads_BeginUpload_Validation(t *testing.T) {
	uc := newTestUploadsClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := uc.BeginUpload(context.Background(), BeginUploadRequest{})
	assert.Error(t, err)
}

func TestUploads_Get(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/uploads/up-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Upload{ID: "up-1", Status: "ingesting", CheckpointOffset: 100})
	}
	uc := newTestUploadsClient(t, handler)

	upload, err := uc.Get(context.Background(), "up-1")
	require.NoError(t, err)
	assert.Equal(t, "ingesting", upload.Status)
	assert.Equal(t, int64(100), upload.CheckpointOffset)
}

func TestUploads_Get_Validation(t *testing.T) {
	uc := newTestUploadsClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := uc.Get(context.Background(), "")
	assert.Error(t, err)
}

func TestUploads_Ingest(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/uploads/up-1/ingest", r.URL.Path)
		assert.Equal(t, "text/csv", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "structure,name\nCCO,ethanol\n", string(body))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(IngestResult{
			Upload: Upload{ID: "up-1", Status: "completed"},
			RowErrors: []RowError{
				{RowNumber: 3, Column: "structure", RawValue: "??", Reason: "unparseable structure"},
			},
		})
	}
	uc := newTestUploadsClient(t, handler)

	result, err := uc.Ingest(context.Background(), "up-1", strings.NewReader("structure,name\nCCO,ethanol\n"))
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Upload.Status)
	require.Len(t, result.RowErrors, 1)
	assert.Equal(t, 3, result.RowErrors[0].RowNumber)
}

func TestUploads_Ingest_Validation(t *testing.T) {
	uc := newTestUploadsClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := uc.Ingest(context.Background(), "", strings.NewReader(""))
	assert.Error(t, err)
}

func TestUploads_Cancel(t *testing.T) {
	called := false
	handler := func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/api/v1/uploads/up-1/cancel", r.URL.Path)

		var body struct {
			Reason string `json:"reason,omitempty"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "duplicate batch", body.Reason)

		w.WriteHeader(http.StatusNoContent)
	}
	uc := newTestUploadsClient(t, handler)

	err := uc.Cancel(context.Background(), "up-1", "duplicate batch")
	require.NoError(t, err)
	assert.True(t, called)
}

func TestUploads_Cancel_Validation(t *testing.T) {
	uc := newTestUploadsClient(t, func(w http.ResponseWriter, r *http.Request) {})
	err := uc.Cancel(context.Background(), "", "reason")
	assert.Error(t, err)
}

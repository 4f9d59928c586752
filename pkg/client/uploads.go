package client

import (
	"context"
	"io"
)

// ColumnMapping declares how input CSV columns map onto the structure
// column, an optional name column, and zero or more property columns,
// mirroring pkg/types/molecule.ColumnMapping.
type ColumnMapping struct {
	StructureColumn string            `json:"structure_column"`
	NameColumn      string            `json:"name_column,omitempty"`
	PropertyColumns map[string]string `json:"property_columns,omitempty"`
}

// BeginUploadRequest is the request body for UploadsClient.BeginUpload.
type BeginUploadRequest struct {
	OwnerID   string        `json:"owner_id"`
	Filename  string        `json:"filename"`
	SizeBytes int64         `json:"size_bytes"`
	Mapping   ColumnMapping `json:"mapping"`
}

// Upload mirrors internal/application/ingestion.Upload's HTTP projection.
type Upload struct {
	ID               string        `json:"id"`
	OwnerID          string        `json:"owner_id"`
	Filename         string        `json:"filename"`
	SizeBytes        int64         `json:"size_bytes"`
	Status           string        `json:"status"`
	Mapping          ColumnMapping `json:"mapping"`
	CheckpointOffset int64         `json:"checkpoint_offset"`
	Report           *UploadReport `json:"report,omitempty"`
}

// UploadReport summarizes a finalized or cancelled upload.
type UploadReport struct {
	RowsTotal      int      `json:"rows_total"`
	RowsAccepted   int      `json:"rows_accepted"`
	RowsRejected   int      `json:"rows_rejected"`
	RowsDuplicate  int      `json:"rows_duplicate"`
	RejectionNotes []string `json:"rejection_notes,omitempty"`
}

// RowError is a single rejected ingestion row.
type RowError struct {
	RowNumber int    `json:"RowNumber"`
	Column    string `json:"Column"`
	RawValue  string `json:"RawValue"`
	Reason    string `json:"Reason"`
}

// IngestResult is the response body of UploadsClient.Ingest.
type IngestResult struct {
	Upload    Upload     `json:"upload"`
	RowErrors []RowError `json:"row_errors,omitempty"`
}

// ---------------------------------------------------------------------------
// UploadsClient
// ---------------------------------------------------------------------------

// UploadsClient drives the C3 ingestion pipeline: register an upload, then
// stream its file content into it.
type UploadsClient struct {
	client *Client
}

// BeginUpload registers a new upload and returns its assigned id.
func (uc *UploadsClient) BeginUpload(ctx context.Context, req BeginUploadRequest) (*Upload, error) {
	if req.Mapping.StructureColumn == "" {
		return nil, invalidArg("mapping must declare a structure column")
	}
	var upload Upload
	if err := uc.client.post(ctx, "/api/v1/uploads", req, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// Get fetches a single upload by id.
func (uc *UploadsClient) Get(ctx context.Context, uploadID string) (*Upload, error) {
	if uploadID == "" {
		return nil, invalidArg("upload id is required")
	}
	var upload Upload
	if err := uc.client.get(ctx, "/api/v1/uploads/"+uploadID, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// Ingest streams r (the CSV file content) into the given upload.
func (uc *UploadsClient) Ingest(ctx context.Context, uploadID string, r io.Reader) (*IngestResult, error) {
	if uploadID == "" {
		return nil, invalidArg("upload id is required")
	}
	var result IngestResult
	if err := uc.client.postStream(ctx, "/api/v1/uploads/"+uploadID+"/ingest", r, "text/csv", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Cancel cancels an in-flight upload.
func (uc *UploadsClient) Cancel(ctx context.Context, uploadID, reason string) error {
	if uploadID == "" {
		return invalidArg("upload id is required")
	}
	body := struct {
		Reason string `json:"reason,omitempty"`
	}{Reason: reason}
	return uc.client.post(ctx, "/api/v1/uploads/"+uploadID+"/cancel", body, nil)
}

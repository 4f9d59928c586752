package client

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// DTOs — mirrors internal/application/prediction.Job's HTTP projection
// ---------------------------------------------------------------------------

// Job is a single prediction job as returned by the molcore server.
type Job struct {
	ID                  string    `json:"id"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	MoleculeIDs         []string  `json:"molecule_ids"`
	RequestedProperties []string  `json:"requested_properties"`
	State               string    `json:"state"`
	AttemptCount        int       `json:"attempt_count"`
	NextAttemptAt       *string   `json:"next_attempt_at,omitempty"`
	ExternalRef         string    `json:"external_ref,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
}

// RequestPredictionRequest is the request body for PredictionsClient.Request.
type RequestPredictionRequest struct {
	MoleculeIDs []string `json:"molecule_ids"`
	Properties  []string `json:"properties,omitempty"`
}

// ---------------------------------------------------------------------------
// PredictionsClient
// ---------------------------------------------------------------------------

// PredictionsClient is the prediction-job sub-client: request a batch,
// inspect its progress, and cancel it before it reaches a terminal state.
type PredictionsClient struct {
	client *Client
}

// Request submits a new prediction job for the given molecules/properties.
func (pc *PredictionsClient) Request(ctx context.Context, req RequestPredictionRequest) (*Job, error) {
	if len(req.MoleculeIDs) == 0 {
		return nil, invalidArg("at least one molecule id is required")
	}
	var job Job
	if err := pc.client.post(ctx, "/api/v1/jobs", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Get fetches a single job by id — the jobs --show id path.
func (pc *PredictionsClient) Get(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, invalidArg("job id is required")
	}
	var job Job
	if err := pc.client.get(ctx, "/api/v1/jobs/"+jobID, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Cancel flags a job for cancellation.
func (pc *PredictionsClient) Cancel(ctx context.Context, jobID, reason string) error {
	if jobID == "" {
		return invalidArg("job id is required")
	}
	body := struct {
		Reason string `json:"reason,omitempty"`
	}{Reason: reason}
	return pc.client.post(ctx, "/api/v1/jobs/"+jobID+"/cancel", body, nil)
}

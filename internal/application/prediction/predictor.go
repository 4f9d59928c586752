package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
)

// PredictorClient is the outbound capability the coordinator dispatches
// batches through. Submit starts an asynchronous prediction run and returns
// an opaque external reference; Poll checks that reference for completion.
// Errors are *errors.AppError tagged CodePredictorTransient or
// CodePredictorPermanent so the coordinator can classify without inspecting
// HTTP status codes itself.
type PredictorClient interface {
	Submit(ctx context.Context, moleculeIDs []common.ID, properties []string) (externalRef string, err error)
	Poll(ctx context.Context, externalRef string) (PollOutcome, error)
}

// HTTPPredictorClient is the production PredictorClient: a small REST client
// over the platform's predictor service, scoped to the two calls the
// coordinator needs. Each call is a single HTTP round trip with no retry of
// its own (retries are scheduled by the coordinator), and failures are
// classified into the platform's error taxonomy instead of returned as raw
// HTTP errors.
type HTTPPredictorClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPPredictorClient builds a predictor client against baseURL with the
// given per-request timeout.
func NewHTTPPredictorClient(baseURL string, timeout time.Duration) *HTTPPredictorClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPPredictorClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	MoleculeIDs []string `json:"molecule_ids"`
	Properties  []string `json:"properties"`
}

type submitResponse struct {
	JobRef string `json:"job_ref"`
}

// Submit posts a batch to /predictions and returns the predictor's job
// reference for polling.
func (c *HTTPPredictorClient) Submit(ctx context.Context, moleculeIDs []common.ID, properties []string) (string, error) {
	ids := make([]string, len(moleculeIDs))
	for i, id := range moleculeIDs {
		ids[i] = string(id)
	}
	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/predictions", submitRequest{MoleculeIDs: ids, Properties: properties}, &resp); err != nil {
		return "", err
	}
	if resp.JobRef == "" {
		return "", errors.New(errors.CodePredictorPermanent, "predictor returned an empty job reference")
	}
	return resp.JobRef, nil
}

type pollResponse struct {
	Status  string `json:"status"` // "running" | "succeeded"
	Results []struct {
		MoleculeID string  `json:"molecule_id"`
		Property   string  `json:"property"`
		Value      float64 `json:"value"`
		Units      string  `json:"units"`
		Confidence float64 `json:"confidence"`
	} `json:"results"`
}

// Poll checks /predictions/{ref} for completion.
func (c *HTTPPredictorClient) Poll(ctx context.Context, externalRef string) (PollOutcome, error) {
	var resp pollResponse
	if err := c.do(ctx, http.MethodGet, "/predictions/"+externalRef, nil, &resp); err != nil {
		return PollOutcome{}, err
	}
	if resp.Status != "succeeded" {
		return PollOutcome{Done: false}, nil
	}
	results := make([]PredictionResult, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = PredictionResult{
			MoleculeID: common.ID(r.MoleculeID),
			Property:   r.Property,
			Value:      r.Value,
			Units:      r.Units,
			Confidence: r.Confidence,
		}
	}
	return PollOutcome{Done: true, Results: results}, nil
}

// do performs a single HTTP round trip and classifies any failure into the
// platform's error taxonomy: a transport-level error or a 5xx is transient
// (worth retrying), a 4xx is permanent (retrying will not help).
func (c *HTTPPredictorClient) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.CodePredictorPermanent, "failed to marshal predictor request")
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return errors.Wrap(err, errors.CodePredictorPermanent, "failed to build predictor request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodePredictorTransient, "predictor request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, errors.CodePredictorTransient, "failed to read predictor response")
	}

	if resp.StatusCode >= 500 {
		return errors.New(errors.CodePredictorTransient, fmt.Sprintf("predictor returned %d", resp.StatusCode)).
			WithDetail(string(respBody))
	}
	if resp.StatusCode >= 400 {
		return errors.New(errors.CodePredictorPermanent, fmt.Sprintf("predictor rejected request with %d", resp.StatusCode)).
			WithDetail(string(respBody))
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return errors.Wrap(err, errors.CodePredictorTransient, "failed to decode predictor response")
		}
	}
	return nil
}

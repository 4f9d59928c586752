// Package prediction implements the C4 prediction coordinator: batching
// newly-validated molecules into predictor requests, dispatching and polling
// an external predictor service, retrying transient failures with backoff,
// and dead-lettering a job once its retry budget is exhausted.
package prediction

import (
	"time"

	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// Job is the C4 persistence-layer representation of a batched prediction
// request, mirroring the prediction_jobs table rather than the single
// cross-layer mtypes.PredictionJobDTO.
type Job struct {
	common.BaseEntity

	IdempotencyKey        string
	MoleculeIDs           []common.ID
	RequestedProperties   []string
	State                 mtypes.PredictionJobState
	ExternalRef           string
	AttemptCount          int
	LastError             string
	CancellationRequested bool

	DispatchedAt  *time.Time
	NextAttemptAt *time.Time
	CompletedAt   *time.Time
}

// ToDTO projects a Job onto the cross-layer mtypes.PredictionJobDTO.
func (j *Job) ToDTO() mtypes.PredictionJobDTO {
	var nextAttempt *common.Time
	if j.NextAttemptAt != nil {
		t := *j.NextAttemptAt
		nextAttempt = &t
	}
	return mtypes.PredictionJobDTO{
		BaseEntity:          j.BaseEntity,
		MoleculeIDs:         j.MoleculeIDs,
		RequestedProperties: j.RequestedProperties,
		State:               j.State,
		AttemptCount:        j.AttemptCount,
		NextAttemptAt:       nextAttempt,
		ExternalRef:         j.ExternalRef,
		LastError:           j.LastError,
	}
}

// isTerminal reports whether the job has left the dispatch/poll/retry cycle.
func (j *Job) isTerminal() bool {
	switch j.State {
	case mtypes.JobStateSucceeded, mtypes.JobStateFailed, mtypes.JobStateCancelled:
		return true
	default:
		return false
	}
}

// RequestInput is the C4 request_prediction() input: the molecules and
// properties a caller wants predicted.
type RequestInput struct {
	MoleculeIDs []common.ID
	Properties  []string
}

// PredictionResult is one molecule/property value a predictor returned for a
// dispatched job.
type PredictionResult struct {
	MoleculeID common.ID
	Property   string
	Value      float64
	Units      string
	Confidence float64
}

// PollOutcome is what PredictorClient.Poll reports for one external job.
type PollOutcome struct {
	// Done is false while the predictor is still working the batch; the
	// poller reschedules rather than treating this as success or failure.
	Done    bool
	Results []PredictionResult
}

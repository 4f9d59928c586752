package cli

import (
	"errors"

	"github.com/cro-platform/molcore/pkg/client"
)

// Exit codes for the operational CLI, shared by ingest, jobs, and
// replay-events: 0 success, 2 input validation failed, 3 transient store
// error, 4 predictor unavailable, 5 cancelled. Any other failure (network
// unreachable, unexpected server response) falls back to 1.
const (
	ExitSuccess              = 0
	ExitGeneralFailure       = 1
	ExitValidationFailed     = 2
	ExitTransientStore       = 3
	ExitPredictorUnavailable = 4
	ExitCancelled            = 5
)

var validationCodes = map[string]bool{
	"INVALID_PARAM":            true,
	"UPLOAD_MALFORMED":         true,
	"ROW_VALIDATION_FAILED":    true,
	"ILLEGAL_STATE_TRANSITION": true,
}

var transientStoreCodes = map[string]bool{
	"DB_CONNECTION_ERROR": true,
	"DATABASE_ERROR":      true,
	"DB_QUERY_ERROR":      true,
	"CACHE_ERROR":         true,
	"SEARCH_ERROR":        true,
	"MESSAGE_QUEUE_ERROR": true,
}

var predictorUnavailableCodes = map[string]bool{
	"PREDICTOR_TRANSIENT": true,
	"PREDICTOR_PERMANENT": true,
	"CIRCUIT_OPEN":        true,
}

var cancelledCodes = map[string]bool{
	"CANCELLED":         true,
	"UPLOAD_CANCELLED":  true,
}

// exitCodeFor maps an error returned by the API client to the operational
// CLI's documented exit code. A plain network/transport error (no APIError
// in the chain) is treated as a general failure rather than guessed at.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return ExitGeneralFailure
	}

	switch {
	case validationCodes[apiErr.Code]:
		return ExitValidationFailed
	case transientStoreCodes[apiErr.Code]:
		return ExitTransientStore
	case predictorUnavailableCodes[apiErr.Code]:
		return ExitPredictorUnavailable
	case cancelledCodes[apiErr.Code]:
		return ExitCancelled
	default:
		return ExitGeneralFailure
	}
}

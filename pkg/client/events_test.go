package client

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEventsClient(t *testing.T, handler http.HandlerFunc) *EventsClient {
	c := newTestClient(t, handler)
	return c.Events()
}

func TestEvents_Replay(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/events/replay", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("since"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ReplayResult{
			LastSeq:     50,
			Republished: 8,
			Entries: []AuditEntry{
				{Seq: 43, Actor: "system", Operation: "transition", OccurredAt: time.Now()},
			},
		})
	}
	ec := newTestEventsClient(t, handler)

	result, err := ec.Replay(context.Background(), 42, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(50), result.LastSeq)
	assert.Equal(t, 8, result.Republished)
	assert.Len(t, result.Entries, 1)
}

func TestEvents_Replay_NoLimit(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ReplayResult{LastSeq: 0})
	}
	ec := newTestEventsClient(t, handler)

	_, err := ec.Replay(context.Background(), 0, 0)
	require.NoError(t, err)
}

func TestEvents_Replay_Validation(t *testing.T) {
	ec := newTestEventsClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := ec.Replay(context.Background(), -1, 10)
	assert.Error(t, err)
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AuditEntry is a single audit_log row as returned by the replay endpoint.
type AuditEntry struct {
	Seq        int64           `json:"Seq"`
	Actor      string          `json:"Actor"`
	Operation  string          `json:"Operation"`
	EntityType string          `json:"EntityType"`
	EntityID   string          `json:"EntityID"`
	AfterState json.RawMessage `json:"AfterState,omitempty"`
	OccurredAt time.Time       `json:"OccurredAt"`
}

// ReplayResult is the response body of EventsClient.Replay.
type ReplayResult struct {
	LastSeq     int64        `json:"last_seq"`
	Republished int          `json:"republished"`
	Entries     []AuditEntry `json:"entries"`
}

// ---------------------------------------------------------------------------
// EventsClient
// ---------------------------------------------------------------------------

// EventsClient drives the audit log replay path: re-emitting outbound events
// the caller believes it may have missed.
type EventsClient struct {
	client *Client
}

// Replay re-emits every audit_log entry with seq > since, up to limit
// entries (0 uses the server's default page size).
func (ec *EventsClient) Replay(ctx context.Context, since int64, limit int) (*ReplayResult, error) {
	if since < 0 {
		return nil, invalidArg("since must be >= 0")
	}
	path := fmt.Sprintf("/api/v1/events/replay?since=%d", since)
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}
	var result ReplayResult
	if err := ec.client.post(ctx, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

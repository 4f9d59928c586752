package events

import "context"

// Repository reads the audit_log table.
type Repository interface {
	// ListSince returns up to limit entries with seq strictly greater than
	// since, ordered by seq ascending.
	ListSince(ctx context.Context, since int64, limit int) ([]Entry, error)
}

package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cro-platform/molcore/internal/application/events"
	appErrors "github.com/cro-platform/molcore/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// AuditRepository
// ─────────────────────────────────────────────────────────────────────────────

// AuditRepository is the PostgreSQL implementation of events.Repository,
// reading the append-only audit_log table every mutating repository call
// writes to via writeAudit.
type AuditRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

var _ events.Repository = (*AuditRepository)(nil)

// NewAuditRepository constructs a ready-to-use AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool, logger Logger) *AuditRepository {
	return &AuditRepository{pool: pool, logger: logger}
}

// ListSince returns up to limit audit_log rows with seq > since, ordered by
// seq ascending so a resumed replay picks up exactly where the last one left off.
func (r *AuditRepository) ListSince(ctx context.Context, since int64, limit int) ([]events.Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT seq, actor, operation, entity_type, entity_id, before_state, after_state, occurred_at
		FROM audit_log
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to query audit log")
	}
	defer rows.Close()

	var entries []events.Entry
	for rows.Next() {
		var e events.Entry
		if err := rows.Scan(&e.Seq, &e.Actor, &e.Operation, &e.EntityType, &e.EntityID, &e.BeforeState, &e.AfterState, &e.OccurredAt); err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "failed to scan audit log row")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeDatabaseError, "audit log row iteration failed")
	}
	return entries, nil
}

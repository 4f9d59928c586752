package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting repository
// methods run against a bare connection or inside an in-flight transaction
// without duplicating their SQL.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgx.CommandTag, error)
}

var (
	_ querier = (*pgxpool.Pool)(nil)
	_ querier = (pgx.Tx)(nil)
)

// writeAudit appends one entry to the audit_log table within the given
// querier (pool or transaction) and returns the assigned sequence number.
func writeAudit(ctx context.Context, q querier, actor, operation, entityType, entityID string, before, after []byte) (int64, error) {
	var seq int64
	err := q.QueryRow(ctx, `
		INSERT INTO audit_log (actor, operation, entity_type, entity_id, before_state, after_state)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq`,
		actor, operation, entityType, entityID, before, after,
	).Scan(&seq)
	return seq, err
}

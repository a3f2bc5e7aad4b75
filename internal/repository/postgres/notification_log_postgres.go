package postgres

import (
	"context"
	"database/sql"
	"time"

	"fleetdocs/internal/repository"
)

// NotificationLogPostgres is a PostgreSQL implementation of
// repository.NotificationLogRepository. The UNIQUE(document_id,
// threshold_days) constraint is the sole correctness mechanism under
// concurrent writers; no application-level locking is needed.
type NotificationLogPostgres struct {
	db *sql.DB
}

// NewNotificationLogPostgres creates a new NotificationLogPostgres repository.
func NewNotificationLogPostgres(db *sql.DB) *NotificationLogPostgres {
	return &NotificationLogPostgres{db: db}
}

var _ repository.NotificationLogRepository = (*NotificationLogPostgres)(nil)

// Record appends a ledger row. ON CONFLICT DO NOTHING makes the insert
// idempotent: a duplicate pair is silently resolved to the existing row.
func (r *NotificationLogPostgres) Record(ctx context.Context, documentID string, threshold int, sentAt time.Time) error {
	const q = `
		INSERT INTO notifications_log (document_id, threshold_days, sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id, threshold_days) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, q, documentID, threshold, sentAt)
	return err
}

// IsNotified reports whether a ledger row exists for (documentID, threshold).
func (r *NotificationLogPostgres) IsNotified(ctx context.Context, documentID string, threshold int) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM notifications_log
			WHERE document_id = $1 AND threshold_days = $2
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, q, documentID, threshold).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

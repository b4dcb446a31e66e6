package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/rovelin/postpilot/internal/models"
)

type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) (int64, error)
	ListByTarget(ctx context.Context, targetType string, targetID int64) ([]*models.AuditLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditLog) (int64, error) {
	query := `
		INSERT INTO audit_logs (action, target_type, target_id, actor_id, success, detail, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		entry.Action, entry.TargetType, entry.TargetID, entry.ActorID,
		entry.Success, entry.Detail, entry.ErrorMessage,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *auditRepository) ListByTarget(ctx context.Context, targetType string, targetID int64) ([]*models.AuditLog, error) {
	query := `SELECT id, action, target_type, target_id, actor_id, success, detail, error_message, created_at
		FROM audit_logs WHERE target_type = $1 AND target_id = $2 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, targetType, targetID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		var entry models.AuditLog
		err := rows.Scan(&entry.ID, &entry.Action, &entry.TargetType, &entry.TargetID,
			&entry.ActorID, &entry.Success, &entry.Detail, &entry.ErrorMessage, &entry.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return entries, nil
}

func (r *auditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM audit_logs WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return affected, nil
}

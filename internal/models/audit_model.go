package models

import (
	"database/sql"
	"time"
)

// AuditLog is an append-only record of a state transition or an
// external-call outcome. Rows are never updated.
type AuditLog struct {
	ID           int64         `db:"id" json:"id"`
	Action       string        `db:"action" json:"action"`
	TargetType   string        `db:"target_type" json:"target_type"`
	TargetID     int64         `db:"target_id" json:"target_id"`
	ActorID      sql.NullInt64 `db:"actor_id" json:"actor_id"`
	Success      bool          `db:"success" json:"success"`
	Detail       []byte        `db:"detail" json:"detail"`
	ErrorMessage string        `db:"error_message" json:"error_message"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

const (
	AuditActionPublish        = "post.publish"
	AuditActionCancel         = "post.cancel"
	AuditActionDelete         = "post.delete"
	AuditActionBulkDelete     = "post.bulk_delete"
	AuditActionTokenExpiring  = "token.expiring"
	AuditActionTokenExpired   = "token.expired"
	AuditActionTokenValidate  = "token.validate"
	AuditActionTokenRecovered = "token.recovered"
)

const (
	AuditTargetPost    = "post"
	AuditTargetAccount = "account"
)

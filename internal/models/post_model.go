package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type ScheduledPost struct {
	ID             int64          `db:"id" json:"id"`
	UserID         int64          `db:"user_id" json:"user_id"`
	AccountID      int64          `db:"account_id" json:"account_id"`
	Caption        string         `db:"caption" json:"caption"`
	Title          string         `db:"title" json:"title"`
	MediaURLs      pq.StringArray `db:"media_urls" json:"media_urls"`
	ScheduleMode   string         `db:"schedule_mode" json:"schedule_mode"`
	ScheduledTime  time.Time      `db:"scheduled_time" json:"scheduled_time"`
	Status         string         `db:"status" json:"status"`
	Attempts       int            `db:"attempts" json:"attempts"`
	LastError      string         `db:"last_error" json:"last_error"`
	LastErrorInfo  []byte         `db:"last_error_info" json:"-"`
	ExternalID     string         `db:"external_id" json:"external_id"`
	Permalink      string         `db:"permalink" json:"permalink"`
	PublishedAt    sql.NullTime   `db:"published_at" json:"published_at"`
	IdempotencyKey string         `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusPending    = "pending"
	PostStatusScheduled  = "scheduled"
	PostStatusProcessing = "processing"
	PostStatusCompleted  = "completed"
	PostStatusFailed     = "failed"
	PostStatusCancelled  = "cancelled"
)

const (
	ScheduleModeImmediate = "immediate"
	ScheduleModeScheduled = "scheduled"
)

// MaxPublishAttempts bounds how many times a post may be handed to the
// publish worker. A failed post at this count is terminal.
const MaxPublishAttempts = 3

// Terminal reports whether no further automatic transition applies.
func (p *ScheduledPost) Terminal() bool {
	if p.Status == PostStatusCompleted || p.Status == PostStatusCancelled {
		return true
	}
	return p.Status == PostStatusFailed && p.Attempts >= MaxPublishAttempts
}

// ErrorDetail is the structured blob persisted alongside last_error.
type ErrorDetail struct {
	Attempt int       `json:"attempt"`
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// PublishedPost is the cached record of a post that made it to the
// platform. The deletion worker reads it to resolve external ids.
type PublishedPost struct {
	PostID      int64     `db:"post_id" json:"post_id"`
	AccountID   int64     `db:"account_id" json:"account_id"`
	ExternalID  string    `db:"external_id" json:"external_id"`
	Permalink   string    `db:"permalink" json:"permalink"`
	PublishedAt time.Time `db:"published_at" json:"published_at"`
}

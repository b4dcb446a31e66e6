package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type Account struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	ExternalUserID  string    `db:"external_user_id" json:"external_user_id"`
	AccountName     string    `db:"account_name" json:"account_name"`
	AccountUsername string    `db:"account_username" json:"account_username"`
	ProfilePicture  string    `db:"profile_picture_url" json:"profile_picture"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`

	// Credential is populated on joined reads. Sensitive fields hold
	// plaintext in memory only; at rest they are sealed envelopes.
	Credential *Credential `db:"-" json:"-"`
}

const (
	AccountStatusActive    = "active"
	AccountStatusInactive  = "inactive"
	AccountStatusWarning   = "warning"
	AccountStatusError     = "error"
	AccountStatusSuspended = "suspended"
)

type Credential struct {
	ID             int64          `db:"id" json:"id"`
	AccountID      int64          `db:"account_id" json:"account_id"`
	ClientID       string         `db:"client_id" json:"-"`
	ClientSecret   string         `db:"client_secret" json:"-"`
	AccessToken    string         `db:"access_token" json:"-"`
	RefreshToken   string         `db:"refresh_token" json:"-"`
	Scopes         pq.StringArray `db:"scopes" json:"scopes"`
	ExpiresAt      time.Time      `db:"expires_at" json:"expires_at"`
	LastVerifiedAt sql.NullTime   `db:"last_verified_at" json:"last_verified_at"`
	KeyID          string         `db:"key_id" json:"-"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

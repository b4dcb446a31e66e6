package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/rovelin/postpilot/internal/models"
	"github.com/rovelin/postpilot/internal/vault"
)

const accountCredentialColumns = `a.id, a.user_id, a.external_user_id, a.account_name,
	a.account_username, a.profile_picture_url, a.status, a.created_at, a.updated_at,
	c.id, c.account_id, c.client_id, c.client_secret, c.access_token, c.refresh_token,
	c.scopes, c.expires_at, c.last_verified_at, c.key_id, c.created_at, c.updated_at`

type AccountRepository interface {
	Create(ctx context.Context, tx *sql.Tx, account *models.Account, cred *models.Credential) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetWithCredential(ctx context.Context, id int64) (*models.Account, error)
	CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error)
	ListExpiringWithin(ctx context.Context, from, to time.Time) ([]*models.Account, error)
	ListByStatus(ctx context.Context, statuses ...string) ([]*models.Account, error)
	SetStatus(ctx context.Context, id int64, status string) error
	UpdateCredentialExpiry(ctx context.Context, accountID int64, expiresAt, verifiedAt time.Time) error
	UpdateCredentialTokens(ctx context.Context, accountID int64, accessToken, refreshToken string, expiresAt time.Time) error
	Remove(ctx context.Context, id int64) error
}

// accountRepository persists accounts and their credentials. The codec
// seals sensitive credential columns on write and opens them on read;
// an unreadable envelope decodes to "" rather than failing the query.
type accountRepository struct {
	db    *sql.DB
	codec *vault.Codec
}

func NewAccountRepository(db *sql.DB, codec *vault.Codec) AccountRepository {
	return &accountRepository{db: db, codec: codec}
}

func (r *accountRepository) Create(ctx context.Context, tx *sql.Tx, account *models.Account, cred *models.Credential) (int64, error) {
	accountQuery := `
		INSERT INTO accounts (user_id, external_user_id, account_name, account_username, profile_picture_url, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	credQuery := `
		INSERT INTO credentials (account_id, client_id, client_secret, access_token, refresh_token, scopes, expires_at, key_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	ownTx := tx == nil
	var err error
	if ownTx {
		tx, err = r.db.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			slog.Info(err.Error())
			return 0, err
		}
		defer tx.Rollback()
	}

	var id int64
	err = tx.QueryRowContext(ctx, accountQuery,
		account.UserID,
		account.ExternalUserID,
		account.AccountName,
		account.AccountUsername,
		account.ProfilePicture,
		models.AccountStatusActive,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	sealed, err := r.sealCredential(cred)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	_, err = tx.ExecContext(ctx, credQuery,
		id,
		sealed.ClientID,
		sealed.ClientSecret,
		sealed.AccessToken,
		sealed.RefreshToken,
		pq.Array(cred.Scopes),
		cred.ExpiresAt,
		r.codec.KeyID(),
	)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	if ownTx {
		if err := tx.Commit(); err != nil {
			slog.Info(err.Error())
			return 0, err
		}
	}

	return id, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT id, user_id, external_user_id, account_name, account_username, profile_picture_url, status, created_at, updated_at
		FROM accounts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var a models.Account
	err := row.Scan(&a.ID, &a.UserID, &a.ExternalUserID, &a.AccountName,
		&a.AccountUsername, &a.ProfilePicture, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &a, nil
}

func (r *accountRepository) GetWithCredential(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountCredentialColumns + `
		FROM accounts a
		JOIN credentials c ON c.account_id = a.id
		WHERE a.id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	account, err := r.scanAccountCredential(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return account, nil
}

func (r *accountRepository) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	query := "SELECT 1 FROM accounts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, accountID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *accountRepository) ListExpiringWithin(ctx context.Context, from, to time.Time) ([]*models.Account, error) {
	query := `SELECT ` + accountCredentialColumns + `
		FROM accounts a
		JOIN credentials c ON c.account_id = a.id
		WHERE (c.expires_at BETWEEN $1 AND $2) OR (c.expires_at < $1)`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return r.collectAccountCredentials(rows)
}

func (r *accountRepository) ListByStatus(ctx context.Context, statuses ...string) ([]*models.Account, error) {
	query := `SELECT ` + accountCredentialColumns + `
		FROM accounts a
		JOIN credentials c ON c.account_id = a.id
		WHERE a.status = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(statuses))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return r.collectAccountCredentials(rows)
}

func (r *accountRepository) SetStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE accounts SET status = $1, updated_at = $2 WHERE id = $3`

	_, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) UpdateCredentialExpiry(ctx context.Context, accountID int64, expiresAt, verifiedAt time.Time) error {
	query := `UPDATE credentials SET expires_at = $1, last_verified_at = $2, updated_at = $3 WHERE account_id = $4`

	_, err := r.db.ExecContext(ctx, query, expiresAt, verifiedAt, time.Now(), accountID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) UpdateCredentialTokens(ctx context.Context, accountID int64, accessToken, refreshToken string, expiresAt time.Time) error {
	sealedAccess, err := r.codec.EncryptField(accessToken)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	sealedRefresh, err := r.codec.EncryptField(refreshToken)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `
		UPDATE credentials
		SET access_token = COALESCE(NULLIF($1, ''), access_token),
			refresh_token = COALESCE(NULLIF($2, ''), refresh_token),
			expires_at = $3,
			key_id = $4,
			updated_at = $5
		WHERE account_id = $6
	`
	_, err = r.db.ExecContext(ctx, query, sealedAccess, sealedRefresh, expiresAt, r.codec.KeyID(), time.Now(), accountID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) Remove(ctx context.Context, id int64) error {
	// Credentials go with the account via ON DELETE CASCADE.
	query := `DELETE FROM accounts WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

type sealedCredential struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
}

func (r *accountRepository) sealCredential(cred *models.Credential) (*sealedCredential, error) {
	var sealed sealedCredential
	var err error

	if sealed.ClientID, err = r.codec.EncryptField(cred.ClientID); err != nil {
		return nil, err
	}
	if sealed.ClientSecret, err = r.codec.EncryptField(cred.ClientSecret); err != nil {
		return nil, err
	}
	if sealed.AccessToken, err = r.codec.EncryptField(cred.AccessToken); err != nil {
		return nil, err
	}
	if sealed.RefreshToken, err = r.codec.EncryptField(cred.RefreshToken); err != nil {
		return nil, err
	}

	return &sealed, nil
}

func (r *accountRepository) scanAccountCredential(row rowScanner) (*models.Account, error) {
	var a models.Account
	var c models.Credential

	err := row.Scan(
		&a.ID, &a.UserID, &a.ExternalUserID, &a.AccountName, &a.AccountUsername,
		&a.ProfilePicture, &a.Status, &a.CreatedAt, &a.UpdatedAt,
		&c.ID, &c.AccountID, &c.ClientID, &c.ClientSecret, &c.AccessToken,
		&c.RefreshToken, &c.Scopes, &c.ExpiresAt, &c.LastVerifiedAt, &c.KeyID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.ClientID = r.codec.DecryptField(c.ClientID)
	c.ClientSecret = r.codec.DecryptField(c.ClientSecret)
	c.AccessToken = r.codec.DecryptField(c.AccessToken)
	c.RefreshToken = r.codec.DecryptField(c.RefreshToken)

	a.Credential = &c
	return &a, nil
}

func (r *accountRepository) collectAccountCredentials(rows *sql.Rows) ([]*models.Account, error) {
	var accounts []*models.Account
	for rows.Next() {
		account, err := r.scanAccountCredential(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return accounts, nil
}

package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/rovelin/postpilot/internal/models"
)

const postColumns = `id, user_id, account_id, caption, title, media_urls, schedule_mode,
	scheduled_time, status, attempts, last_error, last_error_info, external_id,
	permalink, published_at, idempotency_key, created_at, updated_at`

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error)
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error)
	UpdateStatusIf(ctx context.Context, id int64, to string, from ...string) (bool, error)
	MarkProcessing(ctx context.Context, id int64) (int, bool, error)
	MarkCompleted(ctx context.Context, id int64, externalID, permalink string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id int64, message string, detail []byte) error
	CountByStatus(ctx context.Context) (map[string]int64, error)
	CountOutcomes(ctx context.Context, from, to time.Time) (map[string]int64, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error) {
	query := `
		INSERT INTO posts (user_id, account_id, caption, title, media_urls, schedule_mode, scheduled_time, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	var id int64
	var err error

	args := []interface{}{
		post.UserID, post.AccountID, post.Caption, post.Title,
		pq.Array(post.MediaURLs), post.ScheduleMode, post.ScheduledTime,
		post.Status, post.IdempotencyKey,
	}

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	post, err := scanPost(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY scheduled_time DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectPosts(rows)
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := "SELECT 1 FROM posts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

// ListDue returns due posts eligible for dispatch, earliest first. The
// attempt cap on failed rows is enforced by the scheduler, not here.
func (r *postRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE status = ANY($1) AND scheduled_time <= $2
		ORDER BY scheduled_time ASC, id ASC
		LIMIT $3`

	statuses := []string{models.PostStatusPending, models.PostStatusScheduled, models.PostStatusFailed}
	rows, err := r.db.QueryContext(ctx, query, pq.Array(statuses), now, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectPosts(rows)
}

// UpdateStatusIf transitions the row only when its current status is
// one of the expected prior states, so racing writers cannot clobber
// each other.
func (r *postRepository) UpdateStatusIf(ctx context.Context, id int64, to string, from ...string) (bool, error) {
	query := `
		UPDATE posts
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = ANY($4)
	`
	result, err := r.db.ExecContext(ctx, query, to, time.Now(), id, pq.Array(from))
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

// MarkProcessing claims the row for one publish attempt. Every claim
// advances the attempt counter, so the stored count always equals the
// number of platform calls actually made regardless of whether the
// delivery came from the poller or a queue retry. Returns the new
// attempt number.
func (r *postRepository) MarkProcessing(ctx context.Context, id int64) (int, bool, error) {
	query := `
		UPDATE posts
		SET status = $1, attempts = attempts + 1, updated_at = $2
		WHERE id = $3 AND status = ANY($4)
		RETURNING attempts
	`
	eligible := []string{
		models.PostStatusPending, models.PostStatusScheduled,
		models.PostStatusProcessing, models.PostStatusFailed,
	}

	var attempt int
	err := r.db.QueryRowContext(ctx, query, models.PostStatusProcessing, time.Now(), id, pq.Array(eligible)).Scan(&attempt)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		slog.Info(err.Error())
		return 0, false, err
	}
	return attempt, true, nil
}

func (r *postRepository) MarkCompleted(ctx context.Context, id int64, externalID, permalink string, publishedAt time.Time) error {
	query := `
		UPDATE posts
		SET status = $1, external_id = $2, permalink = $3, published_at = $4, last_error = '', updated_at = $5
		WHERE id = $6 AND status = $7
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusCompleted, externalID, permalink, publishedAt, time.Now(), id, models.PostStatusProcessing)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkFailed(ctx context.Context, id int64, message string, detail []byte) error {
	query := `
		UPDATE posts
		SET status = $1, last_error = $2, last_error_info = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusFailed, message, detail, time.Now(), id, models.PostStatusProcessing)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	query := `SELECT status, COUNT(*) FROM posts GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectCounts(rows)
}

func (r *postRepository) CountOutcomes(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	query := `SELECT status, COUNT(*) FROM posts WHERE updated_at >= $1 AND updated_at < $2 GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return collectCounts(rows)
}

func (r *postRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM posts WHERE status = $1 AND published_at < $2`

	result, err := r.db.ExecContext(ctx, query, models.PostStatusCompleted, cutoff)
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	err := row.Scan(&post.ID, &post.UserID, &post.AccountID, &post.Caption, &post.Title,
		&post.MediaURLs, &post.ScheduleMode, &post.ScheduledTime, &post.Status,
		&post.Attempts, &post.LastError, &post.LastErrorInfo, &post.ExternalID,
		&post.Permalink, &post.PublishedAt, &post.IdempotencyKey, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func collectPosts(rows *sql.Rows) ([]*models.ScheduledPost, error) {
	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

func collectCounts(rows *sql.Rows) (map[string]int64, error) {
	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return counts, nil
}

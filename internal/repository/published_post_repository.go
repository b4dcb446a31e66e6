package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/rovelin/postpilot/internal/models"
)

type PublishedPostRepository interface {
	Create(ctx context.Context, pp *models.PublishedPost) error
	GetByPostID(ctx context.Context, postID int64) (*models.PublishedPost, error)
	Remove(ctx context.Context, postID int64) error
}

type publishedPostRepository struct {
	db *sql.DB
}

func NewPublishedPostRepository(db *sql.DB) PublishedPostRepository {
	return &publishedPostRepository{db: db}
}

func (r *publishedPostRepository) Create(ctx context.Context, pp *models.PublishedPost) error {
	query := `
		INSERT INTO published_posts (post_id, account_id, external_id, permalink, published_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (post_id) DO UPDATE
		SET external_id = EXCLUDED.external_id, permalink = EXCLUDED.permalink, published_at = EXCLUDED.published_at
	`
	_, err := r.db.ExecContext(ctx, query, pp.PostID, pp.AccountID, pp.ExternalID, pp.Permalink, pp.PublishedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *publishedPostRepository) GetByPostID(ctx context.Context, postID int64) (*models.PublishedPost, error) {
	query := `SELECT post_id, account_id, external_id, permalink, published_at FROM published_posts WHERE post_id = $1`
	row := r.db.QueryRowContext(ctx, query, postID)

	var pp models.PublishedPost
	err := row.Scan(&pp.PostID, &pp.AccountID, &pp.ExternalID, &pp.Permalink, &pp.PublishedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &pp, nil
}

func (r *publishedPostRepository) Remove(ctx context.Context, postID int64) error {
	query := `DELETE FROM published_posts WHERE post_id = $1`

	_, err := r.db.ExecContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

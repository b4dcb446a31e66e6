package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rovelin/postpilot/internal/models"
	"github.com/rovelin/postpilot/internal/queue"
	"github.com/rovelin/postpilot/internal/repository"
	"github.com/rovelin/postpilot/internal/transfer"
)

var (
	ErrPostNotFound    = errors.New("post doesn't exist")
	ErrAccountNotFound = errors.New("social account doesn't exist")
	ErrNotCancellable  = errors.New("only scheduled posts can be cancelled")
)

// PublishQueue is the enqueue surface the post use cases need.
type PublishQueue interface {
	EnqueuePublish(ctx context.Context, payload queue.PublishPostPayload, delay time.Duration) error
	CancelPublish(ctx context.Context, postID int64) error
	EnqueueDelete(ctx context.Context, payload queue.DeletePostPayload) error
	EnqueueBulkDelete(ctx context.Context, payload queue.BulkDeletePayload) error
}

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (int64, error)
	Cancel(ctx context.Context, userID, postID int64) error
	Remove(ctx context.Context, userID, postID int64) error
	RemoveBulk(ctx context.Context, userID int64, postIDs []int64) error
	List(ctx context.Context, userID int64) ([]*models.ScheduledPost, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.ScheduledPost, error)
}

type postService struct {
	pr    repository.PostRepository
	ar    repository.AccountRepository
	al    repository.AuditRepository
	media MediaService
	q     PublishQueue
}

func NewPostService(
	pr repository.PostRepository,
	ar repository.AccountRepository,
	al repository.AuditRepository,
	media MediaService,
	q PublishQueue) PostService {
	return &postService{
		pr:    pr,
		ar:    ar,
		al:    al,
		media: media,
		q:     q,
	}
}

func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation, files []*multipart.FileHeader) (int64, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return 0, err
	}

	if err := pc.Validate(); err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	exists, err := s.ar.CheckByUserID(ctx, pc.AccountID, userID)
	if err != nil {
		return 0, err
	}
	if !exists {
		slog.Info(ErrAccountNotFound.Error())
		return 0, ErrAccountNotFound
	}

	now := time.Now()
	scheduledTime := now
	mode := models.ScheduleModeImmediate
	status := models.PostStatusPending

	if pc.ScheduledTime != "" {
		scheduledTime, err = time.Parse("2006-01-02T15:04", pc.ScheduledTime)
		if err != nil {
			err = fmt.Errorf("invalid scheduled time format: %w", err)
			slog.Info(err.Error())
			return 0, err
		}
		if scheduledTime.After(now) {
			mode = models.ScheduleModeScheduled
			status = models.PostStatusScheduled
		}
	}

	mediaURLs, err := s.uploadFiles(ctx, files)
	if err != nil {
		return 0, err
	}

	idempotencyKey, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	post := models.ScheduledPost{
		UserID:         userID,
		AccountID:      pc.AccountID,
		Caption:        pc.Caption,
		Title:          pc.Title,
		MediaURLs:      mediaURLs,
		ScheduleMode:   mode,
		ScheduledTime:  scheduledTime,
		Status:         status,
		IdempotencyKey: idempotencyKey,
	}

	postID, err := s.pr.Create(ctx, nil, &post)
	if err != nil {
		return 0, fmt.Errorf("error creating post: %w", err)
	}

	delay := time.Until(scheduledTime)
	if delay < 0 {
		delay = 0
	}

	payload := queue.PublishPostPayload{
		PostID:    postID,
		Caption:   post.Caption,
		MediaURLs: post.MediaURLs,
	}

	// An enqueue failure is not fatal to creation: the poller claims
	// due pending rows on its next tick.
	if err := s.q.EnqueuePublish(ctx, payload, delay); err != nil {
		slog.Error("failed to enqueue publish job", "post_id", postID, "error", err.Error())
	}

	return postID, nil
}

func (s *postService) uploadFiles(ctx context.Context, files []*multipart.FileHeader) ([]string, error) {
	var urls []string

	for _, file := range files {
		content, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening file: %w", err)
		}

		fileBytes, err := io.ReadAll(content)
		content.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading file content: %w", err)
		}

		url, err := s.media.UploadMedia(ctx, fileBytes)
		if err != nil {
			return nil, fmt.Errorf("error uploading file: %w", err)
		}
		urls = append(urls, url)
	}

	return urls, nil
}

// Cancel withdraws a scheduled post. Anything past SCHEDULED is
// rejected: a running attempt cannot be preempted and terminal posts
// have nothing to cancel.
func (s *postService) Cancel(ctx context.Context, userID, postID int64) error {
	isOwner, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !isOwner {
		slog.Info(ErrPostNotFound.Error())
		return ErrPostNotFound
	}

	ok, err := s.pr.UpdateStatusIf(ctx, postID, models.PostStatusCancelled, models.PostStatusScheduled)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotCancellable
	}

	if err := s.q.CancelPublish(ctx, postID); err != nil {
		slog.Error("failed to remove queued publish job", "post_id", postID, "error", err.Error())
	}

	entry := models.AuditLog{
		Action:     models.AuditActionCancel,
		TargetType: models.AuditTargetPost,
		TargetID:   postID,
		ActorID:    sql.NullInt64{Int64: userID, Valid: true},
		Success:    true,
	}
	if _, err := s.al.Create(ctx, &entry); err != nil {
		slog.Info(err.Error())
	}

	return nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	isOwner, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !isOwner {
		slog.Info(ErrPostNotFound.Error())
		return ErrPostNotFound
	}

	return s.q.EnqueueDelete(ctx, queue.DeletePostPayload{PostID: postID, ActorID: &userID})
}

func (s *postService) RemoveBulk(ctx context.Context, userID int64, postIDs []int64) error {
	if len(postIDs) == 0 {
		return errors.New("no post ids provided")
	}

	for _, postID := range postIDs {
		isOwner, err := s.pr.CheckByUserID(ctx, postID, userID)
		if err != nil {
			return err
		}
		if !isOwner {
			return fmt.Errorf("post %d: %w", postID, ErrPostNotFound)
		}
	}

	return s.q.EnqueueBulkDelete(ctx, queue.BulkDeletePayload{PostIDs: postIDs, ActorID: &userID})
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing posts")
	}
	return posts, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.ScheduledPost, error) {
	isOwner, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !isOwner {
		slog.Info(ErrPostNotFound.Error())
		return nil, ErrPostNotFound
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post info")
	}

	return post, nil
}

package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rovelin/postpilot/internal/models"
	"github.com/rovelin/postpilot/internal/platform"
	"github.com/rovelin/postpilot/internal/repository"
)

const (
	TaskTypePublishPost = "publish:post"
	TaskTypeDeletePost  = "delete:post"
	TaskTypeBulkDelete  = "delete:bulk"
)

const DefaultQueue = "default"

// PublishTaskID is the dedup identity for publish jobs. One post maps
// to one task id, so re-enqueuing collapses instead of duplicating.
func PublishTaskID(postID int64) string {
	return fmt.Sprintf("publish:post:%d", postID)
}

// PublishPostPayload carries a content snapshot; the attempt counter
// lives on the post row and is advanced by the worker's claim, never
// by the payload.
type PublishPostPayload struct {
	PostID    int64    `json:"post_id"`
	Caption   string   `json:"caption"`
	MediaURLs []string `json:"media_urls"`
}

type DeletePostPayload struct {
	PostID  int64  `json:"post_id"`
	ActorID *int64 `json:"actor_id,omitempty"`
}

type BulkDeletePayload struct {
	PostIDs []int64 `json:"post_ids"`
	ActorID *int64  `json:"actor_id,omitempty"`
}

// MediaRemover deletes a stored media object by key. Nil disables
// media cleanup on post deletion.
type MediaRemover interface {
	RemoveMedia(ctx context.Context, key string) error
}

// Queue holds the worker side: handlers consuming publish and deletion
// tasks off the durable queue.
type Queue struct {
	pr    repository.PostRepository
	ar    repository.AccountRepository
	pp    repository.PublishedPostRepository
	al    repository.AuditRepository
	pc    platform.Client
	media MediaRemover
}

func NewQueue(
	pr repository.PostRepository,
	ar repository.AccountRepository,
	pp repository.PublishedPostRepository,
	al repository.AuditRepository,
	pc platform.Client,
	media MediaRemover) *Queue {
	return &Queue{
		pr:    pr,
		ar:    ar,
		pp:    pp,
		al:    al,
		pc:    pc,
		media: media,
	}
}

func (q *Queue) audit(ctx context.Context, action, targetType string, targetID int64, actorID *int64, success bool, detail []byte, errMsg string) {
	entry := models.AuditLog{
		Action:       action,
		TargetType:   targetType,
		TargetID:     targetID,
		Success:      success,
		Detail:       detail,
		ErrorMessage: errMsg,
	}
	if actorID != nil {
		entry.ActorID = sql.NullInt64{Int64: *actorID, Valid: true}
	}

	if _, err := q.al.Create(ctx, &entry); err != nil {
		slog.Error("failed to write audit entry", "action", action, "target_id", targetID, "error", err.Error())
	}
}

// RetryDelay is the queue-level backoff: exponential from a 5s base.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	return 5 * time.Second * (1 << n)
}

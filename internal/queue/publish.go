package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rovelin/postpilot/internal/models"
	"github.com/rovelin/postpilot/internal/platform"
)

// HandlePublishTask consumes one publish job: it loads the post and
// its credential, calls the platform, and transitions post state. A
// retryable failure is persisted first, then returned so the queue's
// backoff policy applies.
func (q *Queue) HandlePublishTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid publish payload: %v: %w", err, asynq.SkipRetry)
	}

	post, err := q.pr.GetByID(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		q.audit(ctx, models.AuditActionPublish, models.AuditTargetPost, payload.PostID, nil, false, nil, "post no longer exists")
		return fmt.Errorf("post %d not found: %w", payload.PostID, asynq.SkipRetry)
	}

	if post.Terminal() {
		slog.Info("skipping stale publish job", "post_id", post.ID, "status", post.Status, "attempts", post.Attempts)
		return nil
	}

	account, err := q.ar.GetWithCredential(ctx, post.AccountID)
	if err != nil {
		return err
	}
	if account == nil {
		q.audit(ctx, models.AuditActionPublish, models.AuditTargetPost, post.ID, nil, false, nil, "account no longer exists")
		return fmt.Errorf("account %d not found: %w", post.AccountID, asynq.SkipRetry)
	}
	if account.Credential.AccessToken == "" {
		q.audit(ctx, models.AuditActionPublish, models.AuditTargetPost, post.ID, nil, false, nil, "credential unreadable")
		return fmt.Errorf("account %d credential unreadable: %w", account.ID, asynq.SkipRetry)
	}

	// The claim itself advances the attempt counter, so the row tracks
	// real platform calls even across queue-level retries of one task.
	attempt, ok, err := q.pr.MarkProcessing(ctx, post.ID)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("post not eligible for publishing", "post_id", post.ID, "status", post.Status)
		return nil
	}

	result, err := q.pc.CreatePost(ctx, account.Credential.AccessToken, payload.Caption, payload.MediaURLs)
	if err != nil {
		return q.publishFailed(ctx, post.ID, attempt, err)
	}

	now := time.Now()
	if err := q.pr.MarkCompleted(ctx, post.ID, result.ExternalID, result.Permalink, now); err != nil {
		return err
	}

	cached := models.PublishedPost{
		PostID:      post.ID,
		AccountID:   account.ID,
		ExternalID:  result.ExternalID,
		Permalink:   result.Permalink,
		PublishedAt: now,
	}
	if err := q.pp.Create(ctx, &cached); err != nil {
		slog.Error("failed to cache published post", "post_id", post.ID, "error", err.Error())
	}

	detail, _ := json.Marshal(map[string]string{
		"external_id": result.ExternalID,
		"permalink":   result.Permalink,
	})
	q.audit(ctx, models.AuditActionPublish, models.AuditTargetPost, post.ID, nil, true, detail, "")

	slog.Info("post published", "post_id", post.ID, "external_id", result.ExternalID)
	return nil
}

// publishFailed records the failure on the domain row and the audit
// trail before letting the error escape, so the record reflects the
// latest truth even if the process dies right after.
func (q *Queue) publishFailed(ctx context.Context, postID int64, attempt int, cause error) error {
	detail, _ := json.Marshal(models.ErrorDetail{
		Attempt: attempt,
		At:      time.Now(),
		Message: cause.Error(),
	})

	if err := q.pr.MarkFailed(ctx, postID, cause.Error(), detail); err != nil {
		slog.Error("failed to record publish failure", "post_id", postID, "error", err.Error())
	}
	q.audit(ctx, models.AuditActionPublish, models.AuditTargetPost, postID, nil, false, detail, cause.Error())

	if !platform.IsRetryable(cause) {
		return fmt.Errorf("publish post %d: %v: %w", postID, cause, asynq.SkipRetry)
	}
	if attempt >= models.MaxPublishAttempts {
		// Attempts exhausted; the row is terminal and the queue must
		// not deliver this task again.
		return fmt.Errorf("publish post %d: attempts exhausted: %v: %w", postID, cause, asynq.SkipRetry)
	}
	return fmt.Errorf("publish post %d: %w", postID, cause)
}

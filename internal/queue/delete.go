package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/hibiken/asynq"
	"github.com/rovelin/postpilot/internal/models"
	"github.com/rovelin/postpilot/internal/platform"
	"github.com/rovelin/postpilot/internal/transfer"
)

const (
	deleteMaxAttempts    = 3
	deleteRetryDelay     = 2 * time.Second
	bulkDeleteBatchSize  = 5
	bulkDeleteBatchDelay = time.Second
)

// HandleDeleteTask consumes a single-delete job. Retries are counted
// here with a manual policy since deletion jobs bypass the queue's
// attempt mechanism; after exhaustion a permanent failure is audited
// and the job is not re-delivered.
func (q *Queue) HandleDeleteTask(ctx context.Context, task *asynq.Task) error {
	var payload DeletePostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid delete payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := q.deleteOne(ctx, payload.PostID); err != nil {
		q.audit(ctx, models.AuditActionDelete, models.AuditTargetPost, payload.PostID, payload.ActorID, false, nil, err.Error())
		return nil
	}

	q.audit(ctx, models.AuditActionDelete, models.AuditTargetPost, payload.PostID, payload.ActorID, true, nil, "")
	return nil
}

// HandleBulkDeleteTask deletes a batch of posts with intra-batch
// concurrency and a fixed pause between batches to respect the
// platform's rate limits. Partial failure never fails the whole job;
// the summary accounts for every requested id.
func (q *Queue) HandleBulkDeleteTask(ctx context.Context, task *asynq.Task) error {
	var payload BulkDeletePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid bulk delete payload: %v: %w", err, asynq.SkipRetry)
	}

	result := q.BulkDelete(ctx, payload.PostIDs, func(p transfer.BulkDeleteProgress) {
		if w := task.ResultWriter(); w != nil {
			if b, err := json.Marshal(p); err == nil {
				w.Write(b)
			}
		}
	})

	detail, _ := json.Marshal(result)
	q.audit(ctx, models.AuditActionBulkDelete, models.AuditTargetPost, 0, payload.ActorID, len(result.Failed) == 0, detail, "")

	if w := task.ResultWriter(); w != nil {
		w.Write(detail)
	}

	slog.Info("bulk delete finished", "total", len(payload.PostIDs), "succeeded", len(result.Succeeded), "failed", len(result.Failed))
	return nil
}

// BulkDelete partitions the ids into batches of five, deletes each
// batch's items concurrently, and reports progress after every batch.
func (q *Queue) BulkDelete(ctx context.Context, postIDs []int64, progress func(transfer.BulkDeleteProgress)) *transfer.BulkDeleteResult {
	result := &transfer.BulkDeleteResult{
		Succeeded: []int64{},
		Failed:    make(map[int64]string),
	}

	total := len(postIDs)
	var mu sync.Mutex

	for start := 0; start < total; start += bulkDeleteBatchSize {
		end := start + bulkDeleteBatchSize
		if end > total {
			end = total
		}

		var wg sync.WaitGroup
		for _, postID := range postIDs[start:end] {
			wg.Add(1)
			go func(postID int64) {
				defer wg.Done()

				err := q.deleteOne(ctx, postID)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Failed[postID] = err.Error()
				} else {
					result.Succeeded = append(result.Succeeded, postID)
				}
			}(postID)
		}
		wg.Wait()

		if progress != nil {
			progress(transfer.BulkDeleteProgress{
				Done:     end,
				Total:    total,
				Fraction: float64(end) / float64(total),
			})
		}

		if end < total {
			select {
			case <-ctx.Done():
				for _, postID := range postIDs[end:] {
					result.Failed[postID] = ctx.Err().Error()
				}
				return result
			case <-time.After(bulkDeleteBatchDelay):
			}
		}
	}

	return result
}

// deleteOne removes a single published post from the platform and the
// local cache. A missing cache row means the post is already gone and
// counts as success.
func (q *Queue) deleteOne(ctx context.Context, postID int64) error {
	published, err := q.pp.GetByPostID(ctx, postID)
	if err != nil {
		return err
	}
	if published == nil {
		slog.Info("post already deleted", "post_id", postID)
		return nil
	}

	account, err := q.ar.GetWithCredential(ctx, published.AccountID)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("account %d no longer exists", published.AccountID)
	}
	if account.Credential.AccessToken == "" {
		return fmt.Errorf("account %d credential unreadable", account.ID)
	}

	err = retry.Do(
		func() error {
			return q.pc.DeletePost(ctx, account.Credential.AccessToken, published.ExternalID)
		},
		retry.Attempts(deleteMaxAttempts),
		retry.Delay(deleteRetryDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(platform.IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("retrying platform delete", "post_id", postID, "attempt", n+1, "error", err.Error())
		}),
	)
	if err != nil {
		return fmt.Errorf("delete post %d: %w", postID, err)
	}

	q.removeMedia(ctx, postID)

	return q.pp.Remove(ctx, postID)
}

// removeMedia drops the post's stored media objects. Best effort: an
// orphaned object must not fail a deletion that already succeeded on
// the platform.
func (q *Queue) removeMedia(ctx context.Context, postID int64) {
	if q.media == nil {
		return
	}

	post, err := q.pr.GetByID(ctx, postID)
	if err != nil || post == nil {
		return
	}

	for _, url := range post.MediaURLs {
		key := path.Base(url)
		if key == "" || key == "." || key == "/" {
			continue
		}
		if err := q.media.RemoveMedia(ctx, key); err != nil {
			slog.Info("unable to remove media object", "post_id", postID, "key", key, "error", err.Error())
		}
	}
}

// Package scheduler owns the poll cycle that moves due posts into the
// durable queue, plus the periodic housekeeping that runs on the same
// cadence.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rovelin/postpilot/internal/models"
	"github.com/rovelin/postpilot/internal/queue"
	"github.com/rovelin/postpilot/internal/repository"
	"github.com/rovelin/postpilot/internal/transfer"
)

const (
	defaultBatchSize   = 10
	completedRetention = 30 * 24 * time.Hour
	auditRetention     = 90 * 24 * time.Hour
)

// Dispatcher is the slice of the queue client the scheduler needs.
type Dispatcher interface {
	EnqueuePublish(ctx context.Context, payload queue.PublishPostPayload, delay time.Duration) error
	HasPendingPublish(ctx context.Context, postID int64) (bool, error)
	DropCompletedTasks(ctx context.Context) error
}

type Scheduler struct {
	pr         repository.PostRepository
	al         repository.AuditRepository
	dispatcher Dispatcher
	batchSize  int

	// polling guards against an overlapping poll cycle within this
	// process. It does not coordinate across instances; cross-instance
	// exclusivity comes from the identity-keyed enqueue.
	polling atomic.Bool
}

func New(pr repository.PostRepository, al repository.AuditRepository, dispatcher Dispatcher, batchSize int) *Scheduler {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Scheduler{
		pr:         pr,
		al:         al,
		dispatcher: dispatcher,
		batchSize:  batchSize,
	}
}

// PollAndDispatch claims due posts and hands each to the publish
// worker via the queue. A tick that overlaps a still-running cycle is
// skipped, not queued.
func (s *Scheduler) PollAndDispatch() {
	if !s.polling.CompareAndSwap(false, true) {
		slog.Info("poll cycle already running, skipping tick")
		return
	}
	defer s.polling.Store(false)

	ctx := context.Background()

	posts, err := s.pr.ListDue(ctx, time.Now(), s.batchSize)
	if err != nil {
		slog.Error("failed to list due posts", "error", err.Error())
		return
	}

	var dispatched int
	for _, post := range posts {
		if s.dispatch(ctx, post) {
			dispatched++
		}
	}

	if len(posts) > 0 {
		slog.Info("poll cycle finished", "due", len(posts), "dispatched", dispatched)
	}
}

// dispatch enqueues one post. A failure here must not abort the rest
// of the batch.
func (s *Scheduler) dispatch(ctx context.Context, post *models.ScheduledPost) bool {
	if post.Status == models.PostStatusFailed {
		if post.Attempts >= models.MaxPublishAttempts {
			// Terminal; the row stays failed and is never re-queued.
			return false
		}

		// The queue is the attempt authority: if it still holds a job
		// for this post, its own backoff will fire and a re-dispatch
		// would double-count attempts.
		inflight, err := s.dispatcher.HasPendingPublish(ctx, post.ID)
		if err != nil {
			slog.Error("failed to check in-flight job", "post_id", post.ID, "error", err.Error())
			return false
		}
		if inflight {
			return false
		}
	}

	payload := queue.PublishPostPayload{
		PostID:    post.ID,
		Caption:   post.Caption,
		MediaURLs: post.MediaURLs,
	}

	if err := s.dispatcher.EnqueuePublish(ctx, payload, 0); err != nil {
		slog.Error("failed to enqueue publish job", "post_id", post.ID, "error", err.Error())
		return false
	}

	ok, err := s.pr.UpdateStatusIf(ctx, post.ID, models.PostStatusProcessing,
		models.PostStatusPending, models.PostStatusScheduled, models.PostStatusFailed)
	if err != nil {
		slog.Error("failed to mark post processing", "post_id", post.ID, "error", err.Error())
		return false
	}
	if !ok {
		slog.Info("post state changed under poller", "post_id", post.ID)
	}

	return true
}

// CleanupOld drops completed posts past retention, aged audit rows and
// finished queue jobs. Runs hourly.
func (s *Scheduler) CleanupOld() {
	ctx := context.Background()

	deleted, err := s.pr.DeleteCompletedBefore(ctx, time.Now().Add(-completedRetention))
	if err != nil {
		slog.Error("failed to delete old completed posts", "error", err.Error())
	} else if deleted > 0 {
		slog.Info("deleted old completed posts", "count", deleted)
	}

	if _, err := s.al.DeleteOlderThan(ctx, time.Now().Add(-auditRetention)); err != nil {
		slog.Error("failed to prune audit log", "error", err.Error())
	}

	if err := s.dispatcher.DropCompletedTasks(ctx); err != nil {
		slog.Error("failed to drop finished queue jobs", "error", err.Error())
	}
}

// DailyReport logs yesterday's post outcomes by status. Informational
// only.
func (s *Scheduler) DailyReport() {
	ctx := context.Background()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.Add(-24 * time.Hour)

	counts, err := s.pr.CountOutcomes(ctx, yesterday, today)
	if err != nil {
		slog.Error("failed to build daily report", "error", err.Error())
		return
	}

	slog.Info("daily post report",
		"date", yesterday.Format("2006-01-02"),
		"completed", counts[models.PostStatusCompleted],
		"failed", counts[models.PostStatusFailed],
		"cancelled", counts[models.PostStatusCancelled],
	)
}

// Status reports queue-visible post counts for the status endpoint.
func (s *Scheduler) Status(ctx context.Context) (*transfer.SchedulerStatus, error) {
	counts, err := s.pr.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	return &transfer.SchedulerStatus{
		Pending:    counts[models.PostStatusPending] + counts[models.PostStatusScheduled],
		Processing: counts[models.PostStatusProcessing],
		Failed:     counts[models.PostStatusFailed],
	}, nil
}

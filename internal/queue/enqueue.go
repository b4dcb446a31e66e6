package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rovelin/postpilot/internal/models"
)

// taskEnqueuer and taskInspector cover the slices of the asynq client
// and inspector the Client uses.
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type taskInspector interface {
	DeleteTask(queue, id string) error
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	ListCompletedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// Client is the enqueue side of the durable queue. The inspector is
// used for identity-keyed replacement and for cancelling queued jobs.
type Client struct {
	asynq     taskEnqueuer
	inspector taskInspector
}

func NewClient(asynqClient *asynq.Client, inspector *asynq.Inspector) *Client {
	return &Client{asynq: asynqClient, inspector: inspector}
}

// EnqueuePublish schedules a publish job keyed by the post's identity.
// A second enqueue for the same post replaces the queued job instead
// of duplicating it, so at most one publish job exists per post.
func (c *Client) EnqueuePublish(ctx context.Context, payload PublishPostPayload, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, taskPayload)
	opts := []asynq.Option{
		asynq.TaskID(PublishTaskID(payload.PostID)),
		asynq.MaxRetry(models.MaxPublishAttempts - 1),
		asynq.ProcessIn(delay),
		asynq.Timeout(2 * time.Minute),
	}

	_, err = c.asynq.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// Replace semantics for reschedules: drop the queued job and
		// enqueue the fresh snapshot under the same identity.
		if derr := c.inspector.DeleteTask(DefaultQueue, PublishTaskID(payload.PostID)); derr != nil && !errors.Is(derr, asynq.ErrTaskNotFound) {
			return derr
		}
		_, err = c.asynq.EnqueueContext(ctx, task, opts...)
	}
	if err != nil {
		return err
	}

	slog.Info("publish job enqueued", "post_id", payload.PostID, "delay", delay.String())
	return nil
}

// CancelPublish removes a still-queued publish job. An attempt that is
// already executing cannot be preempted; deleting an active task fails
// and the error is surfaced to the caller.
func (c *Client) CancelPublish(ctx context.Context, postID int64) error {
	err := c.inspector.DeleteTask(DefaultQueue, PublishTaskID(postID))
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return nil
	}
	return err
}

// HasPendingPublish reports whether the queue still holds a live job
// for the post. The scheduler consults this before re-dispatching a
// failed row, keeping the queue the single authority on attempts.
func (c *Client) HasPendingPublish(ctx context.Context, postID int64) (bool, error) {
	info, err := c.inspector.GetTaskInfo(DefaultQueue, PublishTaskID(postID))
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	switch info.State {
	case asynq.TaskStateActive, asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry:
		return true, nil
	default:
		return false, nil
	}
}

func (c *Client) EnqueueDelete(ctx context.Context, payload DeletePostPayload) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	// Deletion retries are counted manually inside the worker, so the
	// queue itself never re-delivers.
	task := asynq.NewTask(TaskTypeDeletePost, taskPayload)
	_, err = c.asynq.EnqueueContext(ctx, task, asynq.MaxRetry(0), asynq.Timeout(2*time.Minute))
	return err
}

func (c *Client) EnqueueBulkDelete(ctx context.Context, payload BulkDeletePayload) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeBulkDelete, taskPayload)
	_, err = c.asynq.EnqueueContext(ctx, task,
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	return err
}

// completedTaskRetention is how long finished queue jobs stay visible
// before the hourly cleanup removes them.
const completedTaskRetention = 24 * time.Hour

// DropCompletedTasks deletes completed jobs older than the retention
// window. Archived (dead) jobs are left in place so the queue keeps
// its failure trail after a post exhausts its attempts.
func (c *Client) DropCompletedTasks(ctx context.Context) error {
	cutoff := time.Now().Add(-completedTaskRetention)

	tasks, err := c.inspector.ListCompletedTasks(DefaultQueue, asynq.PageSize(500))
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, task := range tasks {
		if !task.CompletedAt.Before(cutoff) {
			continue
		}
		if err := c.inspector.DeleteTask(DefaultQueue, task.ID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return err
		}
	}
	return nil
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/model"
)

// Task types
const (
	TaskTypeProcessAsset = "asset:process"
	TaskTypeReapStale    = "asset:reap"
)

// AssetPayload is the queue payload of TaskTypeProcessAsset.
type AssetPayload struct {
	TaskID string `json:"taskId"`
}

func NewProcessAssetTask(taskID string) (*asynq.Task, error) {
	payload, err := json.Marshal(AssetPayload{TaskID: taskID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal asset payload: %w", err)
	}
	return asynq.NewTask(TaskTypeProcessAsset, payload), nil
}

// ProcessTask is the asynq handler of TaskTypeProcessAsset. Provider
// failures are recorded on the row, never retried by the queue.
func (w *AssetWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p AssetPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal asset payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.TaskID == "" {
		return fmt.Errorf("asset payload without task id: %w", asynq.SkipRetry)
	}
	if err := w.Process(ctx, p.TaskID); err != nil {
		if ctx.Err() != nil {
			// shutdown: the row stays processing and resumes on redelivery
			return err
		}
		return fmt.Errorf("process %s: %v: %w", p.TaskID, err, asynq.SkipRetry)
	}
	return nil
}

// AsynqDispatcher enqueues tasks onto Redis for the worker server.
type AsynqDispatcher struct {
	client *asynq.Client
	queue  string
	log    *logger.Logger
}

func NewAsynqDispatcher(c *asynq.Client, queue string, log *logger.Logger) *AsynqDispatcher {
	if queue == "" {
		queue = "assets"
	}
	return &AsynqDispatcher{client: c, queue: queue, log: log.With("dispatcher", "asynq")}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, task *model.AssetTask) error {
	t, err := NewProcessAssetTask(task.ID)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, t,
		asynq.Queue(d.queue),
		asynq.TaskID(task.ID),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	d.log.Debug("task enqueued", "task_id", task.ID, "queue", info.Queue)
	return nil
}

// InlineDispatcher runs tasks on goroutines of this process. Work outlives
// the request that dispatched it and stops only when the base context ends.
type InlineDispatcher struct {
	worker *AssetWorker
	base   context.Context
	wg     sync.WaitGroup
	log    *logger.Logger
}

func NewInlineDispatcher(base context.Context, w *AssetWorker, log *logger.Logger) *InlineDispatcher {
	return &InlineDispatcher{worker: w, base: base, log: log.With("dispatcher", "inline")}
}

func (d *InlineDispatcher) Dispatch(_ context.Context, task *model.AssetTask) error {
	if err := d.base.Err(); err != nil {
		return fmt.Errorf("dispatcher stopped: %w", err)
	}
	d.wg.Add(1)
	go func(id string) {
		defer d.wg.Done()
		if err := d.worker.Process(d.base, id); err != nil {
			d.log.Error("inline task ended with error", "task_id", id, "error", err)
		}
	}(task.ID)
	return nil
}

// Resume dispatches every unfinished task once. Nothing else redelivers
// work cut off by the previous shutdown in this mode. Processing rows get a
// heartbeat first so the reaper leaves them to the resumed worker.
func (d *InlineDispatcher) Resume(ctx context.Context) (int, error) {
	tasks, err := d.worker.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	for i := range tasks {
		task := &tasks[i]
		if task.Status == model.TaskStatusProcessing {
			if err := d.worker.store.Touch(ctx, task.ID); err != nil {
				d.log.Warn("failed to touch resumed task", "task_id", task.ID, "error", err)
			}
		}
		if err := d.Dispatch(ctx, task); err != nil {
			return i, err
		}
	}
	if len(tasks) > 0 {
		d.log.Info("resumed unfinished tasks", "count", len(tasks))
	}
	return len(tasks), nil
}

// Wait blocks until every dispatched task has returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

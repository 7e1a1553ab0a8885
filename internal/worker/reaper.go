package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/store"
)

// AbandonedMessage prefixes the error of reaped tasks.
const AbandonedMessage = "abandoned: no progress"

// Reaper fails tasks whose worker stopped heartbeating.
type Reaper struct {
	store      store.TaskStore
	notifier   Notifier
	staleAfter time.Duration
	log        *logger.Logger
}

func NewReaper(st store.TaskStore, notifier Notifier, staleAfter time.Duration, log *logger.Logger) *Reaper {
	return &Reaper{store: st, notifier: notifier, staleAfter: staleAfter, log: log.With("worker", "Reaper")}
}

// Reap fails every pending or processing task untouched for staleAfter and
// returns how many it failed.
func (r *Reaper) Reap(ctx context.Context) (int, error) {
	failed, err := r.store.FailStale(ctx, time.Now().Add(-r.staleAfter), AbandonedMessage)
	if err != nil {
		return 0, err
	}
	for i := range failed {
		r.log.Warn("reaped stale task", "task_id", failed[i].ID, "asset_type", failed[i].AssetType, "error_message", failed[i].ErrorMessage)
		if r.notifier != nil {
			r.notifier.BroadcastTaskUpdate(&failed[i])
		}
	}
	return len(failed), nil
}

func NewReapTask() *asynq.Task {
	return asynq.NewTask(TaskTypeReapStale, nil)
}

// ProcessTask is the asynq handler of the periodic TaskTypeReapStale.
func (r *Reaper) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	_, err := r.Reap(ctx)
	return err
}

// Run reaps every interval until ctx is done. Used when tasks run inline.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Reap(ctx); err != nil {
				r.log.Error("reap failed", "error", err)
			}
		}
	}
}

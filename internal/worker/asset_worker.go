package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethan-huo/automation-chatbot/internal/apperr"
	"github.com/ethan-huo/automation-chatbot/internal/client"
	"github.com/ethan-huo/automation-chatbot/internal/config"
	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/model"
	"github.com/ethan-huo/automation-chatbot/internal/store"
)

// Notifier is told about every persisted task change.
type Notifier interface {
	BroadcastTaskUpdate(task *model.AssetTask)
}

// Options tune the poll loop.
type Options struct {
	PollIntervals     map[model.AssetType]time.Duration
	MaxWait           time.Duration
	HeartbeatInterval time.Duration
	MaxPollErrors     int
}

func OptionsFromConfig(cfg config.GenerationConfig) Options {
	return Options{
		PollIntervals: map[model.AssetType]time.Duration{
			model.AssetTypeAudio:               cfg.AudioPollInterval,
			model.AssetTypeImage:               cfg.ImagePollInterval,
			model.AssetTypeWhiteboardAnimation: cfg.AnimationPollInterval,
			model.AssetTypeVideoComposition:    cfg.AnimationPollInterval,
		},
		MaxWait:           cfg.MaxWait,
		HeartbeatInterval: cfg.HeartbeatInterval,
		MaxPollErrors:     cfg.MaxPollErrors,
	}
}

func (o Options) interval(t model.AssetType) time.Duration {
	if d := o.PollIntervals[t]; d > 0 {
		return d
	}
	return 3 * time.Second
}

// AssetWorker runs one asset task from submission to a terminal row.
type AssetWorker struct {
	store     store.TaskStore
	providers client.Registry
	storage   client.StorageClient
	notifier  Notifier
	opts      Options
	log       *logger.Logger
}

func NewAssetWorker(st store.TaskStore, providers client.Registry, storage client.StorageClient, notifier Notifier, opts Options, log *logger.Logger) *AssetWorker {
	if opts.MaxPollErrors <= 0 {
		opts.MaxPollErrors = 3
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 30 * time.Minute
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	return &AssetWorker{
		store:     st,
		providers: providers,
		storage:   storage,
		notifier:  notifier,
		opts:      opts,
		log:       log.With("worker", "AssetWorker"),
	}
}

// Process drives a task to completed or failed. It returns an error only
// when the row could not be read or written, or when ctx was cancelled
// with the task left for redelivery.
func (w *AssetWorker) Process(ctx context.Context, taskID string) (err error) {
	log := w.log.With("task_id", taskID)

	task, err := w.store.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Warn("task vanished before processing")
			return nil
		}
		return err
	}
	if task.Status.IsTerminal() {
		log.Info("task already terminal, skipping", "status", task.Status)
		return nil
	}
	log = log.With("story_id", task.StoryID, "scene_id", task.SceneID, "asset_type", task.AssetType)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing task", "panic", r)
			err = w.fail(ctx, task, fmt.Sprintf("internal error: %v", r))
		}
	}()

	provider, perr := w.providers.For(task.AssetType)
	if perr != nil {
		return w.fail(ctx, task, perr.Error())
	}

	jobID := task.MetaString(model.MetaProviderJobID)
	switch {
	case task.Status == model.TaskStatusProcessing && jobID == "":
		return w.fail(ctx, task, "interrupted before provider submission completed")
	case task.Status == model.TaskStatusProcessing:
		log.Info("resuming provider job", "provider_job_id", jobID)
	default:
		task, jobID, err = w.submit(ctx, task, provider)
		if err != nil {
			return err
		}
		if jobID == "" {
			return nil
		}
	}

	status, err := w.poll(ctx, task, provider, jobID)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("processing interrupted, left for redelivery", "provider_job_id", jobID)
			return ctx.Err()
		}
		return w.fail(ctx, task, err.Error())
	}
	if status.State == model.JobStatusFailed {
		detail := status.ErrorDetail
		if detail == "" {
			detail = "provider reported failure"
		}
		return w.fail(ctx, task, fmt.Sprintf("%s: %s", provider.Name(), detail))
	}

	return w.complete(ctx, task, provider, status)
}

// submit moves a pending task to processing and starts the provider job. An
// empty job id means the task was already failed.
func (w *AssetWorker) submit(ctx context.Context, task *model.AssetTask, provider client.Provider) (*model.AssetTask, string, error) {
	updated, err := w.update(ctx, task.ID, model.TaskUpdate{Status: model.TaskStatusProcessing})
	if err != nil {
		return nil, "", err
	}

	in, err := submitInput(updated)
	if err != nil {
		return updated, "", w.fail(ctx, updated, err.Error())
	}

	jobID, err := provider.Submit(ctx, in)
	if err != nil {
		return updated, "", w.fail(ctx, updated, err.Error())
	}
	if jobID == "" {
		return updated, "", w.fail(ctx, updated, provider.Name()+" returned an empty job id")
	}

	updated, err = w.update(ctx, task.ID, model.TaskUpdate{
		Status: model.TaskStatusProcessing,
		Metadata: map[string]interface{}{
			model.MetaProviderJobID: jobID,
			model.MetaProvider:      provider.Name(),
			model.MetaSubmittedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return nil, "", err
	}
	w.log.Info("provider job submitted", "task_id", task.ID, "provider", provider.Name(), "provider_job_id", jobID)
	return updated, jobID, nil
}

// poll checks the provider job until it reaches a terminal state. Transient
// poll errors are tolerated up to MaxPollErrors in a row.
func (w *AssetWorker) poll(ctx context.Context, task *model.AssetTask, provider client.Provider, jobID string) (*client.JobStatus, error) {
	interval := w.opts.interval(task.AssetType)
	deadline := time.Now().Add(w.opts.MaxWait)
	if ts, err := time.Parse(time.RFC3339Nano, task.MetaString(model.MetaSubmittedAt)); err == nil {
		deadline = ts.Add(w.opts.MaxWait)
	}
	lastBeat := time.Now()
	pollErrors := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		st, err := provider.PollStatus(ctx, jobID)
		if err == nil && st == nil {
			err = errors.New("empty status response")
		}
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			pollErrors++
			w.log.Warn("provider poll failed", "task_id", task.ID, "attempt", pollErrors, "error", err)
			if pollErrors >= w.opts.MaxPollErrors {
				return nil, fmt.Errorf("polling gave up after %d consecutive errors: %w", pollErrors, err)
			}
			if _, uerr := w.update(ctx, task.ID, model.TaskUpdate{
				Status:   model.TaskStatusProcessing,
				Metadata: map[string]interface{}{model.MetaLastPollError: err.Error()},
			}); uerr == nil {
				lastBeat = time.Now()
			}
		case st.State.IsTerminal():
			return st, nil
		default:
			pollErrors = 0
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%s job %s did not finish within %s", provider.Name(), jobID, w.opts.MaxWait)
		}
		if time.Since(lastBeat) >= w.opts.HeartbeatInterval {
			if err := w.store.Touch(ctx, task.ID); err != nil {
				w.log.Warn("heartbeat failed", "task_id", task.ID, "error", err)
			} else {
				lastBeat = time.Now()
			}
		}
	}
}

func (w *AssetWorker) complete(ctx context.Context, task *model.AssetTask, provider client.Provider, status *client.JobStatus) error {
	artifact, err := provider.FetchResult(ctx, status.ResultRef)
	if err != nil {
		return w.fail(ctx, task, err.Error())
	}
	if pp, ok := provider.(client.PostProcessor); ok {
		processed, err := pp.PostProcess(ctx, artifact)
		if err != nil {
			return w.fail(ctx, task, err.Error())
		}
		if processed.DurationSeconds == nil {
			processed.DurationSeconds = artifact.DurationSeconds
		}
		artifact = processed
	}
	if len(artifact.Data) == 0 {
		return w.fail(ctx, task, provider.Name()+" returned an empty artifact")
	}

	key := client.ObjectKey(task.StoryID, task.SceneID, string(task.AssetType), task.ID, artifact.Extension)
	url, err := w.storage.Upload(ctx, key, bytes.NewReader(artifact.Data), artifact.ContentType, map[string]string{
		"storyId":   task.StoryID,
		"sceneId":   task.SceneID,
		"assetType": string(task.AssetType),
		"taskId":    task.ID,
	})
	if err != nil {
		return w.fail(ctx, task, apperr.Persistence("upload "+key, err).Error())
	}

	meta := map[string]interface{}{}
	for k, v := range status.Extra {
		meta[k] = v
	}
	for k, v := range artifact.Metadata {
		meta[k] = v
	}
	if status.ResultRef != "" {
		meta[model.MetaProviderResultURL] = status.ResultRef
		if task.AssetType == model.AssetTypeImage {
			meta[model.MetaOriginalImageURL] = status.ResultRef
		}
	}

	size := int64(len(artifact.Data))
	contentType := artifact.ContentType
	upd := model.TaskUpdate{
		Status:          model.TaskStatusCompleted,
		ResultURL:       &url,
		ResultKey:       &key,
		ContentType:     &contentType,
		FileSizeBytes:   &size,
		DurationSeconds: artifact.DurationSeconds,
		Metadata:        meta,
	}
	if _, err := w.update(ctx, task.ID, upd); err != nil {
		w.log.Error("failed to record completed task", "task_id", task.ID, "key", key, "error", err)
		if derr := w.storage.Delete(context.WithoutCancel(ctx), key); derr != nil {
			w.log.Warn("failed to delete orphaned object", "key", key, "error", derr)
		}
		return w.fail(ctx, task, "failed to record result: "+err.Error())
	}

	w.log.Info("asset task completed", "task_id", task.ID, "asset_type", task.AssetType, "key", key, "bytes", size)
	return nil
}

// fail records a terminal failure. It writes even when ctx is cancelled.
func (w *AssetWorker) fail(ctx context.Context, task *model.AssetTask, msg string) error {
	w.log.Warn("asset task failed", "task_id", task.ID, "asset_type", task.AssetType, "reason", msg)
	_, err := w.update(context.WithoutCancel(ctx), task.ID, model.TaskUpdate{
		Status:       model.TaskStatusFailed,
		ErrorMessage: &msg,
	})
	if errors.Is(err, apperr.ErrInvalidTransition) {
		// Reaped or finished elsewhere.
		return nil
	}
	return err
}

func (w *AssetWorker) update(ctx context.Context, id string, upd model.TaskUpdate) (*model.AssetTask, error) {
	task, err := w.store.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	if w.notifier != nil {
		w.notifier.BroadcastTaskUpdate(task)
	}
	return task, nil
}

func submitInput(task *model.AssetTask) (*client.SubmitInput, error) {
	in := &client.SubmitInput{TaskID: task.ID}
	switch task.AssetType {
	case model.AssetTypeAudio:
		in.Audio = &model.AudioParams{}
		return in, task.DecodeParams(in.Audio)
	case model.AssetTypeImage:
		in.Image = &model.ImageParams{}
		return in, task.DecodeParams(in.Image)
	case model.AssetTypeWhiteboardAnimation:
		in.Animation = &model.AnimationParams{}
		return in, task.DecodeParams(in.Animation)
	case model.AssetTypeVideoComposition:
		in.Composition = &model.CompositionParams{}
		return in, task.DecodeParams(in.Composition)
	default:
		return nil, fmt.Errorf("asset type %s cannot be generated", task.AssetType)
	}
}

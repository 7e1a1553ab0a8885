package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ethan-huo/automation-chatbot/internal/apperr"
	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/model"
)

// ErrDuplicate is returned by Create when the row would violate the
// one-animation-per-scene constraint.
var ErrDuplicate = errors.New("asset task already exists")

// TaskStore is the durable CRUD surface over asset tasks.
type TaskStore interface {
	Create(ctx context.Context, in NewTask) (*model.AssetTask, error)
	Get(ctx context.Context, id string) (*model.AssetTask, error)
	FindExisting(ctx context.Context, storyID, sceneID string, assetType model.AssetType) (*model.AssetTask, error)
	FindLatest(ctx context.Context, storyID, sceneID string, assetType model.AssetType, status model.TaskStatus) (*model.AssetTask, error)
	Update(ctx context.Context, id string, upd model.TaskUpdate) (*model.AssetTask, error)
	Touch(ctx context.Context, id string) error
	ListByStory(ctx context.Context, storyID string) ([]model.AssetTask, error)
	ListActive(ctx context.Context) ([]model.AssetTask, error)
	FailStale(ctx context.Context, cutoff time.Time, message string) ([]model.AssetTask, error)
}

// NewTask is the input of Create. Rows always start as pending.
type NewTask struct {
	StoryID     string
	SceneID     string
	AssetType   model.AssetType
	ContentType string
	Metadata    map[string]interface{}
}

type TaskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) *TaskRepo {
	return &TaskRepo{
		db:  db,
		log: baseLog.With("repo", "TaskRepo"),
	}
}

func (r *TaskRepo) Create(ctx context.Context, in NewTask) (*model.AssetTask, error) {
	if in.StoryID == "" || in.SceneID == "" || !in.AssetType.Valid() {
		return nil, fmt.Errorf("create task: incomplete key (%q, %q, %q)", in.StoryID, in.SceneID, in.AssetType)
	}
	meta := in.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	task := &model.AssetTask{
		ID:          uuid.NewString(),
		StoryID:     in.StoryID,
		SceneID:     in.SceneID,
		AssetType:   in.AssetType,
		Status:      model.TaskStatusPending,
		ContentType: in.ContentType,
		Metadata:    meta,
	}
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, apperr.Persistence("create task", err)
	}
	return task, nil
}

func (r *TaskRepo) Get(ctx context.Context, id string) (*model.AssetTask, error) {
	var task model.AssetTask
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("task %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Persistence("get task", err)
	}
	return &task, nil
}

// FindExisting returns the most recent task for the key, or nil.
func (r *TaskRepo) FindExisting(ctx context.Context, storyID, sceneID string, assetType model.AssetType) (*model.AssetTask, error) {
	return r.FindLatest(ctx, storyID, sceneID, assetType, "")
}

// FindLatest returns the most recent task for the key, optionally filtered
// by status, or nil when none matches.
func (r *TaskRepo) FindLatest(ctx context.Context, storyID, sceneID string, assetType model.AssetType, status model.TaskStatus) (*model.AssetTask, error) {
	q := r.db.WithContext(ctx).
		Where("story_id = ? AND scene_id = ? AND asset_type = ?", storyID, sceneID, assetType)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var tasks []model.AssetTask
	if err := q.Order("created_at DESC").Order("id DESC").Limit(1).Find(&tasks).Error; err != nil {
		return nil, apperr.Persistence("find task", err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

// Update applies upd to the task. Status changes must move forward along
// pending -> processing -> completed|failed; terminal rows are immutable.
func (r *TaskRepo) Update(ctx context.Context, id string, upd model.TaskUpdate) (*model.AssetTask, error) {
	var out model.AssetTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur model.AssetTask
		if err := tx.Where("id = ?", id).First(&cur).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("task %s: %w", id, apperr.ErrNotFound)
			}
			return err
		}
		if cur.Status.IsTerminal() {
			return fmt.Errorf("task %s is %s: %w", id, cur.Status, apperr.ErrInvalidTransition)
		}

		next := cur.Status
		if upd.Status != "" {
			if !cur.Status.CanTransitionTo(upd.Status) {
				return fmt.Errorf("task %s: %s -> %s: %w", id, cur.Status, upd.Status, apperr.ErrInvalidTransition)
			}
			next = upd.Status
		}
		if err := checkResultFields(next, upd); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"status":     next,
			"updated_at": time.Now(),
		}
		if upd.ResultURL != nil {
			updates["result_url"] = *upd.ResultURL
		}
		if upd.ResultKey != nil {
			updates["result_key"] = *upd.ResultKey
		}
		if upd.ContentType != nil {
			updates["content_type"] = *upd.ContentType
		}
		if upd.FileSizeBytes != nil {
			updates["file_size_bytes"] = *upd.FileSizeBytes
		}
		if upd.DurationSeconds != nil {
			updates["duration_seconds"] = *upd.DurationSeconds
		}
		if upd.ErrorMessage != nil {
			updates["error_message"] = *upd.ErrorMessage
		}
		if len(upd.Metadata) > 0 {
			merged := make(map[string]interface{}, len(cur.Metadata)+len(upd.Metadata))
			for k, v := range cur.Metadata {
				merged[k] = v
			}
			for k, v := range upd.Metadata {
				merged[k] = v
			}
			updates["metadata"] = datatypes.JSONMap(merged)
		}

		res := tx.Model(&model.AssetTask{}).
			Where("id = ? AND status = ?", id, cur.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("task %s changed concurrently: %w", id, apperr.ErrInvalidTransition)
		}
		return tx.Where("id = ?", id).First(&out).Error
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrInvalidTransition) {
			return nil, err
		}
		var ve *apperr.ValidationError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, apperr.Persistence("update task", err)
	}
	return &out, nil
}

// checkResultFields keeps resultUrl/resultKey tied to the completed status
// and errorMessage tied to the failed status.
func checkResultFields(next model.TaskStatus, upd model.TaskUpdate) error {
	hasResult := upd.ResultURL != nil || upd.ResultKey != nil
	switch next {
	case model.TaskStatusCompleted:
		if upd.ResultURL == nil || *upd.ResultURL == "" || upd.ResultKey == nil || *upd.ResultKey == "" {
			return apperr.Validation("resultUrl", "completed tasks require resultUrl and resultKey")
		}
	case model.TaskStatusFailed:
		if hasResult {
			return apperr.Validation("resultUrl", "failed tasks cannot carry a result")
		}
		if upd.ErrorMessage == nil || strings.TrimSpace(*upd.ErrorMessage) == "" {
			return apperr.Validation("errorMessage", "failed tasks require an error message")
		}
	default:
		if hasResult {
			return apperr.Validation("resultUrl", "only completed tasks carry a result")
		}
		if upd.ErrorMessage != nil {
			return apperr.Validation("errorMessage", "only failed tasks carry an error message")
		}
	}
	return nil
}

// Touch records a heartbeat on a processing task.
func (r *TaskRepo) Touch(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).
		Model(&model.AssetTask{}).
		Where("id = ? AND status = ?", id, model.TaskStatusProcessing).
		Update("updated_at", time.Now()).Error
	if err != nil {
		return apperr.Persistence("touch task", err)
	}
	return nil
}

// ListByStory returns every task of a story in creation order.
func (r *TaskRepo) ListByStory(ctx context.Context, storyID string) ([]model.AssetTask, error) {
	var tasks []model.AssetTask
	err := r.db.WithContext(ctx).
		Where("story_id = ?", storyID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, apperr.Persistence("list tasks", err)
	}
	return tasks, nil
}

// ListActive returns every pending or processing task, oldest first.
func (r *TaskRepo) ListActive(ctx context.Context) ([]model.AssetTask, error) {
	active := []model.TaskStatus{model.TaskStatusPending, model.TaskStatusProcessing}

	var tasks []model.AssetTask
	err := r.db.WithContext(ctx).
		Where("status IN ?", active).
		Order("created_at ASC").
		Order("id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, apperr.Persistence("list active tasks", err)
	}
	return tasks, nil
}

// FailStale marks pending or processing tasks with no progress since cutoff
// as failed and returns the rows it changed.
func (r *TaskRepo) FailStale(ctx context.Context, cutoff time.Time, message string) ([]model.AssetTask, error) {
	active := []model.TaskStatus{model.TaskStatusPending, model.TaskStatusProcessing}

	var stale []model.AssetTask
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", active, cutoff).
		Order("created_at ASC").
		Find(&stale).Error
	if err != nil {
		return nil, apperr.Persistence("find stale tasks", err)
	}

	var failed []model.AssetTask
	for _, t := range stale {
		msg := fmt.Sprintf("%s since %s", message, t.UpdatedAt.UTC().Format(time.RFC3339))
		res := r.db.WithContext(ctx).
			Model(&model.AssetTask{}).
			Where("id = ? AND status IN ? AND updated_at < ?", t.ID, active, cutoff).
			Updates(map[string]interface{}{
				"status":        model.TaskStatusFailed,
				"error_message": msg,
				"updated_at":    time.Now(),
			})
		if res.Error != nil {
			r.log.Warn("failed to reap stale task", "task_id", t.ID, "error", res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}
		t.Status = model.TaskStatusFailed
		t.ErrorMessage = msg
		failed = append(failed, t)
	}
	return failed, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Metadata keys shared by the orchestrator, the gate and the read model.
const (
	MetaProviderJobID       = "providerJobId"
	MetaProvider            = "provider"
	MetaSourceImageTaskID   = "sourceImageTaskId"
	MetaSourceImageURL      = "sourceImageUrl"
	MetaSourceAudioTaskID   = "sourceAudioTaskId"
	MetaSourceAudioURL      = "sourceAudioUrl"
	MetaAudioDuration       = "audioDuration"
	MetaTargetDuration      = "targetDurationSeconds"
	MetaAnimationType       = "animationType"
	MetaImageWidth          = "imageWidth"
	MetaImageHeight         = "imageHeight"
	MetaOriginalImageURL    = "originalImageUrl"
	MetaQuadrantExtracted   = "quadrantExtracted"
	MetaWordTimings         = "wordTimings"
	MetaAudioInfo           = "audioInfo"
	MetaAudioInfoError      = "audioInfoError"
	MetaGenerationParams    = "params"
	MetaSubmittedAt         = "submittedAt"
	MetaLastPollError       = "lastPollError"
	MetaProviderResultURL   = "providerResultUrl"
	MetaSketchImageURL      = "sketchImageUrl"
	MetaSceneIDs            = "sceneIds"
	MetaTotalScenes         = "totalScenes"
	MetaCompositionType     = "compositionType"
	AnimationTypeWhiteboard = "whiteboard_drawing"
	CompositionTypeStory    = "story_video"
)

// CompositionSceneID keys story-level composition rows. It is reserved and
// never names a shot.
const CompositionSceneID = "composition"

// AssetTask is the unit of generation work and the only persisted entity.
type AssetTask struct {
	ID              string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	StoryID         string            `gorm:"column:story_id;not null;index:idx_asset_tasks_story_scene,priority:1" json:"storyId"`
	SceneID         string            `gorm:"column:scene_id;not null;index:idx_asset_tasks_story_scene,priority:2" json:"sceneId"`
	AssetType       AssetType         `gorm:"column:asset_type;type:varchar(32);not null;index" json:"assetType"`
	Status          TaskStatus        `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	ResultURL       string            `gorm:"column:result_url" json:"resultUrl,omitempty"`
	ResultKey       string            `gorm:"column:result_key" json:"resultKey,omitempty"`
	ContentType     string            `gorm:"column:content_type" json:"contentType,omitempty"`
	FileSizeBytes   int64             `gorm:"column:file_size_bytes;not null;default:0" json:"fileSizeBytes,omitempty"`
	DurationSeconds *float64          `gorm:"column:duration_seconds" json:"durationSeconds,omitempty"`
	ErrorMessage    string            `gorm:"column:error_message" json:"errorMessage,omitempty"`
	Metadata        datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time         `gorm:"not null;index" json:"createdAt"`
	UpdatedAt       time.Time         `gorm:"not null;index" json:"updatedAt"`
}

func (AssetTask) TableName() string { return "asset_tasks" }

// MetaString returns a string metadata value or "".
func (t *AssetTask) MetaString(key string) string {
	if t == nil || t.Metadata == nil {
		return ""
	}
	if s, ok := t.Metadata[key].(string); ok {
		return s
	}
	return ""
}

// MetaFloat returns a numeric metadata value. Values read back from the
// JSON column arrive as json.Number.
func (t *AssetTask) MetaFloat(key string) (float64, bool) {
	if t == nil || t.Metadata == nil {
		return 0, false
	}
	switch v := t.Metadata[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// TaskUpdate carries the mutable fields of a task. Nil fields are left
// untouched; Metadata is merged key by key into the stored map.
type TaskUpdate struct {
	Status          TaskStatus
	ResultURL       *string
	ResultKey       *string
	ContentType     *string
	FileSizeBytes   *int64
	DurationSeconds *float64
	ErrorMessage    *string
	Metadata        map[string]interface{}
}

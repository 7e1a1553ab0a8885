package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ethan-huo/automation-chatbot/internal/apperr"
	"github.com/ethan-huo/automation-chatbot/internal/model"
	"github.com/ethan-huo/automation-chatbot/internal/store"
)

// Gate checks the preconditions of downstream tasks.
type Gate struct {
	store store.TaskStore
}

func NewGate(st store.TaskStore) *Gate {
	return &Gate{store: st}
}

// GateResult carries the sources an animation derives from.
type GateResult struct {
	Image         *model.AssetTask
	Audio         *model.AssetTask
	AudioDuration float64
	// TargetSeconds is the audio duration rounded up to a whole second.
	TargetSeconds int
}

// CanCreateAnimation requires a completed image task and a completed audio
// task for the scene with a finite positive duration.
func (g *Gate) CanCreateAnimation(ctx context.Context, storyID, sceneID, imageTaskID string) (*GateResult, error) {
	image, err := g.store.Get(ctx, imageTaskID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Dependency(apperr.ReasonSourceNotCompleted, "image task %s not found", imageTaskID)
	}
	if err != nil {
		return nil, err
	}
	if image.StoryID != storyID || image.SceneID != sceneID {
		return nil, apperr.Validation("imageTaskId", "task %s does not belong to scene %s of story %s", imageTaskID, sceneID, storyID)
	}
	if image.AssetType != model.AssetTypeImage {
		return nil, apperr.Dependency(apperr.ReasonSourceNotCompleted, "task %s is %s, not an image", imageTaskID, image.AssetType)
	}
	if image.Status != model.TaskStatusCompleted {
		return nil, apperr.Dependency(apperr.ReasonSourceNotCompleted, "image task %s is %s", imageTaskID, image.Status)
	}

	audio, err := g.store.FindLatest(ctx, storyID, sceneID, model.AssetTypeAudio, model.TaskStatusCompleted)
	if err != nil {
		return nil, err
	}
	if audio == nil {
		return nil, apperr.Dependency(apperr.ReasonAudioMissing, "no completed audio for scene %s", sceneID)
	}

	if audio.DurationSeconds == nil {
		return nil, apperr.Dependency(apperr.ReasonInvalidDuration, "audio task %s has no duration", audio.ID)
	}
	d := *audio.DurationSeconds
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return nil, apperr.Dependency(apperr.ReasonInvalidDuration, "audio task %s has duration %v", audio.ID, d)
	}

	return &GateResult{
		Image:         image,
		Audio:         audio,
		AudioDuration: d,
		TargetSeconds: int(math.Ceil(d)),
	}, nil
}

// CanComposeVideo requires a completed audio task and a completed whiteboard
// animation for every scene. All gaps are reported together.
func (g *Gate) CanComposeVideo(ctx context.Context, storyID string, sceneIDs []string) ([]model.CompositionScene, error) {
	scenes := make([]model.CompositionScene, 0, len(sceneIDs))
	var missing []string
	for _, sceneID := range sceneIDs {
		audio, err := g.store.FindLatest(ctx, storyID, sceneID, model.AssetTypeAudio, model.TaskStatusCompleted)
		if err != nil {
			return nil, err
		}
		anim, err := g.store.FindLatest(ctx, storyID, sceneID, model.AssetTypeWhiteboardAnimation, model.TaskStatusCompleted)
		if err != nil {
			return nil, err
		}
		if audio == nil {
			missing = append(missing, fmt.Sprintf("Scene %s: missing audio", sceneID))
		}
		if anim == nil {
			missing = append(missing, fmt.Sprintf("Scene %s: missing whiteboard animation", sceneID))
		}
		if audio == nil || anim == nil {
			continue
		}

		sc := model.CompositionScene{
			SceneID:         sceneID,
			AudioTaskID:     audio.ID,
			AudioURL:        audio.ResultURL,
			AnimationTaskID: anim.ID,
			AnimationURL:    anim.ResultURL,
		}
		if audio.DurationSeconds != nil {
			sc.AudioDuration = *audio.DurationSeconds
		}
		scenes = append(scenes, sc)
	}
	if len(missing) > 0 {
		return nil, apperr.Dependency(apperr.ReasonAssetsMissing, "Missing required assets: %s", strings.Join(missing, ", "))
	}
	return scenes, nil
}

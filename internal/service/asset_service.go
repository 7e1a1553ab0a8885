package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ethan-huo/automation-chatbot/internal/apperr"
	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/model"
	"github.com/ethan-huo/automation-chatbot/internal/snapshot"
	"github.com/ethan-huo/automation-chatbot/internal/store"
)

// MessageAnimationExists is returned with an existing animation task.
const MessageAnimationExists = "Whiteboard animation task already exists"

// Dispatcher hands a freshly created task to background execution. It must
// not wait for the task to finish.
type Dispatcher interface {
	Dispatch(ctx context.Context, task *model.AssetTask) error
}

// Defaults are applied to requests that leave generation options empty.
type Defaults struct {
	VoiceID string
	BotType model.BotType
}

// AssetService is the caller-facing API of the asset pipeline.
type AssetService struct {
	store      store.TaskStore
	dispatcher Dispatcher
	gate       *Gate
	defaults   Defaults
	log        *logger.Logger
}

func NewAssetService(st store.TaskStore, dispatcher Dispatcher, defaults Defaults, log *logger.Logger) *AssetService {
	if defaults.VoiceID == "" {
		defaults.VoiceID = "English_Persuasive_Man"
	}
	if defaults.BotType == "" {
		defaults.BotType = model.BotTypeMidjourney
	}
	return &AssetService{
		store:      st,
		dispatcher: dispatcher,
		gate:       NewGate(st),
		defaults:   defaults,
		log:        log.With("service", "AssetService"),
	}
}

// CreateAudioTask records a pending narration task and dispatches it.
func (s *AssetService) CreateAudioTask(ctx context.Context, req *model.CreateAudioTaskRequest) (*model.TaskCreatedResponse, error) {
	if err := requireKey(req.StoryID, req.SceneID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, apperr.Validation("text", "narration text is required")
	}

	params := model.AudioParams{
		Text:    req.Text,
		VoiceID: req.VoiceID,
		Speed:   1.0,
		Volume:  1.0,
	}
	if params.VoiceID == "" {
		params.VoiceID = s.defaults.VoiceID
	}
	if req.Speed != nil {
		params.Speed = *req.Speed
	}
	if req.Volume != nil {
		params.Volume = *req.Volume
	}
	if req.Pitch != nil {
		params.Pitch = *req.Pitch
	}

	return s.createAndDispatch(ctx, req.StoryID, req.SceneID, model.AssetTypeAudio, "audio/mpeg", params, nil)
}

// CreateImageTask records a pending image task and dispatches it.
func (s *AssetService) CreateImageTask(ctx context.Context, req *model.CreateImageTaskRequest) (*model.TaskCreatedResponse, error) {
	if err := requireKey(req.StoryID, req.SceneID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, apperr.Validation("prompt", "image prompt is required")
	}
	botType := req.BotType
	if botType == "" {
		botType = s.defaults.BotType
	}
	if botType != model.BotTypeMidjourney && botType != model.BotTypeNiji {
		return nil, apperr.Validation("botType", "unsupported bot type %q", botType)
	}

	params := model.ImageParams{Prompt: req.Prompt, BotType: botType}
	return s.createAndDispatch(ctx, req.StoryID, req.SceneID, model.AssetTypeImage, "image/png", params, nil)
}

// CreateAnimationTask gates on the scene's image and audio, then returns the
// scene's existing animation task or creates one.
func (s *AssetService) CreateAnimationTask(ctx context.Context, req *model.CreateAnimationTaskRequest) (*model.TaskCreatedResponse, error) {
	if err := requireKey(req.StoryID, req.SceneID); err != nil {
		return nil, err
	}
	if req.ImageTaskID == "" {
		return nil, apperr.Validation("imageTaskId", "image task id is required")
	}

	src, err := s.gate.CanCreateAnimation(ctx, req.StoryID, req.SceneID, req.ImageTaskID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindExisting(ctx, req.StoryID, req.SceneID, model.AssetTypeWhiteboardAnimation)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existingResponse(existing), nil
	}

	params := model.AnimationParams{
		ImageURL:        src.Image.ResultURL,
		DurationSeconds: src.TargetSeconds,
	}
	extra := map[string]interface{}{
		model.MetaSourceImageTaskID: src.Image.ID,
		model.MetaSourceImageURL:    src.Image.ResultURL,
		model.MetaSourceAudioTaskID: src.Audio.ID,
		model.MetaSourceAudioURL:    src.Audio.ResultURL,
		model.MetaAudioDuration:     src.AudioDuration,
		model.MetaTargetDuration:    src.TargetSeconds,
		model.MetaAnimationType:     model.AnimationTypeWhiteboard,
	}

	resp, err := s.createAndDispatch(ctx, req.StoryID, req.SceneID, model.AssetTypeWhiteboardAnimation, "video/mp4", params, extra)
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a concurrent create; the winner's row is the answer.
		existing, ferr := s.store.FindExisting(ctx, req.StoryID, req.SceneID, model.AssetTypeWhiteboardAnimation)
		if ferr != nil {
			return nil, ferr
		}
		if existing == nil {
			return nil, apperr.Persistence("create animation task", err)
		}
		return existingResponse(existing), nil
	}
	return resp, err
}

// CreateVideoComposition joins the finished scenes of a story into one
// video task. The task is keyed to the story, not to a scene.
func (s *AssetService) CreateVideoComposition(ctx context.Context, storyID string, req *model.CreateCompositionRequest) (*model.TaskCreatedResponse, error) {
	if strings.TrimSpace(storyID) == "" {
		return nil, apperr.Validation("storyId", "story id is required")
	}
	if len(req.SceneIDs) == 0 {
		return nil, apperr.Validation("sceneIds", "at least one scene is required")
	}
	seen := make(map[string]bool, len(req.SceneIDs))
	for _, id := range req.SceneIDs {
		if err := requireKey(storyID, id); err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, apperr.Validation("sceneIds", "duplicate scene %s", id)
		}
		seen[id] = true
	}

	scenes, err := s.gate.CanComposeVideo(ctx, storyID, req.SceneIDs)
	if err != nil {
		return nil, err
	}

	extra := map[string]interface{}{
		model.MetaSceneIDs:        req.SceneIDs,
		model.MetaTotalScenes:     len(scenes),
		model.MetaCompositionType: model.CompositionTypeStory,
	}
	resp, err := s.createAndDispatch(ctx, storyID, model.CompositionSceneID, model.AssetTypeVideoComposition, "video/mp4",
		model.CompositionParams{Scenes: scenes}, extra)
	if err != nil {
		return nil, err
	}
	resp.SceneCount = len(scenes)
	return resp, nil
}

// GenerateStoryAssets creates an audio and an image task for every scene.
// All creations run concurrently; a failure does not stop the others.
func (s *AssetService) GenerateStoryAssets(ctx context.Context, storyID string, req *model.GenerateStoryAssetsRequest) (*model.GenerateStoryAssetsResponse, error) {
	if strings.TrimSpace(storyID) == "" {
		return nil, apperr.Validation("storyId", "story id is required")
	}
	if len(req.Scenes) == 0 {
		return nil, apperr.Validation("scenes", "at least one scene is required")
	}
	seen := make(map[string]bool, len(req.Scenes))
	for _, sc := range req.Scenes {
		if sc.SceneID == "" {
			return nil, apperr.Validation("sceneId", "scene id is required")
		}
		if seen[sc.SceneID] {
			return nil, apperr.Validation("sceneId", "duplicate scene %s", sc.SceneID)
		}
		seen[sc.SceneID] = true
	}

	out := &model.GenerateStoryAssetsResponse{
		StoryID: storyID,
		Scenes:  make([]model.SceneTasks, len(req.Scenes)),
	}

	var g errgroup.Group
	for i, sc := range req.Scenes {
		i, sc := i, sc
		out.Scenes[i].SceneID = sc.SceneID

		g.Go(func() error {
			resp, err := s.CreateAudioTask(ctx, &model.CreateAudioTaskRequest{
				StoryID: storyID,
				SceneID: sc.SceneID,
				Text:    sc.NarrationText,
				VoiceID: req.VoiceID,
			})
			if err != nil {
				return fmt.Errorf("scene %s audio: %w", sc.SceneID, err)
			}
			out.Scenes[i].AudioTaskID = resp.TaskID
			return nil
		})
		g.Go(func() error {
			resp, err := s.CreateImageTask(ctx, &model.CreateImageTaskRequest{
				StoryID: storyID,
				SceneID: sc.SceneID,
				Prompt:  sc.VisualConceptPrompt,
				BotType: req.BotType,
			})
			if err != nil {
				return fmt.Errorf("scene %s image: %w", sc.SceneID, err)
			}
			out.Scenes[i].ImageTaskID = resp.TaskID
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.log.Error("story fan-out incomplete", "story_id", storyID, "error", err)
		return out, err
	}

	s.log.Info("story assets dispatched", "story_id", storyID, "scenes", len(req.Scenes))
	return out, nil
}

// GetStoryAssetSnapshot recomputes the read model from the current rows.
func (s *AssetService) GetStoryAssetSnapshot(ctx context.Context, storyID string) (*model.StoryAssetSnapshot, error) {
	if strings.TrimSpace(storyID) == "" {
		return nil, apperr.Validation("storyId", "story id is required")
	}
	tasks, err := s.store.ListByStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	snap := snapshot.Build(storyID, tasks)
	return &snap, nil
}

func (s *AssetService) GetTask(ctx context.Context, taskID string) (*model.AssetTask, error) {
	return s.store.Get(ctx, taskID)
}

func (s *AssetService) createAndDispatch(ctx context.Context, storyID, sceneID string, assetType model.AssetType, contentType string, params interface{}, extra map[string]interface{}) (*model.TaskCreatedResponse, error) {
	paramMap, err := model.ToMap(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	meta := map[string]interface{}{model.MetaGenerationParams: paramMap}
	for k, v := range extra {
		meta[k] = v
	}

	task, err := s.store.Create(ctx, store.NewTask{
		StoryID:     storyID,
		SceneID:     sceneID,
		AssetType:   assetType,
		ContentType: contentType,
		Metadata:    meta,
	})
	if err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, task); err != nil {
		s.log.Error("dispatch failed", "task_id", task.ID, "asset_type", assetType, "error", err)
		msg := "dispatch failed: " + err.Error()
		if _, uerr := s.store.Update(context.WithoutCancel(ctx), task.ID, model.TaskUpdate{
			Status:       model.TaskStatusFailed,
			ErrorMessage: &msg,
		}); uerr != nil {
			s.log.Error("failed to mark undispatched task", "task_id", task.ID, "error", uerr)
		}
		return nil, apperr.Persistence("dispatch task", err)
	}

	s.log.Info("asset task created", "task_id", task.ID, "story_id", storyID, "scene_id", sceneID, "asset_type", assetType)
	return &model.TaskCreatedResponse{
		TaskID:    task.ID,
		AssetType: assetType,
		Status:    task.Status,
	}, nil
}

func existingResponse(t *model.AssetTask) *model.TaskCreatedResponse {
	return &model.TaskCreatedResponse{
		TaskID:    t.ID,
		AssetType: t.AssetType,
		Status:    t.Status,
		Existing:  true,
		Message:   MessageAnimationExists,
	}
}

func requireKey(storyID, sceneID string) error {
	if strings.TrimSpace(storyID) == "" {
		return apperr.Validation("storyId", "story id is required")
	}
	if strings.TrimSpace(sceneID) == "" {
		return apperr.Validation("sceneId", "scene id is required")
	}
	if sceneID == model.CompositionSceneID {
		return apperr.Validation("sceneId", "scene id %q is reserved", sceneID)
	}
	return nil
}

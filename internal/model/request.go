package model

// CreateAudioTaskRequest starts narration synthesis for one scene.
type CreateAudioTaskRequest struct {
	StoryID string   `json:"storyId" validate:"required,max=64"`
	SceneID string   `json:"sceneId" validate:"required,max=64"`
	Text    string   `json:"text" validate:"required,max=10000"`
	VoiceID string   `json:"voiceId" validate:"omitempty,max=128"`
	Speed   *float64 `json:"speed" validate:"omitempty,min=0.5,max=2"`
	Volume  *float64 `json:"volume" validate:"omitempty,gt=0,max=10"`
	Pitch   *int     `json:"pitch" validate:"omitempty,min=-12,max=12"`
}

// CreateImageTaskRequest starts image generation for one scene.
type CreateImageTaskRequest struct {
	StoryID string  `json:"storyId" validate:"required,max=64"`
	SceneID string  `json:"sceneId" validate:"required,max=64"`
	Prompt  string  `json:"prompt" validate:"required,max=4000"`
	BotType BotType `json:"botType" validate:"omitempty,oneof=MID_JOURNEY NIJI_JOURNEY"`
}

// CreateAnimationTaskRequest derives a whiteboard animation from a completed
// image and the scene's completed narration.
type CreateAnimationTaskRequest struct {
	StoryID     string `json:"storyId" validate:"required,max=64"`
	SceneID     string `json:"sceneId" validate:"required,max=64"`
	ImageTaskID string `json:"imageTaskId" validate:"required,max=64"`
}

// SceneInput is one scene of a generated script.
type SceneInput struct {
	SceneID             string `json:"sceneId" validate:"required,max=64"`
	NarrationText       string `json:"narrationText" validate:"required,max=10000"`
	VisualConceptPrompt string `json:"visualConceptPrompt" validate:"required,max=4000"`
}

// GenerateStoryAssetsRequest fans out audio and image tasks for every scene.
type GenerateStoryAssetsRequest struct {
	Scenes  []SceneInput `json:"scenes" validate:"required,min=1,max=100,dive"`
	VoiceID string       `json:"voiceId" validate:"omitempty,max=128"`
	BotType BotType      `json:"botType" validate:"omitempty,oneof=MID_JOURNEY NIJI_JOURNEY"`
}

// CreateCompositionRequest joins finished scenes into one story video, in
// the given order.
type CreateCompositionRequest struct {
	SceneIDs []string `json:"sceneIds" validate:"required,min=1,max=100,dive,required,max=64"`
}

// TaskCreatedResponse is returned by the task creation endpoints.
type TaskCreatedResponse struct {
	TaskID    string     `json:"taskId"`
	AssetType AssetType  `json:"assetType"`
	Status    TaskStatus `json:"status"`
	Existing  bool       `json:"existing,omitempty"`
	Message   string     `json:"message,omitempty"`
	// SceneCount is set for composition tasks.
	SceneCount int `json:"sceneCount,omitempty"`
}

// SceneTasks lists the tasks created for a scene by the story fan-out.
type SceneTasks struct {
	SceneID     string `json:"sceneId"`
	AudioTaskID string `json:"audioTaskId"`
	ImageTaskID string `json:"imageTaskId"`
}

type GenerateStoryAssetsResponse struct {
	StoryID string       `json:"storyId"`
	Scenes  []SceneTasks `json:"scenes"`
}

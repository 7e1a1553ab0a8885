package model

// SceneAssets groups the tasks of one scene. A scene is one shot.
type SceneAssets struct {
	SceneID             string      `json:"sceneId"`
	Audio               *AssetTask  `json:"audio"`
	Images              []AssetTask `json:"images"`
	WhiteboardAnimation *AssetTask  `json:"whiteboardAnimation"`
	TotalTasks          int         `json:"totalTasks"`
	CompletedTasks      int         `json:"completedTasks"`
}

// StoryAssetSnapshot is the derived, never persisted view of a story.
type StoryAssetSnapshot struct {
	StoryID          string        `json:"storyId"`
	Scenes           []SceneAssets `json:"scenes"`
	TotalShots       int           `json:"totalShots"`
	CompletedShots   int           `json:"completedShots"`
	TotalTasks       int           `json:"totalTasks"`
	CompletedTasks   int           `json:"completedTasks"`
	OutstandingTasks int           `json:"outstandingTasks"`
	IsAllCompleted   bool          `json:"isAllCompleted"`
	// Composition is the most recent story video task. It is not a shot.
	Composition *AssetTask `json:"composition,omitempty"`
}

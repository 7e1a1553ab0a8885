package model

// WebSocket message types
const (
	WSMessageTypeTaskUpdate = "task_update"
	WSMessageTypeSnapshot   = "snapshot"
	WSMessageTypeSettled    = "settled"
	WSMessageTypeError      = "error"
	WSMessageTypePing       = "ping"
	WSMessageTypePong       = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSTaskUpdateMessage is pushed by the worker whenever a task row changes.
type WSTaskUpdateMessage struct {
	Type    string     `json:"type"`
	StoryID string     `json:"storyId"`
	TaskID  string     `json:"taskId"`
	SceneID string     `json:"sceneId"`
	Asset   AssetType  `json:"assetType"`
	Status  TaskStatus `json:"status"`
	URL     string     `json:"url,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// WSSnapshotMessage carries the merged client state after a poll.
type WSSnapshotMessage struct {
	Type     string      `json:"type"`
	StoryID  string      `json:"storyId"`
	Snapshot interface{} `json:"snapshot"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type    string  `json:"type"`
	StoryID string  `json:"storyId"`
	Error   WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

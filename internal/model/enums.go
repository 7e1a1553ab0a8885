package model

// Asset types
type AssetType string

const (
	AssetTypeAudio               AssetType = "audio"
	AssetTypeImage               AssetType = "image"
	AssetTypeWhiteboardAnimation AssetType = "whiteboard_animation"
	AssetTypeVideoComposition    AssetType = "video_composition"
)

var ValidAssetTypes = []AssetType{
	AssetTypeAudio, AssetTypeImage, AssetTypeWhiteboardAnimation, AssetTypeVideoComposition,
}

func (t AssetType) Valid() bool {
	for _, v := range ValidAssetTypes {
		if t == v {
			return true
		}
	}
	return false
}

// TaskStatus is the persisted lifecycle of an asset task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Rank orders statuses along the state machine. Terminal statuses share
// the highest rank.
func (s TaskStatus) Rank() int {
	switch s {
	case TaskStatusPending:
		return 0
	case TaskStatusProcessing:
		return 1
	case TaskStatusCompleted, TaskStatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether s -> next is a legal forward move.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusProcessing || next == TaskStatusFailed
	case TaskStatusProcessing:
		return next == TaskStatusProcessing || next.IsTerminal()
	default:
		return false
	}
}

// Predecessors lists the statuses from which s may be reached.
func (s TaskStatus) Predecessors() []TaskStatus {
	var out []TaskStatus
	for _, p := range []TaskStatus{TaskStatusPending, TaskStatusProcessing} {
		if p.CanTransitionTo(s) {
			out = append(out, p)
		}
	}
	return out
}

// JobStatus is a provider-side job state as reported by a single poll.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Midjourney bot types
type BotType string

const (
	BotTypeMidjourney BotType = "MID_JOURNEY"
	BotTypeNiji       BotType = "NIJI_JOURNEY"
)

// Package snapshot computes the story-wide read model from task rows.
// Every function here is pure; callers recompute on each read.
package snapshot

import (
	"sort"

	"github.com/ethan-huo/automation-chatbot/internal/model"
)

// Build groups tasks by scene and derives completion counts. Tasks from
// other stories are ignored. expectedScenes lists scenes known to the
// caller that may not have any task yet; they count as shots. Video
// composition tasks belong to the story, not to a shot.
func Build(storyID string, tasks []model.AssetTask, expectedScenes ...string) model.StoryAssetSnapshot {
	ordered := make([]model.AssetTask, 0, len(tasks))
	for _, t := range tasks {
		if t.StoryID == storyID {
			ordered = append(ordered, t)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	scenes := make(map[string]*model.SceneAssets)
	var order []string
	scene := func(id string) *model.SceneAssets {
		if s, ok := scenes[id]; ok {
			return s
		}
		s := &model.SceneAssets{SceneID: id, Images: []model.AssetTask{}}
		scenes[id] = s
		order = append(order, id)
		return s
	}

	snap := model.StoryAssetSnapshot{StoryID: storyID}

	for _, id := range expectedScenes {
		scene(id)
	}
	for i := range ordered {
		t := ordered[i]
		if t.AssetType == model.AssetTypeVideoComposition {
			snap.Composition = &t
			continue
		}
		s := scene(t.SceneID)
		switch t.AssetType {
		case model.AssetTypeAudio:
			s.Audio = &t
		case model.AssetTypeImage:
			s.Images = append(s.Images, t)
		case model.AssetTypeWhiteboardAnimation:
			s.WhiteboardAnimation = &t
		}
	}

	snap.Scenes = make([]model.SceneAssets, 0, len(order))
	for _, id := range order {
		s := scenes[id]
		s.TotalTasks, s.CompletedTasks = shotCounts(s)
		snap.TotalTasks += s.TotalTasks
		snap.CompletedTasks += s.CompletedTasks
		snap.OutstandingTasks += outstanding(s)
		if isCompleted(s.WhiteboardAnimation) {
			snap.CompletedShots++
		}
		snap.Scenes = append(snap.Scenes, *s)
	}
	if snap.Composition != nil && !snap.Composition.Status.IsTerminal() {
		snap.OutstandingTasks++
	}
	snap.TotalShots = len(snap.Scenes)
	snap.IsAllCompleted = IsAllCompleted(snap.CompletedShots, snap.TotalShots)
	return snap
}

// IsAllCompleted is true once every shot has a completed whiteboard
// animation. A story without shots is never complete.
func IsAllCompleted(completedShots, totalShots int) bool {
	return totalShots > 0 && completedShots == totalShots
}

// shotCounts counts one audio slot, each image and one animation slot.
// The animation slot is counted even before its task exists.
func shotCounts(s *model.SceneAssets) (total, completed int) {
	total = 1 + len(s.Images) + 1
	if isCompleted(s.Audio) {
		completed++
	}
	for i := range s.Images {
		if isCompleted(&s.Images[i]) {
			completed++
		}
	}
	if isCompleted(s.WhiteboardAnimation) {
		completed++
	}
	return total, completed
}

func outstanding(s *model.SceneAssets) int {
	n := 0
	for _, t := range Tracked(s) {
		if !t.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// Tracked returns every task the scene view refers to.
func Tracked(s *model.SceneAssets) []*model.AssetTask {
	out := make([]*model.AssetTask, 0, len(s.Images)+2)
	if s.Audio != nil {
		out = append(out, s.Audio)
	}
	for i := range s.Images {
		out = append(out, &s.Images[i])
	}
	if s.WhiteboardAnimation != nil {
		out = append(out, s.WhiteboardAnimation)
	}
	return out
}

func isCompleted(t *model.AssetTask) bool {
	return t != nil && t.Status == model.TaskStatusCompleted
}

package snapshot

import (
	"testing"
	"time"

	"github.com/ethan-huo/automation-chatbot/internal/model"
)

var base = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func task(id, scene string, typ model.AssetType, status model.TaskStatus, offset int) model.AssetTask {
	return model.AssetTask{
		ID:        id,
		StoryID:   "story",
		SceneID:   scene,
		AssetType: typ,
		Status:    status,
		CreatedAt: base.Add(time.Duration(offset) * time.Second),
	}
}

func twoSceneStory(whiteboardA model.TaskStatus) []model.AssetTask {
	return []model.AssetTask{
		task("a-audio", "A", model.AssetTypeAudio, model.TaskStatusCompleted, 0),
		task("a-image", "A", model.AssetTypeImage, model.TaskStatusCompleted, 1),
		task("b-audio", "B", model.AssetTypeAudio, model.TaskStatusCompleted, 2),
		task("b-image", "B", model.AssetTypeImage, model.TaskStatusCompleted, 3),
		task("a-wb", "A", model.AssetTypeWhiteboardAnimation, whiteboardA, 4),
		task("b-wb", "B", model.AssetTypeWhiteboardAnimation, model.TaskStatusCompleted, 5),
	}
}

func TestIsAllCompletedWaitsForEveryWhiteboard(t *testing.T) {
	snap := Build("story", twoSceneStory(model.TaskStatusPending))
	if snap.IsAllCompleted {
		t.Fatal("expected isAllCompleted=false while scene A animation is pending")
	}
	if snap.TotalShots != 2 || snap.CompletedShots != 1 {
		t.Errorf("shots = %d/%d, want 1/2", snap.CompletedShots, snap.TotalShots)
	}
	if snap.TotalTasks != 6 || snap.CompletedTasks != 5 {
		t.Errorf("tasks = %d/%d, want 5/6", snap.CompletedTasks, snap.TotalTasks)
	}
	if snap.OutstandingTasks != 1 {
		t.Errorf("outstanding = %d, want 1", snap.OutstandingTasks)
	}

	snap = Build("story", twoSceneStory(model.TaskStatusCompleted))
	if !snap.IsAllCompleted {
		t.Fatal("expected isAllCompleted=true once every animation completed")
	}
	if snap.OutstandingTasks != 0 {
		t.Errorf("outstanding = %d, want 0", snap.OutstandingTasks)
	}
}

func TestEmptyStoryNeverCompleted(t *testing.T) {
	snap := Build("story", nil)
	if snap.IsAllCompleted {
		t.Fatal("empty story must not report completion")
	}
	if snap.TotalShots != 0 || len(snap.Scenes) != 0 {
		t.Errorf("unexpected scenes: %+v", snap.Scenes)
	}
	if IsAllCompleted(0, 0) {
		t.Error("IsAllCompleted(0, 0) must be false")
	}
}

func TestWhiteboardSlotCountedBeforeCreation(t *testing.T) {
	snap := Build("story", []model.AssetTask{
		task("audio", "A", model.AssetTypeAudio, model.TaskStatusCompleted, 0),
		task("img1", "A", model.AssetTypeImage, model.TaskStatusCompleted, 1),
		task("img2", "A", model.AssetTypeImage, model.TaskStatusFailed, 2),
	})
	s := snap.Scenes[0]
	if s.TotalTasks != 4 {
		t.Errorf("total = %d, want 1 audio + 2 images + 1 animation slot", s.TotalTasks)
	}
	if s.CompletedTasks != 2 {
		t.Errorf("completed = %d, want 2", s.CompletedTasks)
	}
	if s.WhiteboardAnimation != nil {
		t.Error("expected nil animation")
	}
	if snap.IsAllCompleted {
		t.Error("scene without animation is not complete")
	}
}

func TestLatestAudioWinsAndImagesKeepOrder(t *testing.T) {
	tasks := []model.AssetTask{
		task("img2", "A", model.AssetTypeImage, model.TaskStatusPending, 3),
		task("audio-old", "A", model.AssetTypeAudio, model.TaskStatusFailed, 0),
		task("img1", "A", model.AssetTypeImage, model.TaskStatusCompleted, 1),
		task("audio-new", "A", model.AssetTypeAudio, model.TaskStatusProcessing, 2),
	}
	snap := Build("story", tasks)
	s := snap.Scenes[0]
	if s.Audio == nil || s.Audio.ID != "audio-new" {
		t.Fatalf("audio = %+v, want audio-new", s.Audio)
	}
	if len(s.Images) != 2 || s.Images[0].ID != "img1" || s.Images[1].ID != "img2" {
		t.Fatalf("images out of order: %+v", s.Images)
	}
	if snap.OutstandingTasks != 2 {
		t.Errorf("outstanding = %d, want 2", snap.OutstandingTasks)
	}
}

func TestExpectedScenesCountAsShots(t *testing.T) {
	snap := Build("story", []model.AssetTask{
		task("wb", "A", model.AssetTypeWhiteboardAnimation, model.TaskStatusCompleted, 0),
	}, "A", "B")
	if snap.TotalShots != 2 {
		t.Fatalf("total shots = %d, want 2", snap.TotalShots)
	}
	if snap.IsAllCompleted {
		t.Error("scene B has no animation yet")
	}
	if snap.Scenes[1].SceneID != "B" || snap.Scenes[1].TotalTasks != 2 {
		t.Errorf("unexpected empty scene view: %+v", snap.Scenes[1])
	}
}

func TestCompositionIsNotAShot(t *testing.T) {
	tasks := append(twoSceneStory(model.TaskStatusCompleted),
		task("vc-old", model.CompositionSceneID, model.AssetTypeVideoComposition, model.TaskStatusFailed, 6),
		task("vc", model.CompositionSceneID, model.AssetTypeVideoComposition, model.TaskStatusPending, 7),
	)
	snap := Build("story", tasks)

	if snap.TotalShots != 2 || len(snap.Scenes) != 2 {
		t.Fatalf("shots = %d (%d scenes), want 2", snap.TotalShots, len(snap.Scenes))
	}
	if !snap.IsAllCompleted {
		t.Error("a pending composition must not hold back shot completion")
	}
	if snap.Composition == nil || snap.Composition.ID != "vc" {
		t.Fatalf("composition = %+v, want the latest task", snap.Composition)
	}
	if snap.TotalTasks != 6 || snap.CompletedTasks != 6 {
		t.Errorf("tasks = %d/%d, composition must not count", snap.CompletedTasks, snap.TotalTasks)
	}
	if snap.OutstandingTasks != 1 {
		t.Errorf("outstanding = %d, want 1 for the pending composition", snap.OutstandingTasks)
	}
}

func TestIgnoresOtherStories(t *testing.T) {
	other := task("x", "A", model.AssetTypeAudio, model.TaskStatusCompleted, 0)
	other.StoryID = "other"
	snap := Build("story", []model.AssetTask{other})
	if len(snap.Scenes) != 0 {
		t.Fatalf("expected no scenes, got %d", len(snap.Scenes))
	}
}

package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/model"
	"github.com/ethan-huo/automation-chatbot/internal/snapshot"
)

// scriptedSource returns the snapshots it was given in order and repeats
// the last one.
type scriptedSource struct {
	mu    sync.Mutex
	steps [][]model.AssetTask
	errs  []error
	calls int
}

func (s *scriptedSource) GetStoryAssetSnapshot(_ context.Context, storyID string) (*model.StoryAssetSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	snap := snapshot.Build(storyID, s.steps[i])
	return &snap, nil
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func task(id, scene string, typ model.AssetType, status model.TaskStatus, at int) model.AssetTask {
	t := model.AssetTask{
		ID:        id,
		StoryID:   "story-1",
		SceneID:   scene,
		AssetType: typ,
		Status:    status,
		CreatedAt: time.Unix(int64(at), 0),
	}
	if status == model.TaskStatusCompleted {
		t.ResultURL = "https://cdn/" + id
	}
	return t
}

func newTestPoller(t *testing.T, src Source) *Poller {
	t.Helper()
	return New(src, "story-1", time.Millisecond, logger.NewFromZap(zaptest.NewLogger(t)))
}

func TestRunStopsWhenNothingOutstanding(t *testing.T) {
	src := &scriptedSource{steps: [][]model.AssetTask{
		{
			task("a1", "s1", model.AssetTypeAudio, model.TaskStatusPending, 1),
			task("i1", "s1", model.AssetTypeImage, model.TaskStatusProcessing, 2),
		},
		{
			task("a1", "s1", model.AssetTypeAudio, model.TaskStatusCompleted, 1),
			task("i1", "s1", model.AssetTypeImage, model.TaskStatusProcessing, 2),
		},
		{
			task("a1", "s1", model.AssetTypeAudio, model.TaskStatusCompleted, 1),
			task("i1", "s1", model.AssetTypeImage, model.TaskStatusFailed, 2),
		},
	}}
	p := newTestPoller(t, src)

	var updates []*State
	if err := p.Run(context.Background(), func(s *State) { updates = append(updates, s) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if src.callCount() != 3 {
		t.Errorf("polled %d times, want 3", src.callCount())
	}
	if len(updates) != 3 {
		t.Fatalf("got %d updates, want 3", len(updates))
	}

	final := p.State()
	if final.Outstanding() != 0 {
		t.Errorf("outstanding = %d after settle", final.Outstanding())
	}
	shot := final.Shots[0]
	if shot.Audio.Status != model.TaskStatusCompleted || shot.Audio.URL != "https://cdn/a1" {
		t.Errorf("audio view = %+v", shot.Audio)
	}
	if shot.Images[0].Status != model.TaskStatusFailed {
		t.Errorf("image view = %+v", shot.Images[0])
	}
	if final.IsAllCompleted {
		t.Error("story without animations reported complete")
	}
}

func TestRunWaitsForComposition(t *testing.T) {
	shot := []model.AssetTask{
		task("a1", "s1", model.AssetTypeAudio, model.TaskStatusCompleted, 1),
		task("w1", "s1", model.AssetTypeWhiteboardAnimation, model.TaskStatusCompleted, 2),
	}
	compose := func(status model.TaskStatus) []model.AssetTask {
		out := append([]model.AssetTask(nil), shot...)
		return append(out, task("vc", model.CompositionSceneID, model.AssetTypeVideoComposition, status, 3))
	}
	src := &scriptedSource{steps: [][]model.AssetTask{
		compose(model.TaskStatusProcessing),
		compose(model.TaskStatusCompleted),
	}}
	p := newTestPoller(t, src)

	if err := p.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if src.callCount() != 2 {
		t.Errorf("polled %d times, want 2", src.callCount())
	}
	final := p.State()
	if final.TotalShots != 1 || !final.IsAllCompleted {
		t.Errorf("shots = %d complete=%v, composition must not be a shot", final.TotalShots, final.IsAllCompleted)
	}
	if final.Composition == nil || final.Composition.Status != model.TaskStatusCompleted {
		t.Errorf("composition view = %+v", final.Composition)
	}
}

func TestRunOnEmptyStoryStopsImmediately(t *testing.T) {
	src := &scriptedSource{steps: [][]model.AssetTask{{}}}
	p := newTestPoller(t, src)

	if err := p.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if src.callCount() != 1 {
		t.Errorf("polled %d times, want 1", src.callCount())
	}
	if p.State().IsAllCompleted {
		t.Error("empty story must not be complete")
	}
}

func TestRunToleratesTransientErrors(t *testing.T) {
	src := &scriptedSource{
		errs:  []error{errors.New("db blip"), nil},
		steps: [][]model.AssetTask{{task("a1", "s1", model.AssetTypeAudio, model.TaskStatusCompleted, 1)}},
	}
	p := newTestPoller(t, src)

	if err := p.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if src.callCount() != 2 {
		t.Errorf("polled %d times, want 2", src.callCount())
	}
}

func TestRunGivesUpAfterMaxErrors(t *testing.T) {
	boom := errors.New("down")
	src := &scriptedSource{errs: []error{boom, boom, boom}, steps: [][]model.AssetTask{{}}}
	p := newTestPoller(t, src)
	p.MaxErrors = 3

	if err := p.Run(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	src := &scriptedSource{steps: [][]model.AssetTask{{task("a1", "s1", model.AssetTypeAudio, model.TaskStatusPending, 1)}}}
	p := newTestPoller(t, src)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := p.Run(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMergeNeverRegressesStatus(t *testing.T) {
	s := NewState("story-1")
	done := snapshot.Build("story-1", []model.AssetTask{
		task("a1", "s1", model.AssetTypeAudio, model.TaskStatusCompleted, 1),
		task("i1", "s1", model.AssetTypeImage, model.TaskStatusCompleted, 2),
	})
	s.Merge(&done)

	stale := snapshot.Build("story-1", []model.AssetTask{
		task("a1", "s1", model.AssetTypeAudio, model.TaskStatusProcessing, 1),
		task("i1", "s1", model.AssetTypeImage, model.TaskStatusPending, 2),
	})
	s.Merge(&stale)

	if s.Shots[0].Audio.Status != model.TaskStatusCompleted {
		t.Errorf("audio regressed to %s", s.Shots[0].Audio.Status)
	}
	if s.Shots[0].Images[0].Status != model.TaskStatusCompleted {
		t.Errorf("image regressed to %s", s.Shots[0].Images[0].Status)
	}
}

func TestMergeReplacesSlotWithNewerTask(t *testing.T) {
	s := NewState("story-1")
	first := snapshot.Build("story-1", []model.AssetTask{
		task("a1", "s1", model.AssetTypeAudio, model.TaskStatusFailed, 1),
	})
	s.Merge(&first)

	retry := snapshot.Build("story-1", []model.AssetTask{
		task("a1", "s1", model.AssetTypeAudio, model.TaskStatusFailed, 1),
		task("a2", "s1", model.AssetTypeAudio, model.TaskStatusPending, 5),
		task("i1", "s1", model.AssetTypeImage, model.TaskStatusPending, 6),
		task("i2", "s1", model.AssetTypeImage, model.TaskStatusPending, 7),
	})
	s.Merge(&retry)

	shot := s.Shots[0]
	if shot.Audio.TaskID != "a2" || shot.Audio.Status != model.TaskStatusPending {
		t.Errorf("audio slot = %+v, want the retried task", shot.Audio)
	}
	if len(shot.Images) != 2 || shot.Images[0].TaskID != "i1" || shot.Images[1].TaskID != "i2" {
		t.Errorf("images = %+v", shot.Images)
	}
	if s.Outstanding() != 3 {
		t.Errorf("outstanding = %d, want 3", s.Outstanding())
	}
}

func TestMergeTracksStoryCompletion(t *testing.T) {
	s := NewState("story-1")
	rows := []model.AssetTask{
		task("a1", "A", model.AssetTypeAudio, model.TaskStatusCompleted, 1),
		task("i1", "A", model.AssetTypeImage, model.TaskStatusCompleted, 2),
		task("w1", "A", model.AssetTypeWhiteboardAnimation, model.TaskStatusPending, 3),
		task("a2", "B", model.AssetTypeAudio, model.TaskStatusCompleted, 4),
		task("i2", "B", model.AssetTypeImage, model.TaskStatusCompleted, 5),
		task("w2", "B", model.AssetTypeWhiteboardAnimation, model.TaskStatusCompleted, 6),
	}
	snap := snapshot.Build("story-1", rows)
	s.Merge(&snap)
	if s.IsAllCompleted || s.CompletedShots != 1 {
		t.Fatalf("after first merge: completed=%d all=%v", s.CompletedShots, s.IsAllCompleted)
	}

	rows[2].Status = model.TaskStatusCompleted
	rows[2].ResultURL = "https://cdn/w1"
	snap = snapshot.Build("story-1", rows)
	s.Merge(&snap)
	if !s.IsAllCompleted || s.CompletedShots != 2 {
		t.Fatalf("after second merge: completed=%d all=%v", s.CompletedShots, s.IsAllCompleted)
	}
}

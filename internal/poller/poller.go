// Package poller keeps client-held story state in sync with the read model.
//
// A Poller re-reads the story snapshot on an interval and merges it into its
// State. It stops on its own once no tracked task is pending or processing.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/model"
	"github.com/ethan-huo/automation-chatbot/internal/snapshot"
)

// Source yields the current read model of a story.
type Source interface {
	GetStoryAssetSnapshot(ctx context.Context, storyID string) (*model.StoryAssetSnapshot, error)
}

// TaskView is the part of a task a client renders.
type TaskView struct {
	TaskID string           `json:"taskId"`
	Status model.TaskStatus `json:"status"`
	URL    string           `json:"url,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// ShotState is the client-held view of one scene.
type ShotState struct {
	SceneID        string     `json:"sceneId"`
	Audio          *TaskView  `json:"audio"`
	Images         []TaskView `json:"images"`
	Animation      *TaskView  `json:"whiteboardAnimation"`
	TotalTasks     int        `json:"totalTasks"`
	CompletedTasks int        `json:"completedTasks"`
}

// State is the merged client state of a story.
type State struct {
	StoryID        string      `json:"storyId"`
	Shots          []ShotState `json:"shots"`
	TotalShots     int         `json:"totalShots"`
	CompletedShots int         `json:"completedShots"`
	IsAllCompleted bool        `json:"isAllCompleted"`
	Composition    *TaskView   `json:"composition,omitempty"`
	Polls          int         `json:"polls"`
	LastPolledAt   time.Time   `json:"lastPolledAt"`
}

func NewState(storyID string) *State {
	return &State{StoryID: storyID, Shots: []ShotState{}}
}

// Merge folds a fresh snapshot into the state. Shots keep their first-seen
// order and a task's status never moves backwards.
func (s *State) Merge(snap *model.StoryAssetSnapshot) {
	index := make(map[string]int, len(s.Shots))
	for i := range s.Shots {
		index[s.Shots[i].SceneID] = i
	}

	for i := range snap.Scenes {
		sc := &snap.Scenes[i]
		pos, ok := index[sc.SceneID]
		if !ok {
			s.Shots = append(s.Shots, ShotState{SceneID: sc.SceneID, Images: []TaskView{}})
			pos = len(s.Shots) - 1
			index[sc.SceneID] = pos
		}
		shot := &s.Shots[pos]

		shot.Audio = mergeView(shot.Audio, sc.Audio)
		shot.Animation = mergeView(shot.Animation, sc.WhiteboardAnimation)
		shot.Images = mergeImages(shot.Images, sc.Images)
		shot.TotalTasks = sc.TotalTasks
		shot.CompletedTasks = sc.CompletedTasks
	}

	s.Composition = mergeView(s.Composition, snap.Composition)

	s.TotalShots = len(s.Shots)
	s.CompletedShots = 0
	for i := range s.Shots {
		if a := s.Shots[i].Animation; a != nil && a.Status == model.TaskStatusCompleted {
			s.CompletedShots++
		}
	}
	s.IsAllCompleted = snapshot.IsAllCompleted(s.CompletedShots, s.TotalShots)
}

// Outstanding counts tracked tasks still pending or processing.
func (s *State) Outstanding() int {
	n := 0
	check := func(v *TaskView) {
		if v != nil && !v.Status.IsTerminal() {
			n++
		}
	}
	for i := range s.Shots {
		sh := &s.Shots[i]
		check(sh.Audio)
		for j := range sh.Images {
			check(&sh.Images[j])
		}
		check(sh.Animation)
	}
	check(s.Composition)
	return n
}

func (s *State) clone() *State {
	out := *s
	out.Composition = cloneView(s.Composition)
	out.Shots = make([]ShotState, len(s.Shots))
	for i, sh := range s.Shots {
		sh.Images = append([]TaskView(nil), sh.Images...)
		sh.Audio = cloneView(sh.Audio)
		sh.Animation = cloneView(sh.Animation)
		out.Shots[i] = sh
	}
	return &out
}

func cloneView(v *TaskView) *TaskView {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func viewOf(t *model.AssetTask) TaskView {
	return TaskView{TaskID: t.ID, Status: t.Status, URL: t.ResultURL, Error: t.ErrorMessage}
}

// mergeView replaces cur with the snapshot task unless that would regress
// the status of the same task. A different task id always wins since the
// read model only ever reports the most recent task of a slot.
func mergeView(cur *TaskView, next *model.AssetTask) *TaskView {
	if next == nil {
		return cur
	}
	v := viewOf(next)
	if cur != nil && cur.TaskID == v.TaskID && v.Status.Rank() < cur.Status.Rank() {
		return cur
	}
	return &v
}

func mergeImages(cur []TaskView, next []model.AssetTask) []TaskView {
	byID := make(map[string]int, len(cur))
	for i := range cur {
		byID[cur[i].TaskID] = i
	}
	for i := range next {
		v := viewOf(&next[i])
		if pos, ok := byID[v.TaskID]; ok {
			if v.Status.Rank() >= cur[pos].Status.Rank() {
				cur[pos] = v
			}
			continue
		}
		byID[v.TaskID] = len(cur)
		cur = append(cur, v)
	}
	return cur
}

// Poller drives State for one story.
type Poller struct {
	source   Source
	storyID  string
	interval time.Duration
	// MaxErrors is the number of consecutive failed reads tolerated.
	MaxErrors int
	log       *logger.Logger

	mu    sync.Mutex
	state *State
}

func New(source Source, storyID string, interval time.Duration, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{
		source:    source,
		storyID:   storyID,
		interval:  interval,
		MaxErrors: 5,
		log:       log.With("component", "poller", "story_id", storyID),
		state:     NewState(storyID),
	}
}

// State returns a copy of the current merged state.
func (p *Poller) State() *State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// Poll performs a single read-and-merge and reports how many tasks remain
// outstanding.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	snap, err := p.source.GetStoryAssetSnapshot(ctx, p.storyID)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Merge(snap)
	p.state.Polls++
	p.state.LastPolledAt = time.Now()
	return p.state.Outstanding(), nil
}

// Run polls immediately and then every interval until nothing is outstanding
// or ctx is done. onUpdate, when set, receives a copy after every merge.
func (p *Poller) Run(ctx context.Context, onUpdate func(*State)) error {
	errCount := 0
	for {
		outstanding, err := p.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errCount++
			p.log.Warn("snapshot poll failed", "attempt", errCount, "error", err)
			if errCount >= p.MaxErrors {
				return fmt.Errorf("poll story %s: %w", p.storyID, err)
			}
		} else {
			errCount = 0
			if onUpdate != nil {
				onUpdate(p.State())
			}
			if outstanding == 0 {
				p.log.Debug("story settled, polling stopped")
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}
}

package client

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	dimg "github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/ethan-huo/automation-chatbot/internal/apperr"
	"github.com/ethan-huo/automation-chatbot/internal/imaging"
	"github.com/ethan-huo/automation-chatbot/internal/model"
)

// MockProvider simulates a provider when no API key is configured. Jobs
// report running for PollsUntilDone polls and then succeed.
type MockProvider struct {
	kind           model.AssetType
	PollsUntilDone int

	mu   sync.Mutex
	jobs map[string]*mockJob
}

type mockJob struct {
	polls int
	input SubmitInput
}

func NewMockProvider(kind model.AssetType) *MockProvider {
	return &MockProvider{
		kind:           kind,
		PollsUntilDone: 2,
		jobs:           make(map[string]*mockJob),
	}
}

func (m *MockProvider) Name() string { return "mock-" + string(m.kind) }

func (m *MockProvider) Submit(ctx context.Context, in *SubmitInput) (string, error) {
	if in == nil {
		return "", apperr.Provider(m.Name(), "submit", fmt.Errorf("missing input"))
	}
	id := uuid.NewString()
	m.mu.Lock()
	m.jobs[id] = &mockJob{input: *in}
	m.mu.Unlock()
	return id, nil
}

func (m *MockProvider) PollStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return &JobStatus{State: model.JobStatusFailed, ErrorDetail: "unknown job " + jobID}, nil
	}
	job.polls++
	if job.polls < m.PollsUntilDone {
		return &JobStatus{State: model.JobStatusRunning}, nil
	}
	return &JobStatus{State: model.JobStatusSucceeded, ResultRef: jobID}, nil
}

func (m *MockProvider) FetchResult(ctx context.Context, resultRef string) (*Artifact, error) {
	m.mu.Lock()
	job, ok := m.jobs[resultRef]
	m.mu.Unlock()
	if !ok {
		return nil, apperr.Provider(m.Name(), "fetch", fmt.Errorf("unknown result %s", resultRef))
	}

	switch m.kind {
	case model.AssetTypeAudio:
		duration := mockSpeechSeconds(job.input.Audio)
		return &Artifact{
			Data:            []byte("mock-audio:" + resultRef),
			ContentType:     "audio/mpeg",
			Extension:       "mp3",
			DurationSeconds: &duration,
		}, nil
	case model.AssetTypeImage:
		data, err := mockGrid(64, 64)
		if err != nil {
			return nil, apperr.Provider(m.Name(), "fetch", err)
		}
		return &Artifact{Data: data, ContentType: "image/png", Extension: "png"}, nil
	default:
		return &Artifact{
			Data:        []byte("mock-video:" + resultRef),
			ContentType: "video/mp4",
			Extension:   "mp4",
		}, nil
	}
}

// PostProcess mirrors the image provider's quadrant extraction.
func (m *MockProvider) PostProcess(ctx context.Context, a *Artifact) (*Artifact, error) {
	if m.kind != model.AssetTypeImage {
		return a, nil
	}
	res, err := imaging.ExtractQuadrant(a.Data, imaging.TopLeft)
	if err != nil {
		return nil, apperr.Provider(m.Name(), "postprocess", err)
	}
	return &Artifact{
		Data:        res.PNG,
		ContentType: "image/png",
		Extension:   "png",
		Metadata: map[string]interface{}{
			model.MetaQuadrantExtracted: string(imaging.TopLeft),
			model.MetaImageWidth:        res.Width,
			model.MetaImageHeight:       res.Height,
		},
	}, nil
}

// mockSpeechSeconds estimates narration length at 2.5 words per second.
func mockSpeechSeconds(p *model.AudioParams) float64 {
	if p == nil {
		return 1
	}
	words := len(strings.Fields(p.Text))
	if words == 0 {
		return 1
	}
	return float64(words*40) / 100
}

// mockGrid builds a 2x2 grid with one flat colour per candidate.
func mockGrid(w, h int) ([]byte, error) {
	tileW, tileH := w/2, h/2
	fills := []color.NRGBA{
		{R: 220, G: 60, B: 60, A: 255},
		{R: 60, G: 180, B: 60, A: 255},
		{R: 60, G: 60, B: 220, A: 255},
		{R: 220, G: 200, B: 60, A: 255},
	}
	grid := dimg.New(w, h, color.White)
	for i, fill := range fills {
		tile := dimg.New(tileW, tileH, fill)
		grid = dimg.Paste(grid, tile, image.Pt((i%2)*tileW, (i/2)*tileH))
	}
	var buf bytes.Buffer
	if err := dimg.Encode(&buf, grid, dimg.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package client

import (
	"context"

	"github.com/ethan-huo/automation-chatbot/internal/model"
)

// Provider is the capability contract every generation service implements.
type Provider interface {
	Name() string
	// Submit starts a provider job and returns its id.
	Submit(ctx context.Context, in *SubmitInput) (string, error)
	// PollStatus performs a single status check.
	PollStatus(ctx context.Context, jobID string) (*JobStatus, error)
	// FetchResult materializes the final artifact.
	FetchResult(ctx context.Context, resultRef string) (*Artifact, error)
}

// PostProcessor is implemented by providers whose raw output needs a
// provider-specific transformation before upload.
type PostProcessor interface {
	PostProcess(ctx context.Context, a *Artifact) (*Artifact, error)
}

// SubmitInput carries exactly one of the typed parameter sets.
type SubmitInput struct {
	TaskID      string
	Audio       *model.AudioParams
	Image       *model.ImageParams
	Animation   *model.AnimationParams
	Composition *model.CompositionParams
}

type JobStatus struct {
	State       model.JobStatus
	ResultRef   string
	ErrorDetail string
	// Extra is merged into the task metadata on success.
	Extra map[string]interface{}
}

type Artifact struct {
	Data            []byte
	ContentType     string
	Extension       string
	DurationSeconds *float64
	Metadata        map[string]interface{}
}

package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ethan-huo/automation-chatbot/internal/apperr"
	"github.com/ethan-huo/automation-chatbot/internal/config"
	"github.com/ethan-huo/automation-chatbot/internal/imaging"
	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/model"
)

// MidjourneyClient implements Provider for grid image generation. The
// provider returns a 2x2 grid; PostProcess keeps the top-left candidate.
type MidjourneyClient struct {
	api *apiClient
}

type midjourneyImagineRequest struct {
	Prompt  string        `json:"prompt"`
	BotType model.BotType `json:"botType"`
}

type midjourneySubmitResponse struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
	Result      string `json:"result"`
}

type midjourneyTask struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Progress    string `json:"progress"`
	FailReason  string `json:"failReason"`
	ImageURL    string `json:"imageUrl"`
	ImageWidth  int    `json:"imageWidth"`
	ImageHeight int    `json:"imageHeight"`
}

// Submission codes: 1 accepted, 21 already exists, 22 queued.
var midjourneyAccepted = map[int]bool{1: true, 21: true, 22: true}

func NewMidjourneyClient(cfg config.ProviderConfig, log *logger.Logger) *MidjourneyClient {
	secret := cfg.APIKey
	return &MidjourneyClient{
		api: newAPIClient("midjourney", cfg.BaseURL, cfg.Timeout, log, func(req *http.Request) {
			req.Header.Set("mj-api-secret", secret)
		}),
	}
}

func (c *MidjourneyClient) Name() string { return "midjourney" }

func (c *MidjourneyClient) Submit(ctx context.Context, in *SubmitInput) (string, error) {
	if in == nil || in.Image == nil || in.Image.Prompt == "" {
		return "", apperr.Provider(c.Name(), "submit", fmt.Errorf("image input requires a prompt"))
	}
	botType := in.Image.BotType
	if botType == "" {
		botType = model.BotTypeMidjourney
	}

	var resp midjourneySubmitResponse
	body := midjourneyImagineRequest{Prompt: in.Image.Prompt, BotType: botType}
	if err := c.api.post(ctx, "submit", "/mj/submit/imagine", body, &resp); err != nil {
		return "", err
	}
	if !midjourneyAccepted[resp.Code] || resp.Result == "" {
		return "", apperr.Provider(c.Name(), "submit", fmt.Errorf("rejected: %s (code %d)", resp.Description, resp.Code))
	}
	return resp.Result, nil
}

func (c *MidjourneyClient) PollStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var task midjourneyTask
	if err := c.api.get(ctx, "poll", "/mj/task/"+url.PathEscape(jobID)+"/fetch", &task); err != nil {
		return nil, err
	}

	switch task.Status {
	case "SUCCESS":
		if task.ImageURL == "" {
			return &JobStatus{State: model.JobStatusFailed, ErrorDetail: "succeeded without an image url"}, nil
		}
		return &JobStatus{
			State:     model.JobStatusSucceeded,
			ResultRef: task.ImageURL,
			Extra: map[string]interface{}{
				model.MetaOriginalImageURL: task.ImageURL,
			},
		}, nil
	case "FAILURE", "CANCEL":
		detail := task.FailReason
		if detail == "" {
			detail = "no failure reason provided"
		}
		return &JobStatus{State: model.JobStatusFailed, ErrorDetail: detail}, nil
	case "NOT_START", "SUBMITTED", "":
		return &JobStatus{State: model.JobStatusQueued}, nil
	default:
		return &JobStatus{State: model.JobStatusRunning}, nil
	}
}

// FetchResult downloads the composite grid image.
func (c *MidjourneyClient) FetchResult(ctx context.Context, resultRef string) (*Artifact, error) {
	data, contentType, err := c.api.download(ctx, "fetch", resultRef)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Data:        data,
		ContentType: contentType,
		Extension:   extensionFor(contentType, "png"),
		Metadata: map[string]interface{}{
			model.MetaOriginalImageURL: resultRef,
		},
	}, nil
}

// PostProcess replaces the grid with its top-left quadrant as PNG.
func (c *MidjourneyClient) PostProcess(ctx context.Context, a *Artifact) (*Artifact, error) {
	res, err := imaging.ExtractQuadrant(a.Data, imaging.TopLeft)
	if err != nil {
		return nil, apperr.Provider(c.Name(), "postprocess", err)
	}
	meta := make(map[string]interface{}, len(a.Metadata)+5)
	for k, v := range a.Metadata {
		meta[k] = v
	}
	meta[model.MetaQuadrantExtracted] = string(imaging.TopLeft)
	meta[model.MetaImageWidth] = res.Width
	meta[model.MetaImageHeight] = res.Height
	meta["originalWidth"] = res.OriginalWidth
	meta["originalHeight"] = res.OriginalHeight
	return &Artifact{
		Data:        res.PNG,
		ContentType: "image/png",
		Extension:   "png",
		Metadata:    meta,
	}, nil
}

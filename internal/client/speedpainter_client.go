package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ethan-huo/automation-chatbot/internal/apperr"
	"github.com/ethan-huo/automation-chatbot/internal/config"
	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/model"
)

// SpeedPainterClient implements Provider for image-to-whiteboard animation.
type SpeedPainterClient struct {
	api *apiClient
}

type speedPainterRequest struct {
	ImageURL          string `json:"imageUrl"`
	MimeType          string `json:"mimeType"`
	SketchDuration    int    `json:"sketchDuration"`
	Source            string `json:"source"`
	ColorFillDuration int    `json:"colorFillDuration"`
	NeedCanvas        bool   `json:"needCanvas"`
	CanvasTitle       string `json:"canvasTitle"`
	NeedHand          bool   `json:"needHand"`
	HandTitle         string `json:"handTitle"`
	NeedFadeout       bool   `json:"needFadeout"`
	FPS               int    `json:"fps"`
}

type speedPainterSubmitResponse struct {
	TaskID string `json:"taskId"`
}

type speedPainterTask struct {
	TaskID         string `json:"taskId"`
	Status         string `json:"status"`
	VideoURL       string `json:"videoUrl"`
	SketchImageURL string `json:"sketchImageUrl"`
	Error          string `json:"error"`
}

func NewSpeedPainterClient(cfg config.ProviderConfig, log *logger.Logger) *SpeedPainterClient {
	apiKey := cfg.APIKey
	return &SpeedPainterClient{
		api: newAPIClient("speedpainter", cfg.BaseURL, cfg.Timeout, log, func(req *http.Request) {
			req.Header.Set("Authorization", "KEY "+apiKey)
		}),
	}
}

func (c *SpeedPainterClient) Name() string { return "speedpainter" }

func (c *SpeedPainterClient) Submit(ctx context.Context, in *SubmitInput) (string, error) {
	if in == nil || in.Animation == nil || in.Animation.ImageURL == "" {
		return "", apperr.Provider(c.Name(), "submit", fmt.Errorf("animation input requires an image url"))
	}
	if in.Animation.DurationSeconds <= 0 {
		return "", apperr.Provider(c.Name(), "submit", fmt.Errorf("animation duration must be positive"))
	}

	body := speedPainterRequest{
		ImageURL:          in.Animation.ImageURL,
		MimeType:          "image/jpeg",
		SketchDuration:    in.Animation.DurationSeconds,
		Source:            "api",
		ColorFillDuration: 0,
		NeedCanvas:        false,
		CanvasTitle:       "white board",
		NeedHand:          true,
		HandTitle:         "no hand",
		NeedFadeout:       true,
		FPS:               24,
	}

	var resp speedPainterSubmitResponse
	if err := c.api.post(ctx, "submit", "/api/speedpainter", body, &resp); err != nil {
		return "", err
	}
	if resp.TaskID == "" {
		return "", apperr.Provider(c.Name(), "submit", fmt.Errorf("no task id in response"))
	}
	return resp.TaskID, nil
}

func (c *SpeedPainterClient) PollStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var task speedPainterTask
	if err := c.api.get(ctx, "poll", "/api/task/"+url.PathEscape(jobID), &task); err != nil {
		return nil, err
	}

	switch task.Status {
	case "FINISHED":
		if task.VideoURL == "" {
			return &JobStatus{State: model.JobStatusFailed, ErrorDetail: "finished without a video url"}, nil
		}
		return &JobStatus{
			State:     model.JobStatusSucceeded,
			ResultRef: task.VideoURL,
			Extra: map[string]interface{}{
				model.MetaSketchImageURL:    task.SketchImageURL,
				model.MetaProviderResultURL: task.VideoURL,
			},
		}, nil
	case "ERROR":
		detail := task.Error
		if detail == "" {
			detail = "animation failed"
		}
		return &JobStatus{State: model.JobStatusFailed, ErrorDetail: detail}, nil
	case "WAITING", "INIT":
		return &JobStatus{State: model.JobStatusQueued}, nil
	default:
		return &JobStatus{State: model.JobStatusRunning}, nil
	}
}

func (c *SpeedPainterClient) FetchResult(ctx context.Context, resultRef string) (*Artifact, error) {
	data, contentType, err := c.api.download(ctx, "fetch", resultRef)
	if err != nil {
		return nil, err
	}
	if contentType == "" || contentType == "application/octet-stream" || contentType == "text/plain" {
		contentType = "video/mp4"
	}
	return &Artifact{
		Data:        data,
		ContentType: contentType,
		Extension:   extensionFor(contentType, "mp4"),
	}, nil
}

package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ethan-huo/automation-chatbot/internal/apperr"
	"github.com/ethan-huo/automation-chatbot/internal/config"
	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/model"
)

const (
	minimaxModel      = "speech-02-turbo"
	minimaxSampleRate = 32000
	minimaxBitrate    = 128000
)

// MinimaxClient implements Provider for asynchronous text-to-speech.
type MinimaxClient struct {
	api *apiClient
}

type minimaxBaseResp struct {
	StatusCode int    `json:"status_code"`
	StatusMsg  string `json:"status_msg"`
}

type minimaxVoiceSetting struct {
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
	Vol     float64 `json:"vol"`
	Pitch   int     `json:"pitch"`
}

type minimaxAudioSetting struct {
	AudioSampleRate int    `json:"audio_sample_rate"`
	Bitrate         int    `json:"bitrate"`
	Format          string `json:"format"`
	Channel         int    `json:"channel"`
}

type minimaxSubmitRequest struct {
	Model        string              `json:"model"`
	Text         string              `json:"text"`
	VoiceSetting minimaxVoiceSetting `json:"voice_setting"`
	AudioSetting minimaxAudioSetting `json:"audio_setting"`
}

type minimaxSubmitResponse struct {
	TaskID   int64           `json:"task_id"`
	FileID   int64           `json:"file_id"`
	BaseResp minimaxBaseResp `json:"base_resp"`
}

type minimaxStatusResponse struct {
	Status   string          `json:"status"`
	TaskID   int64           `json:"task_id"`
	FileID   int64           `json:"file_id"`
	BaseResp minimaxBaseResp `json:"base_resp"`
}

type minimaxFileResponse struct {
	File struct {
		FileID      int64  `json:"file_id"`
		Bytes       int64  `json:"bytes"`
		Filename    string `json:"filename"`
		DownloadURL string `json:"download_url"`
	} `json:"file"`
	BaseResp minimaxBaseResp `json:"base_resp"`
}

// NewMinimaxClient creates a new MiniMax TTS client
func NewMinimaxClient(cfg config.ProviderConfig, log *logger.Logger) *MinimaxClient {
	apiKey := cfg.APIKey
	return &MinimaxClient{
		api: newAPIClient("minimax", cfg.BaseURL, cfg.Timeout, log, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}),
	}
}

func (c *MinimaxClient) Name() string { return "minimax" }

func (c *MinimaxClient) Submit(ctx context.Context, in *SubmitInput) (string, error) {
	if in == nil || in.Audio == nil || in.Audio.Text == "" {
		return "", apperr.Provider(c.Name(), "submit", fmt.Errorf("audio input requires text"))
	}
	p := in.Audio
	body := minimaxSubmitRequest{
		Model: minimaxModel,
		Text:  p.Text,
		VoiceSetting: minimaxVoiceSetting{
			VoiceID: p.VoiceID,
			Speed:   p.Speed,
			Vol:     p.Volume,
			Pitch:   p.Pitch,
		},
		AudioSetting: minimaxAudioSetting{
			AudioSampleRate: minimaxSampleRate,
			Bitrate:         minimaxBitrate,
			Format:          "mp3",
			Channel:         1,
		},
	}

	var resp minimaxSubmitResponse
	if err := c.api.post(ctx, "submit", "/minimaxi/v1/t2a_async_v2", body, &resp); err != nil {
		return "", err
	}
	if resp.BaseResp.StatusCode != 0 {
		return "", apperr.Provider(c.Name(), "submit", fmt.Errorf("rejected: %s (code %d)", resp.BaseResp.StatusMsg, resp.BaseResp.StatusCode))
	}
	if resp.TaskID == 0 {
		return "", apperr.Provider(c.Name(), "submit", fmt.Errorf("no task id in response"))
	}
	return strconv.FormatInt(resp.TaskID, 10), nil
}

func (c *MinimaxClient) PollStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	endpoint := "/minimaxi/v1/query/t2a_async_query_v2?task_id=" + url.QueryEscape(jobID)
	var resp minimaxStatusResponse
	if err := c.api.get(ctx, "poll", endpoint, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case "Success":
		if resp.FileID == 0 {
			return &JobStatus{State: model.JobStatusFailed, ErrorDetail: "succeeded without a file id"}, nil
		}
		return &JobStatus{State: model.JobStatusSucceeded, ResultRef: strconv.FormatInt(resp.FileID, 10)}, nil
	case "Failed", "Expired":
		detail := resp.BaseResp.StatusMsg
		if detail == "" {
			detail = "synthesis " + resp.Status
		}
		return &JobStatus{State: model.JobStatusFailed, ErrorDetail: detail}, nil
	case "Queueing":
		return &JobStatus{State: model.JobStatusQueued}, nil
	default:
		return &JobStatus{State: model.JobStatusRunning}, nil
	}
}

// FetchResult resolves the file id to a download URL and unpacks the
// returned archive.
func (c *MinimaxClient) FetchResult(ctx context.Context, resultRef string) (*Artifact, error) {
	var file minimaxFileResponse
	if err := c.api.get(ctx, "fetch", "/minimaxi/v1/files/retrieve?file_id="+url.QueryEscape(resultRef), &file); err != nil {
		return nil, err
	}
	if file.BaseResp.StatusCode != 0 {
		return nil, apperr.Provider(c.Name(), "fetch", fmt.Errorf("file info request failed: %s", file.BaseResp.StatusMsg))
	}
	if file.File.DownloadURL == "" {
		return nil, apperr.Provider(c.Name(), "fetch", fmt.Errorf("no download url for file %s", resultRef))
	}

	data, _, err := c.api.download(ctx, "download", file.File.DownloadURL)
	if err != nil {
		return nil, err
	}
	archive, err := ParseAudioArchive(data)
	if err != nil {
		return nil, apperr.Provider(c.Name(), "fetch", err)
	}

	contentType := "audio/mpeg"
	if archive.Format == "wav" {
		contentType = "audio/wav"
	}
	meta := map[string]interface{}{
		model.MetaAudioInfo: map[string]interface{}{
			"audioLengthMs": archive.Info.AudioLength,
			"sampleRate":    archive.Info.AudioSampleRate,
			"bitrate":       archive.Info.Bitrate,
			"wordCount":     archive.Info.WordCount,
			"sizeBytes":     archive.Info.AudioSize,
			"filename":      archive.Filename,
		},
		model.MetaWordTimings: archive.Timings,
	}
	if archive.InfoErr != nil {
		c.api.log.Warn("audio info unreadable, duration unknown", "file_id", resultRef, "error", archive.InfoErr)
		meta[model.MetaAudioInfoError] = archive.InfoErr.Error()
	}
	if archive.TimingsErr != nil {
		c.api.log.Warn("word timings unreadable", "file_id", resultRef, "error", archive.TimingsErr)
	}

	duration := archive.DurationSeconds
	return &Artifact{
		Data:            archive.Audio,
		ContentType:     contentType,
		Extension:       archive.Format,
		DurationSeconds: &duration,
		Metadata:        meta,
	}, nil
}

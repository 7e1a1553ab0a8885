package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/ethan-huo/automation-chatbot/internal/apperr"
	"github.com/ethan-huo/automation-chatbot/internal/logger"
)

// maxDownloadBytes bounds artifact downloads.
const maxDownloadBytes = 512 << 20

// apiClient is the JSON-over-HTTP plumbing shared by the providers.
type apiClient struct {
	provider   string
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
	authorize  func(req *http.Request)
}

func newAPIClient(provider, baseURL string, timeout time.Duration, log *logger.Logger, authorize func(*http.Request)) *apiClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &apiClient{
		provider:   provider,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With("provider", provider),
		authorize:  authorize,
	}
}

// post sends a POST request with JSON body
func (c *apiClient) post(ctx context.Context, op, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return apperr.Provider(c.provider, op, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return apperr.Provider(c.provider, op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(op, req, result)
}

// get sends a GET request and parses JSON response
func (c *apiClient) get(ctx context.Context, op, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return apperr.Provider(c.provider, op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	return c.doRequest(op, req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *apiClient) doRequest(op string, req *http.Request, result interface{}) error {
	if c.authorize != nil {
		c.authorize(req)
	}

	c.log.Debug("provider request", "op", op, "method", req.Method, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("provider request failed", "op", op, "url", req.URL.String(), "error", err)
		return apperr.Provider(c.provider, op, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperr.Provider(c.provider, op, fmt.Errorf("failed to read response: %w", err))
	}

	c.log.Debug("provider response", "op", op, "status", resp.StatusCode, "url", req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apperr.ProviderError{
			Provider:   c.provider,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(truncate(string(respBody), 512)),
		}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		c.log.Warn("provider response unmarshal failed", "op", op, "error", err, "body", truncate(string(respBody), 512))
		return apperr.Provider(c.provider, op, fmt.Errorf("failed to unmarshal response: %w", err))
	}

	return nil
}

// download fetches an artifact from a provider CDN. No credentials are sent.
func (c *apiClient) download(ctx context.Context, op, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", apperr.Provider(c.provider, op, fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", apperr.Provider(c.provider, op, fmt.Errorf("download failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &apperr.ProviderError{
			Provider:   c.provider,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("download failed: %s", resp.Status),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, "", apperr.Provider(c.provider, op, fmt.Errorf("failed to read download: %w", err))
	}
	if len(data) > maxDownloadBytes {
		return nil, "", apperr.Provider(c.provider, op, fmt.Errorf("artifact exceeds %d bytes", maxDownloadBytes))
	}
	if len(data) == 0 {
		return nil, "", apperr.Provider(c.provider, op, fmt.Errorf("empty artifact"))
	}

	contentType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			contentType = mt
		}
	}
	return data, contentType, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// extensionFor maps a content type to a file extension.
func extensionFor(contentType, fallback string) string {
	switch contentType {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	default:
		return fallback
	}
}

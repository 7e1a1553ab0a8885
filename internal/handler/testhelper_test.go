package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap/zaptest"

	"github.com/ethan-huo/automation-chatbot/internal/logger"
	"github.com/ethan-huo/automation-chatbot/internal/middleware"
	"github.com/ethan-huo/automation-chatbot/internal/model"
	"github.com/ethan-huo/automation-chatbot/internal/service"
	"github.com/ethan-huo/automation-chatbot/internal/store"
	"github.com/ethan-huo/automation-chatbot/internal/store/storetest"
)

const testJWTSecret = "test-secret-for-handlers"

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, *model.AssetTask) error { return nil }

type testApp struct {
	app  *fiber.App
	repo *store.TaskRepo
}

// setupApp mirrors the routing of cmd/server with tasks left pending.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	repo, _ := storetest.Repo(t)
	log := logger.NewFromZap(zaptest.NewLogger(t))

	svc := service.NewAssetService(repo, nopDispatcher{}, service.Defaults{}, log)
	assets := NewAssetHandler(svc, validator.New(), log)
	authHandler := NewAuthHandler(testJWTSecret)
	limiter := middleware.NewRateLimiter(nil, log)

	app := fiber.New()
	app.Get("/health", Health(HealthInfo{Providers: map[string]string{"audio": "mock-audio"}, Storage: "memory"}))
	app.Get("/auth/verify", authHandler.Verify)

	api := app.Group("/api", middleware.NewAuthMiddleware(testJWTSecret).Authenticate())
	stories := api.Group("/stories")
	stories.Post("/:storyId/assets", limiter.GenerateLimit(10000), assets.GenerateStory)
	stories.Get("/:storyId/assets", assets.StorySnapshot)
	stories.Post("/:storyId/composition", limiter.AnimationLimit(10000), assets.ComposeStory)

	a := api.Group("/assets")
	a.Post("/audio", limiter.GenerateLimit(10000), assets.CreateAudio)
	a.Post("/image", limiter.GenerateLimit(10000), assets.CreateImage)
	a.Post("/animation", limiter.AnimationLimit(10000), assets.CreateAnimation)
	a.Get("/:taskId", assets.GetTask)

	return &testApp{app: app, repo: repo}
}

func generateToken(t *testing.T) string {
	t.Helper()
	tok, err := authIssue("test-user-123")
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return tok
}

func doRequest(app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, bodyReader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return app.Test(req, -1)
}

func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(b, &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, b)
	}
	return result
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("no error object in %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/ethan-huo/automation-chatbot/internal/auth"
	"github.com/ethan-huo/automation-chatbot/internal/model"
)

func authIssue(userID string) (string, error) {
	return auth.IssueToken(userID, "test@example.com", testJWTSecret, time.Hour)
}

func strPtr(s string) *string { return &s }

func (ta *testApp) complete(t *testing.T, id string, duration *float64) {
	t.Helper()
	ctx := context.Background()
	if _, err := ta.repo.Update(ctx, id, model.TaskUpdate{Status: model.TaskStatusProcessing}); err != nil {
		t.Fatalf("processing: %v", err)
	}
	if _, err := ta.repo.Update(ctx, id, model.TaskUpdate{
		Status:          model.TaskStatusCompleted,
		ResultURL:       strPtr("https://cdn/" + id),
		ResultKey:       strPtr("k/" + id),
		DurationSeconds: duration,
	}); err != nil {
		t.Fatalf("completed: %v", err)
	}
}

func TestCreateAudio_Accepted(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/audio",
		`{"storyId":"story-1","sceneId":"scene-1","text":"Once upon a time"}`)
	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["taskId"] == nil || result["taskId"] == "" {
		t.Error("expected 'taskId' in response")
	}
	if result["status"] != "pending" || result["assetType"] != "audio" {
		t.Errorf("unexpected response %v", result)
	}
}

func TestCreateAudio_NoAuth(t *testing.T) {
	ta := setupApp(t)
	resp, err := doRequest(ta.app, http.MethodPost, "/api/assets/audio", `{"storyId":"s","sceneId":"c","text":"x"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestCreateAudio_ValidationError(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/audio", `{"storyId":"story-1","sceneId":"scene-1"}`)
	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(t, resp); code != "VALIDATION_ERROR" {
		t.Errorf("code = %s", code)
	}

	tasks, _ := ta.repo.ListByStory(context.Background(), "story-1")
	if len(tasks) != 0 {
		t.Errorf("invalid request created %d rows", len(tasks))
	}
}

func TestCreateImage_InvalidBody(t *testing.T) {
	ta := setupApp(t)
	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/image", `{not json`)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestCreateImage_UnknownBotType(t *testing.T) {
	ta := setupApp(t)
	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/image",
		`{"storyId":"story-1","sceneId":"scene-1","prompt":"fox","botType":"DALL_E"}`)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestCreateAnimation_DependencyNotSatisfied(t *testing.T) {
	ta := setupApp(t)

	img := parseJSON(t, doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/image",
		`{"storyId":"story-1","sceneId":"scene-1","prompt":"fox"}`))
	body := fmt.Sprintf(`{"storyId":"story-1","sceneId":"scene-1","imageTaskId":"%s"}`, img["taskId"])

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/animation", body)
	assertStatus(t, resp, http.StatusConflict)
	result := parseJSON(t, resp)
	details := result["error"].(map[string]interface{})["details"].(map[string]interface{})
	if details["reason"] != "SourceNotCompleted" {
		t.Errorf("reason = %v", details["reason"])
	}

	ta.complete(t, img["taskId"].(string), nil)
	resp = doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/animation", body)
	assertStatus(t, resp, http.StatusConflict)
	details = parseJSON(t, resp)["error"].(map[string]interface{})["details"].(map[string]interface{})
	if details["reason"] != "AudioMissing" {
		t.Errorf("reason = %v", details["reason"])
	}
}

func TestCreateAnimation_IdempotentPerScene(t *testing.T) {
	ta := setupApp(t)

	img := parseJSON(t, doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/image",
		`{"storyId":"story-1","sceneId":"scene-1","prompt":"fox"}`))
	audio := parseJSON(t, doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/audio",
		`{"storyId":"story-1","sceneId":"scene-1","text":"hello"}`))
	d := 12.5
	ta.complete(t, img["taskId"].(string), nil)
	ta.complete(t, audio["taskId"].(string), &d)

	body := fmt.Sprintf(`{"storyId":"story-1","sceneId":"scene-1","imageTaskId":"%s"}`, img["taskId"])
	first := doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/animation", body)
	assertStatus(t, first, http.StatusAccepted)
	firstID := parseJSON(t, first)["taskId"]

	second := doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/animation", body)
	assertStatus(t, second, http.StatusOK)
	result := parseJSON(t, second)
	if result["taskId"] != firstID || result["existing"] != true {
		t.Errorf("second call = %v, want existing %v", result, firstID)
	}
}

func TestGenerateStory_AndSnapshot(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/stories/story-9/assets", `{
		"scenes": [
			{"sceneId": "s1", "narrationText": "one", "visualConceptPrompt": "p1"},
			{"sceneId": "s2", "narrationText": "two", "visualConceptPrompt": "p2"}
		]
	}`)
	assertStatus(t, resp, http.StatusAccepted)
	result := parseJSON(t, resp)
	scenes, ok := result["scenes"].([]interface{})
	if !ok || len(scenes) != 2 {
		t.Fatalf("scenes = %v", result["scenes"])
	}

	resp = doAuthRequest(t, ta.app, http.MethodGet, "/api/stories/story-9/assets", "")
	assertStatus(t, resp, http.StatusOK)
	snap := parseJSON(t, resp)
	if snap["totalShots"] != float64(2) || snap["isAllCompleted"] != false || snap["outstandingTasks"] != float64(4) {
		t.Errorf("snapshot = %v", snap)
	}
}

func TestGenerateStory_EmptyScenes(t *testing.T) {
	ta := setupApp(t)
	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/stories/story-9/assets", `{"scenes": []}`)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestStorySnapshot_EmptyStory(t *testing.T) {
	ta := setupApp(t)
	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/stories/nothing/assets", "")
	assertStatus(t, resp, http.StatusOK)
	if snap := parseJSON(t, resp); snap["isAllCompleted"] != false {
		t.Errorf("empty story reported complete: %v", snap)
	}
}

func TestGetTask(t *testing.T) {
	ta := setupApp(t)

	created := parseJSON(t, doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/audio",
		`{"storyId":"story-1","sceneId":"scene-1","text":"hi"}`))

	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/assets/"+created["taskId"].(string), "")
	assertStatus(t, resp, http.StatusOK)
	task := parseJSON(t, resp)
	if task["id"] != created["taskId"] || task["status"] != "pending" {
		t.Errorf("task = %v", task)
	}

	resp = doAuthRequest(t, ta.app, http.MethodGet, "/api/assets/missing", "")
	assertStatus(t, resp, http.StatusNotFound)
}

func TestHealth(t *testing.T) {
	ta := setupApp(t)
	resp, err := doRequest(ta.app, http.MethodGet, "/health", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	if body := parseJSON(t, resp); body["status"] != "ok" {
		t.Errorf("health = %v", body)
	}
}

func TestAuthVerify(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/auth/verify", "", map[string]string{
		"Authorization": "Bearer " + generateToken(t),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	if got := resp.Header.Get("X-User-Id"); got != "test-user-123" {
		t.Errorf("X-User-Id = %q", got)
	}

	resp, err = doRequest(ta.app, http.MethodGet, "/auth/verify", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestComposeStory_MissingAssetsThenAccepted(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/stories/story-1/composition", `{"sceneIds":["scene-1"]}`)
	assertStatus(t, resp, http.StatusConflict)
	details := parseJSON(t, resp)["error"].(map[string]interface{})["details"].(map[string]interface{})
	if details["reason"] != "AssetsMissing" {
		t.Errorf("reason = %v", details["reason"])
	}

	img := parseJSON(t, doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/image",
		`{"storyId":"story-1","sceneId":"scene-1","prompt":"fox"}`))
	audio := parseJSON(t, doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/audio",
		`{"storyId":"story-1","sceneId":"scene-1","text":"hello"}`))
	d := 4.0
	ta.complete(t, img["taskId"].(string), nil)
	ta.complete(t, audio["taskId"].(string), &d)
	anim := parseJSON(t, doAuthRequest(t, ta.app, http.MethodPost, "/api/assets/animation",
		fmt.Sprintf(`{"storyId":"story-1","sceneId":"scene-1","imageTaskId":"%s"}`, img["taskId"])))
	ta.complete(t, anim["taskId"].(string), nil)

	resp = doAuthRequest(t, ta.app, http.MethodPost, "/api/stories/story-1/composition", `{"sceneIds":["scene-1"]}`)
	assertStatus(t, resp, http.StatusAccepted)
	created := parseJSON(t, resp)
	if created["assetType"] != "video_composition" || created["sceneCount"] != float64(1) {
		t.Errorf("created = %v", created)
	}

	snap := parseJSON(t, doAuthRequest(t, ta.app, http.MethodGet, "/api/stories/story-1/assets", ""))
	if snap["totalShots"] != float64(1) || snap["isAllCompleted"] != true {
		t.Errorf("snapshot = %v", snap)
	}
	if comp, ok := snap["composition"].(map[string]interface{}); !ok || comp["id"] != created["taskId"] {
		t.Errorf("composition = %v", snap["composition"])
	}
}

func TestComposeStory_EmptyScenes(t *testing.T) {
	ta := setupApp(t)
	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/stories/story-1/composition", `{"sceneIds":[]}`)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestGenerateStory_PartialFailureReturnsCreatedTasks(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/stories/story-9/assets", `{
		"scenes": [
			{"sceneId": "s1", "narrationText": "one", "visualConceptPrompt": "p1"},
			{"sceneId": "s2", "narrationText": "   ", "visualConceptPrompt": "p2"}
		]
	}`)
	assertStatus(t, resp, http.StatusBadRequest)
	details := parseJSON(t, resp)["error"].(map[string]interface{})["details"].(map[string]interface{})
	partial, ok := details["partial"].(map[string]interface{})
	if !ok {
		t.Fatalf("details = %v, want partial result", details)
	}
	scenes := partial["scenes"].([]interface{})
	s1 := scenes[0].(map[string]interface{})
	s2 := scenes[1].(map[string]interface{})
	if s1["audioTaskId"] == "" || s1["imageTaskId"] == "" {
		t.Errorf("scene s1 = %v, want both task ids", s1)
	}
	if s2["imageTaskId"] == "" || s2["audioTaskId"] != "" {
		t.Errorf("scene s2 = %v, want only the image task id", s2)
	}
	if cause, ok := details["cause"].(map[string]interface{}); !ok || cause["text"] == nil {
		t.Errorf("cause = %v", details["cause"])
	}
}

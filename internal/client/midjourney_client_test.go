package client

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethan-huo/automation-chatbot/internal/model"
)

func pngGrid(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newMidjourneyServer(t *testing.T, grid []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/mj/submit/imagine", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("mj-api-secret") != "test-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var body midjourneyImagineRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.BotType != model.BotTypeMidjourney {
			t.Errorf("botType = %q, want default MID_JOURNEY", body.BotType)
		}
		if body.Prompt == "banned" {
			writeJSON(w, map[string]interface{}{"code": 24, "description": "banned prompt"})
			return
		}
		writeJSON(w, map[string]interface{}{"code": 1, "description": "Submit success", "result": "mj-7"})
	})
	mux.HandleFunc("/mj/task/mj-7/fetch", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"id": "mj-7", "status": "SUCCESS", "imageUrl": srv.URL + "/cdn/grid.png"})
	})
	mux.HandleFunc("/mj/task/mj-8/fetch", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"id": "mj-8", "status": "FAILURE", "failReason": "moderation"})
	})
	mux.HandleFunc("/mj/task/mj-9/fetch", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"id": "mj-9", "status": "IN_PROGRESS", "progress": "40%"})
	})
	mux.HandleFunc("/cdn/grid.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(grid)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestMidjourneyLifecycleWithQuadrant(t *testing.T) {
	srv := newMidjourneyServer(t, pngGrid(t, 40, 30))
	c := NewMidjourneyClient(providerConfig(srv.URL), testLogger(t))
	ctx := context.Background()

	jobID, err := c.Submit(ctx, &SubmitInput{Image: &model.ImageParams{Prompt: "a lighthouse"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jobID != "mj-7" {
		t.Fatalf("job id = %q", jobID)
	}

	st, err := c.PollStatus(ctx, jobID)
	if err != nil {
		t.Fatalf("PollStatus: %v", err)
	}
	if st.State != model.JobStatusSucceeded {
		t.Fatalf("state = %s", st.State)
	}

	art, err := c.FetchResult(ctx, st.ResultRef)
	if err != nil {
		t.Fatalf("FetchResult: %v", err)
	}
	if art.ContentType != "image/png" {
		t.Errorf("content type = %s", art.ContentType)
	}

	out, err := c.PostProcess(ctx, art)
	if err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	if out.Metadata[model.MetaQuadrantExtracted] != "topLeft" {
		t.Errorf("metadata = %v", out.Metadata)
	}
	if out.Metadata[model.MetaImageWidth] != 20 || out.Metadata[model.MetaImageHeight] != 15 {
		t.Errorf("dimensions = %v x %v, want 20 x 15", out.Metadata[model.MetaImageWidth], out.Metadata[model.MetaImageHeight])
	}
	if out.Metadata[model.MetaOriginalImageURL] != st.ResultRef {
		t.Errorf("original url not carried over: %v", out.Metadata)
	}
}

func TestMidjourneyPollStates(t *testing.T) {
	srv := newMidjourneyServer(t, nil)
	c := NewMidjourneyClient(providerConfig(srv.URL), testLogger(t))

	st, err := c.PollStatus(context.Background(), "mj-8")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != model.JobStatusFailed || st.ErrorDetail != "moderation" {
		t.Errorf("mj-8 = %+v", st)
	}

	st, err = c.PollStatus(context.Background(), "mj-9")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != model.JobStatusRunning {
		t.Errorf("mj-9 = %+v", st)
	}
}

func TestMidjourneySubmitRejected(t *testing.T) {
	srv := newMidjourneyServer(t, nil)
	c := NewMidjourneyClient(providerConfig(srv.URL), testLogger(t))
	if _, err := c.Submit(context.Background(), &SubmitInput{Image: &model.ImageParams{Prompt: "banned"}}); err == nil {
		t.Fatal("expected rejection")
	}
}

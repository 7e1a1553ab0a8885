package client

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ethan-huo/automation-chatbot/internal/config"
	"github.com/ethan-huo/automation-chatbot/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.NewFromZap(zaptest.NewLogger(t))
}

func providerConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{APIKey: "test-key", BaseURL: baseURL, Timeout: 5 * time.Second}
}

type tarEntry struct {
	name string
	body []byte
}

func buildTar(t *testing.T, entries ...tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write(e.body); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

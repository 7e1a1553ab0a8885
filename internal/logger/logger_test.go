package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSensitiveKeys(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core))

	l.Info("calling provider", "provider", "minimax", "api_key", "sk-123", "Authorization", "KEY abc")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["provider"] != "minimax" {
		t.Errorf("provider = %v, want minimax", fields["provider"])
	}
	if fields["api_key"] != "[REDACTED]" {
		t.Errorf("api_key = %v, want redacted", fields["api_key"])
	}
	if fields["Authorization"] != "[REDACTED]" {
		t.Errorf("Authorization = %v, want redacted", fields["Authorization"])
	}
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core)).With("worker", "AssetWorker")

	l.Warn("poll failed", "task_id", "t1")

	fields := logs.All()[0].ContextMap()
	if fields["worker"] != "AssetWorker" || fields["task_id"] != "t1" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	l, err := New("development", "chatty")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.SugaredLogger.Desugar().Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled when level falls back to info")
	}
}

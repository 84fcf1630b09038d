package logger_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Siriusbar/SlopedIn/infrastructure/logger"
)

func TestWithContext_FromContext_RoundTrip(t *testing.T) {
	t.Parallel()

	core, _ := observer.New(zapcore.DebugLevel)
	want := logger.Wrap(zap.New(core))
	ctx := logger.WithContext(context.Background(), want)

	if got := logger.FromContext(ctx); got != want {
		t.Errorf("FromContext returned %v, want the stored logger", got)
	}
}

func TestFromContext_NoLogger_ReturnsUsableFallback(t *testing.T) {
	t.Parallel()

	fallback := logger.FromContext(context.Background())
	if fallback == nil {
		t.Fatal("FromContext on empty context returned nil")
	}

	fallback.Debug("filtered")
	fallback.Warn("kept", logger.String("key", "value"))
}

func TestWrap_WithAttachesFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	log := logger.Wrap(zap.New(core)).With(logger.Component("tracker"))

	log.Debug("dropped below level")
	log.Warn("Classification failed for item",
		logger.ItemHandle("urn:li:activity:1"),
		logger.Error(errors.New("boom")),
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["component"] != "tracker" {
		t.Errorf("component = %v, want tracker", fields["component"])
	}
	if fields["item_handle"] != "urn:li:activity:1" {
		t.Errorf("item_handle = %v", fields["item_handle"])
	}
	if fields["error"] != "boom" {
		t.Errorf("error = %v, want boom", fields["error"])
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	t.Parallel()

	log, err := logger.New(logger.Config{Level: "debug", OutputPaths: []string{"stderr"}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	log.Debug("hello")
	_ = log.Sync()
}

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg logger.Config
	cfg.SetDefaults()

	if cfg.Level != logger.DefaultLevel {
		t.Errorf("Level = %q, want %q", cfg.Level, logger.DefaultLevel)
	}
	if len(cfg.OutputPaths) != 1 || cfg.OutputPaths[0] != "stdout" {
		t.Errorf("OutputPaths = %v, want [stdout]", cfg.OutputPaths)
	}
}

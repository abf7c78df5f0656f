package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestBuild_Presets(t *testing.T) {
	for _, dev := range []bool{true, false} {
		log, err := Build(Options{Development: dev})
		if err != nil {
			t.Fatalf("Build(dev=%v): %v", dev, err)
		}
		if log == nil {
			t.Fatal("expected non-nil logger")
		}
		log.Info("test message")
	}
}

func TestBuild_Level(t *testing.T) {
	log, err := Build(Options{Level: "warn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !log.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("error should be enabled at warn level")
	}
}

func TestBuild_JSONEncoding(t *testing.T) {
	log, err := Build(Options{Development: true, Encoding: "json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("development preset should keep debug enabled")
	}
}

func TestBuild_Invalid(t *testing.T) {
	if _, err := Build(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := Build(Options{Encoding: "xml"}); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

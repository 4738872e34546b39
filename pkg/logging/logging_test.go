package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	quiet, err := New(false)
	if err != nil {
		t.Fatalf("New(false) failed: %v", err)
	}
	if quiet.Core().Enabled(zapcore.DebugLevel) {
		t.Errorf("Expected debug to be disabled by default")
	}

	verbose, err := New(true)
	if err != nil {
		t.Fatalf("New(true) failed: %v", err)
	}
	if !verbose.Core().Enabled(zapcore.DebugLevel) {
		t.Errorf("Expected debug to be enabled with verbose")
	}
}

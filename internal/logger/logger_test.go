package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger_Environments(t *testing.T) {
	for _, env := range []string{"prod", "local", "dev", "docker"} {
		l, err := NewLogger(env, "", FileSink{})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", env, err)
		}
		_ = l.Sync()
	}

	if _, err := NewLogger("staging", "", FileSink{}); err == nil {
		t.Fatal("expected error for unknown environment")
	}
}

func TestNewLogger_Level(t *testing.T) {
	l, err := NewLogger("prod", "warn", FileSink{})
	if err != nil {
		t.Fatal(err)
	}
	if l.Core().Enabled(zap.InfoLevel) {
		t.Error("info must be disabled at warn level")
	}
	if !l.Core().Enabled(zap.WarnLevel) {
		t.Error("warn must be enabled at warn level")
	}

	if _, err := NewLogger("prod", "loud", FileSink{}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNewLogger_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "failrag.log")
	l, err := NewLogger("prod", "info", FileSink{Path: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("snapshot loaded", zap.Int("documents", 3))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"snapshot loaded"`) || !strings.Contains(string(data), `"documents":3`) {
		t.Errorf("unexpected log file contents: %s", data)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background(), nil) == nil {
		t.Fatal("expected nop logger for empty context")
	}

	fallback := zap.NewExample()
	if got := FromContext(context.Background(), fallback); got != fallback {
		t.Error("expected fallback logger for empty context")
	}

	l := zap.NewExample()
	if got := FromContext(ContextWithLogger(context.Background(), l), fallback); got != l {
		t.Error("expected stored logger to win over fallback")
	}

	ctx := ContextWithLogger(context.Background(), nil)
	if got := FromContext(ctx, fallback); got != fallback {
		t.Error("nil logger should not be stored")
	}
}

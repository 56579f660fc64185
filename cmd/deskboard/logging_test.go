package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hylla/deskboard/internal/config"
)

var logNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRuntimeLoggerWritesDevFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	logger, err := newRuntimeLogger(&console, "deskboard", true, config.LoggingConfig{
		Level:   "debug",
		DevFile: config.DevFileConfig{Enabled: true, Dir: dir},
	}, func() time.Time { return logNow })
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	want := filepath.Join(dir, "deskboard-20260301.log")
	if logger.DevLogPath() != want {
		t.Fatalf("DevLogPath() = %q, want %q", logger.DevLogPath(), want)
	}

	logger.Info("reorder committed", "item_id", "A", "changes", 2)
	logger.Debug("refresh skipped")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	content, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	for _, fragment := range []string{"reorder committed", "item_id=A", "changes=2", "refresh skipped"} {
		if !strings.Contains(string(content), fragment) {
			t.Fatalf("dev log missing %q:\n%s", fragment, content)
		}
	}
	if !strings.Contains(console.String(), "reorder committed") {
		t.Fatalf("console sink missing event:\n%s", console.String())
	}
}

func TestRuntimeLoggerConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	logger, err := newRuntimeLogger(&console, "deskboard", false, config.LoggingConfig{
		Level:   "warn",
		DevFile: config.DevFileConfig{Enabled: true, Dir: t.TempDir()},
	}, nil)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	if logger.DevLogPath() != "" {
		t.Fatalf("dev file must stay off outside dev mode, got %q", logger.DevLogPath())
	}
	logger.Info("quiet")
	logger.Error("loud", "err", "boom")
	if strings.Contains(console.String(), "quiet") || !strings.Contains(console.String(), "loud") {
		t.Fatalf("level filter not applied:\n%s", console.String())
	}
}

func TestRuntimeLoggerRejectsBadLevel(t *testing.T) {
	if _, err := newRuntimeLogger(nil, "deskboard", false, config.LoggingConfig{Level: "chatty"}, nil); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestDevLogFilePathAnchorsRelativeDir(t *testing.T) {
	path, err := devLogFilePath(".deskboard/log", "my app", logNow)
	if err != nil {
		t.Fatalf("devLogFilePath() error = %v", err)
	}
	if !filepath.IsAbs(path) || filepath.Base(path) != "my-app-20260301.log" {
		t.Fatalf("unexpected dev log path %q", path)
	}
	if !strings.HasSuffix(filepath.Dir(path), filepath.Join(".deskboard", "log")) {
		t.Fatalf("relative dir should be kept under the workspace root, got %q", path)
	}
}

func TestSanitizeLogFileStem(t *testing.T) {
	cases := map[string]string{
		"":           "deskboard",
		" / ":        "deskboard",
		"a/b":        "a-b",
		"team board": "team-board",
		"c:\\tmp":    "c--tmp",
	}
	for in, want := range cases {
		if got := sanitizeLogFileStem(in); got != want {
			t.Fatalf("sanitizeLogFileStem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("DESKBOARD_TEST_BOOL", "true")
	if v, ok := parseBoolEnv("DESKBOARD_TEST_BOOL"); !v || !ok {
		t.Fatalf("parseBoolEnv() = %t, %t", v, ok)
	}
	t.Setenv("DESKBOARD_TEST_BOOL", "maybe")
	if _, ok := parseBoolEnv("DESKBOARD_TEST_BOOL"); ok {
		t.Fatal("invalid bool should report unset")
	}
}

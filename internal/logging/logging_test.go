package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelStringRoundTrip(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(level))
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", LevelString(level), err)
		}
		if parsed != level {
			t.Errorf("expected %v, got %v", level, parsed)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("json: got %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("empty: got %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.MaxSize <= 0 || cfg.MaxAge <= 0 || cfg.MaxBackups <= 0 {
		t.Errorf("expected positive rotation limits, got %+v", cfg)
	}
	if !strings.Contains(cfg.FilePath, "mousewatch") {
		t.Errorf("unexpected default log path %q", cfg.FilePath)
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{
		Level:     LevelDebug,
		Format:    FormatJSON,
		Writer:    &buf,
		Component: "test",
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Close()

	logger.Info("hook installed", "slot", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "hook installed" {
		t.Errorf("unexpected msg %v", rec["msg"])
	}
	if rec["component"] != "test" {
		t.Errorf("unexpected component %v", rec["component"])
	}
	if rec["slot"] != float64(3) {
		t.Errorf("unexpected slot %v", rec["slot"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: LevelWarn, Writer: &buf})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record should be filtered")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn record missing")
	}
}

func TestLevelerOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	level.Set(LevelError)

	logger, err := New(&Config{Level: LevelDebug, Leveler: &level, Writer: &buf})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Warn("before")
	level.Set(LevelDebug)
	logger.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Error("warn record should be filtered at error level")
	}
	if !strings.Contains(out, "after") {
		t.Error("debug record missing after level change")
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Writer: &buf})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Info("metrics", "auth_token", "hunter2", "listen_addr", "127.0.0.1:9464")

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Error("sensitive value was logged")
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("expected redaction marker")
	}
	if !strings.Contains(out, "127.0.0.1:9464") {
		t.Error("non-sensitive value should be kept")
	}
}

func TestShouldRedact(t *testing.T) {
	tests := map[string]bool{
		"password":    true,
		"API_KEY":     true,
		"authHeader":  true,
		"handle":      false,
		"slot":        false,
		"wheel_delta": false,
	}
	for key, want := range tests {
		if got := shouldRedact(key); got != want {
			t.Errorf("shouldRedact(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Writer: &buf})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.WithComponent("msgloop").Info("started")
	if !strings.Contains(buf.String(), "component=msgloop") {
		t.Errorf("component missing from %q", buf.String())
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mousewatch.log")
	logger, err := New(&Config{Output: "file", FilePath: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Info("to file")
	if err := logger.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing record: %q", data)
	}
}

func TestFileRotatorRotatesBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	rotator, err := NewFileRotator(&Config{
		FilePath:   path,
		MaxSize:    1,
		MaxBackups: 2,
		MaxAge:     7,
	})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 4; i++ {
		if _, err := rotator.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := rotator.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := rotator.Files()
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	// Four 600 KiB writes against a 1 MiB limit rotate three times; pruning
	// keeps two backups.
	if len(files) != 3 {
		t.Errorf("expected active file plus 2 backups, got %v", files)
	}
}

func TestFileRotatorCompresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	rotator, err := NewFileRotator(&Config{FilePath: path, MaxSize: 1, MaxBackups: 5, Compress: true})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}

	chunk := bytes.Repeat([]byte("y"), 700*1024)
	rotator.Write(chunk)
	rotator.Write(chunk)
	rotator.Close()

	gz, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "test-*.log.gz"))
	if len(gz) != 1 {
		t.Errorf("expected one compressed backup, got %v", gz)
	}
}

func TestShouldRotateAtDayBoundary(t *testing.T) {
	r := &FileRotator{config: &Config{MaxSize: 100}, size: 10}
	r.openedAt = time.Date(2026, 1, 1, 23, 59, 0, 0, time.Local)

	if r.shouldRotate(1, time.Date(2026, 1, 1, 23, 59, 30, 0, time.Local)) {
		t.Error("same day should not rotate")
	}
	if !r.shouldRotate(1, time.Date(2026, 1, 2, 0, 0, 1, 0, time.Local)) {
		t.Error("next day should rotate")
	}
}

func TestCrashHandler(t *testing.T) {
	dir := t.TempDir()
	var seen []CrashReport
	handler := NewCrashHandler(&CrashHandlerConfig{
		CrashDir:  dir,
		Version:   "1.0.0",
		Component: "test",
		OnCrash:   func(r CrashReport) { seen = append(seen, r) },
	})

	panicked := handler.Recover(map[string]any{"op": "start"}, func() {
		panic("hook thread died")
	})
	if !panicked {
		t.Fatal("Recover should report the panic")
	}

	reports, err := handler.Reports()
	if err != nil {
		t.Fatalf("failed to read crash reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if reports[0].PanicValue != "hook thread died" {
		t.Errorf("unexpected panic value %q", reports[0].PanicValue)
	}
	if reports[0].Version != "1.0.0" || reports[0].Context["op"] != "start" {
		t.Errorf("unexpected report %+v", reports[0])
	}
	if len(seen) != 1 {
		t.Errorf("OnCrash called %d times", len(seen))
	}

	if handler.Recover(nil, func() {}) {
		t.Error("Recover reported a panic for a clean run")
	}
}

func TestCrashHandlerPrune(t *testing.T) {
	dir := t.TempDir()
	handler := NewCrashHandler(&CrashHandlerConfig{CrashDir: dir, Component: "test"})
	handler.HandlePanic("old", nil)

	old := time.Now().Add(-48 * time.Hour)
	files, _ := filepath.Glob(filepath.Join(dir, "crash-*.json"))
	for _, f := range files {
		os.Chtimes(f, old, old)
	}

	if err := handler.Prune(24 * time.Hour); err != nil {
		t.Fatalf("prune: %v", err)
	}
	reports, _ := handler.Reports()
	if len(reports) != 0 {
		t.Errorf("expected old reports to be pruned, got %d", len(reports))
	}
}

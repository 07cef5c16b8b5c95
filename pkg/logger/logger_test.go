package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"CareFollow/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{" Warn ", zapcore.WarnLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitWritesJSONWithServiceFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carefollow.log")
	cfg := &config.Config{
		ServiceName:      "carefollow",
		ServiceVersion:   "v1.2.3",
		Environment:      "production",
		LoggerLevel:      "INFO",
		LoggerFormat:     "json",
		LoggerOutputPath: path,
	}
	if err := Init(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Named("scheduler").Info("Reminder dispatch completed")
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"service":"carefollow"`, `"version":"v1.2.3"`, `"component":"scheduler"`, "Reminder dispatch completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestInitRejectsUnwritablePath(t *testing.T) {
	cfg := &config.Config{
		LoggerOutputPath: filepath.Join(t.TempDir(), "missing", "dir", "carefollow.log"),
	}
	if err := Init(cfg); err == nil {
		t.Fatal("expected error for unwritable log path")
	}
}

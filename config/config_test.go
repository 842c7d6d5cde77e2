package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/robotdiary/memory-go-sdk/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MEMORY_DIR", "MEMORY_RETENTION_DAYS", "MAX_MEMORY_ENTRIES",
		"SUMMARY_MAX_CHARS", "RECENT_COUNT", "SEMANTIC_TOP_K",
		"MAX_PROMPT_MEMORIES", "MAX_TOOL_ITERATIONS", "ANTHROPIC_API_KEY",
		"SUMMARY_MODEL", "GENERATION_MODEL", "EMBEDDER",
		"ONNX_MODEL_PATH", "ONNX_TOKENIZER_PATH", "ONNX_LIBRARY_PATH",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MemoryDir != "memory" {
		t.Errorf("MemoryDir = %q", cfg.MemoryDir)
	}
	if cfg.RetentionAge != 30*24*time.Hour {
		t.Errorf("RetentionAge = %v", cfg.RetentionAge)
	}
	if cfg.MaxEntries != 50 {
		t.Errorf("MaxEntries = %d", cfg.MaxEntries)
	}
	if cfg.SummaryMaxChars != 400 {
		t.Errorf("SummaryMaxChars = %d", cfg.SummaryMaxChars)
	}
	if cfg.RecentCount != 5 || cfg.SemanticTopK != 5 {
		t.Errorf("RecentCount = %d, SemanticTopK = %d", cfg.RecentCount, cfg.SemanticTopK)
	}
	if cfg.MaxToolIterations != 10 {
		t.Errorf("MaxToolIterations = %d", cfg.MaxToolIterations)
	}
	if cfg.Embedder != config.EmbedderMock {
		t.Errorf("Embedder = %q", cfg.Embedder)
	}

	if got := cfg.ObservationLogPath(); got != filepath.Join("memory", "observations.json") {
		t.Errorf("ObservationLogPath = %q", got)
	}
	if got := cfg.IndexDir(); got != filepath.Join("memory", "chroma_db") {
		t.Errorf("IndexDir = %q", got)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEMORY_DIR", "/var/lib/robot")
	t.Setenv("MEMORY_RETENTION_DAYS", "7")
	t.Setenv("MAX_MEMORY_ENTRIES", "200")
	t.Setenv("MAX_TOOL_ITERATIONS", "4")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MemoryDir != "/var/lib/robot" {
		t.Errorf("MemoryDir = %q", cfg.MemoryDir)
	}
	if cfg.RetentionAge != 7*24*time.Hour {
		t.Errorf("RetentionAge = %v", cfg.RetentionAge)
	}
	if cfg.MaxEntries != 200 {
		t.Errorf("MaxEntries = %d", cfg.MaxEntries)
	}
	if cfg.MaxToolIterations != 4 {
		t.Errorf("MaxToolIterations = %d", cfg.MaxToolIterations)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric retention", "MEMORY_RETENTION_DAYS", "forever"},
		{"negative retention", "MEMORY_RETENTION_DAYS", "-1"},
		{"zero iterations", "MAX_TOOL_ITERATIONS", "0"},
		{"unknown embedder", "EMBEDDER", "tfidf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := config.Load(); err == nil {
				t.Errorf("Expected an error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_ONNXRequiresPaths(t *testing.T) {
	clearEnv(t)
	t.Setenv("EMBEDDER", "onnx")

	if _, err := config.Load(); err == nil {
		t.Fatal("Expected an error when onnx paths are missing")
	}

	t.Setenv("ONNX_MODEL_PATH", "/models/all-MiniLM-L6-v2.onnx")
	t.Setenv("ONNX_TOKENIZER_PATH", "/models/tokenizer.json")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed with onnx paths set: %v", err)
	}
	if cfg.Embedder != config.EmbedderONNX {
		t.Errorf("Embedder = %q", cfg.Embedder)
	}
}

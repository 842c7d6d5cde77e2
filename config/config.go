// Package config loads memory engine settings from the environment, with
// .env support for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Embedder backends selectable via the EMBEDDER variable.
const (
	EmbedderMock = "mock"
	EmbedderONNX = "onnx"
)

// Config holds the memory engine configuration.
type Config struct {
	// MemoryDir holds the observation log and the index directory.
	MemoryDir string

	// RetentionAge bounds record age (MEMORY_RETENTION_DAYS).
	RetentionAge time.Duration

	// MaxEntries caps the observation log size.
	MaxEntries int

	// SummaryMaxChars bounds record summaries.
	SummaryMaxChars int

	// RecentCount is the guaranteed-recent window for hybrid retrieval.
	RecentCount int

	// SemanticTopK is the semantic result budget for hybrid retrieval.
	SemanticTopK int

	// MaxPromptMemories caps the merged retrieval result size.
	MaxPromptMemories int

	// MaxToolIterations bounds tool rounds in the generation loop.
	MaxToolIterations int

	// AnthropicAPIKey enables the summarizer and the generation loop.
	// Empty is allowed: summaries fall back to truncation.
	AnthropicAPIKey string

	SummaryModel    string
	GenerationModel string

	// Embedder selects the embedding backend (mock or onnx).
	Embedder string

	ONNXModelPath     string
	ONNXTokenizerPath string
	ONNXLibraryPath   string
}

// ObservationLogPath is the log file location under MemoryDir.
func (c *Config) ObservationLogPath() string {
	return filepath.Join(c.MemoryDir, "observations.json")
}

// IndexDir is the chromem persistence directory under MemoryDir.
func (c *Config) IndexDir() string {
	return filepath.Join(c.MemoryDir, "chroma_db")
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		MemoryDir:         getEnv("MEMORY_DIR", "memory"),
		SummaryModel:      getEnv("SUMMARY_MODEL", ""),
		GenerationModel:   getEnv("GENERATION_MODEL", ""),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		Embedder:          getEnv("EMBEDDER", EmbedderMock),
		ONNXModelPath:     os.Getenv("ONNX_MODEL_PATH"),
		ONNXTokenizerPath: os.Getenv("ONNX_TOKENIZER_PATH"),
		ONNXLibraryPath:   os.Getenv("ONNX_LIBRARY_PATH"),
	}

	var err error
	retentionDays, err := getEnvInt("MEMORY_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}
	cfg.RetentionAge = time.Duration(retentionDays) * 24 * time.Hour

	if cfg.MaxEntries, err = getEnvInt("MAX_MEMORY_ENTRIES", 50); err != nil {
		return nil, err
	}
	if cfg.SummaryMaxChars, err = getEnvInt("SUMMARY_MAX_CHARS", 400); err != nil {
		return nil, err
	}
	if cfg.RecentCount, err = getEnvInt("RECENT_COUNT", 5); err != nil {
		return nil, err
	}
	if cfg.SemanticTopK, err = getEnvInt("SEMANTIC_TOP_K", 5); err != nil {
		return nil, err
	}
	if cfg.MaxPromptMemories, err = getEnvInt("MAX_PROMPT_MEMORIES", 12); err != nil {
		return nil, err
	}
	if cfg.MaxToolIterations, err = getEnvInt("MAX_TOOL_ITERATIONS", 10); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RetentionAge < 0 {
		return fmt.Errorf("MEMORY_RETENTION_DAYS must not be negative")
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("MAX_MEMORY_ENTRIES must not be negative")
	}
	if c.RecentCount <= 0 {
		return fmt.Errorf("RECENT_COUNT must be positive")
	}
	if c.SemanticTopK < 0 {
		return fmt.Errorf("SEMANTIC_TOP_K must not be negative")
	}
	if c.MaxToolIterations <= 0 {
		return fmt.Errorf("MAX_TOOL_ITERATIONS must be positive")
	}

	switch c.Embedder {
	case EmbedderMock:
	case EmbedderONNX:
		if c.ONNXModelPath == "" || c.ONNXTokenizerPath == "" {
			return fmt.Errorf("EMBEDDER=onnx requires ONNX_MODEL_PATH and ONNX_TOKENIZER_PATH")
		}
	default:
		return fmt.Errorf("unknown EMBEDDER %q (want %s or %s)", c.Embedder, EmbedderMock, EmbedderONNX)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

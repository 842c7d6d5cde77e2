//go:build onnx

package main

import (
	"github.com/robotdiary/memory-go-sdk/config"
	"github.com/robotdiary/memory-go-sdk/memory"
	"github.com/robotdiary/memory-go-sdk/memory/embedder/mock"
	"github.com/robotdiary/memory-go-sdk/memory/embedder/onnx"
)

func newEmbedder(cfg *config.Config) (memory.Embedder, error) {
	if cfg.Embedder == config.EmbedderMock {
		return mock.New(), nil
	}
	return onnx.New(onnx.Config{
		ModelPath:     cfg.ONNXModelPath,
		TokenizerPath: cfg.ONNXTokenizerPath,
		LibraryPath:   cfg.ONNXLibraryPath,
	})
}

//go:build !onnx

package main

import (
	"fmt"

	"github.com/robotdiary/memory-go-sdk/config"
	"github.com/robotdiary/memory-go-sdk/memory"
	"github.com/robotdiary/memory-go-sdk/memory/embedder/mock"
)

func newEmbedder(cfg *config.Config) (memory.Embedder, error) {
	if cfg.Embedder == config.EmbedderONNX {
		return nil, fmt.Errorf("EMBEDDER=onnx requires building with -tags onnx")
	}
	return mock.New(), nil
}

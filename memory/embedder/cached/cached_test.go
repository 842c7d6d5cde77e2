package cached_test

import (
	"context"
	"errors"
	"testing"

	"github.com/robotdiary/memory-go-sdk/memory/embedder/cached"
	"github.com/robotdiary/memory-go-sdk/memory/embedder/mock"
)

type countingEmbedder struct {
	inner *mock.Embedder
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }

func TestEmbedder_DelegatesAndStaysStable(t *testing.T) {
	inner := &countingEmbedder{inner: mock.New()}
	e, err := cached.New(inner)
	if err != nil {
		t.Fatalf("Failed to create cached embedder: %v", err)
	}
	defer e.Close()

	ctx := context.Background()
	first, err := e.Embed(ctx, "a crowd near the fountain")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(first) != inner.Dimensions() {
		t.Fatalf("Expected %d dimensions, got %d", inner.Dimensions(), len(first))
	}

	second, err := e.Embed(ctx, "a crowd near the fountain")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("Vectors differ at %d: %v vs %v", i, first[i], second[i])
		}
	}

	if e.Dimensions() != inner.Dimensions() {
		t.Errorf("Dimensions = %d, want %d", e.Dimensions(), inner.Dimensions())
	}
}

func TestEmbedder_ErrorsAreNotCached(t *testing.T) {
	inner := &countingEmbedder{inner: mock.New(), err: errors.New("model not loaded")}
	e, err := cached.New(inner)
	if err != nil {
		t.Fatalf("Failed to create cached embedder: %v", err)
	}
	defer e.Close()

	ctx := context.Background()
	if _, err := e.Embed(ctx, "text"); err == nil {
		t.Fatal("Expected the inner error to propagate")
	}

	// After the inner embedder recovers, the same text embeds fine.
	inner.err = nil
	if _, err := e.Embed(ctx, "text"); err != nil {
		t.Fatalf("Expected success after recovery: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("Expected 2 inner calls, got %d", inner.calls)
	}
}

package memory

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by Index implementations once the backing
// service has been marked unavailable for the remainder of the process
// lifetime. Callers treat it as a first-class state, not a transient error.
var ErrUnavailable = errors.New("semantic index unavailable")

// Embedder converts text to vector embeddings.
// Implementations: mock (testing), onnx (local all-MiniLM-L6-v2),
// cached (ristretto decorator over either).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Hit is one semantic search result: a record id and its similarity score.
type Hit struct {
	RecordID int64
	Score    float32
}

// Index is the optional semantic search backend. It is a cache over the
// observation log, never authoritative: entries may lag behind the log and
// the whole index can be rebuilt from it.
//
// Availability is binary and latched. Once an implementation marks itself
// unavailable (failed init, unreachable embedder), Add and Query return
// ErrUnavailable for the rest of the process lifetime. A context deadline
// on a single call does not latch.
type Index interface {
	// Add computes an embedding for text and upserts it under recordID.
	// Idempotent: re-adding the same id overwrites.
	Add(ctx context.Context, recordID int64, text string) error

	// Query returns at most topK hits ordered by descending similarity.
	// An empty index yields an empty slice, not an error.
	Query(ctx context.Context, text string, topK int) ([]Hit, error)

	// Available reports whether the semantic path can be used.
	Available() bool
}

// Summarizer produces a short, information-dense synopsis of an
// observation's content. Implementations must absorb every failure and
// fall back to truncation: Summarize never returns an error and never
// returns an empty string for the pipeline to choke on.
type Summarizer interface {
	Summarize(ctx context.Context, content string) string
}

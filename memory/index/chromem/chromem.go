// Package chromem backs the semantic index with chromem-go, a pure Go
// embedded vector database.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/robotdiary/memory-go-sdk/core"
	"github.com/robotdiary/memory-go-sdk/memory"
)

const collectionName = "observations"

// Index implements memory.Index over a chromem-go collection. One document
// is kept per observation id; re-adding an id overwrites the document.
//
// Availability starts true and latches false on the first failure that is
// not a caller-side context deadline. The latch is per-process: callers
// must not retry an unavailable index.
type Index struct {
	db       *chromem.DB
	embedder memory.Embedder

	mu         sync.Mutex
	collection *chromem.Collection
	available  bool
}

// New opens (or creates) a persistent index under dir.
func New(dir string, embedder memory.Embedder) (*Index, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	return newIndex(db, embedder)
}

// NewInMemory creates a volatile index. Used by tests and for runs where
// the index is rebuilt from the log at startup.
func NewInMemory(embedder memory.Embedder) (*Index, error) {
	return newIndex(chromem.NewDB(), embedder)
}

func newIndex(db *chromem.DB, embedder memory.Embedder) (*Index, error) {
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	log.Printf("[INDEX] Chromem collection ready: %d entries", col.Count())
	return &Index{
		db:         db,
		embedder:   embedder,
		collection: col,
		available:  true,
	}, nil
}

// Available reports whether the semantic path can be used.
func (ix *Index) Available() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.available
}

// Count returns the number of indexed entries.
func (ix *Index) Count() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.collection.Count()
}

// markUnavailable latches the index off unless the failure was a
// caller-side deadline or cancellation, which says nothing about the
// backing service.
func (ix *Index) markUnavailable(err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.available {
		ix.available = false
		log.Printf("[INDEX] Marked unavailable for the rest of this run: %v", err)
	}
}

// Add embeds text and upserts it under recordID. Idempotent: the last
// write for an id wins.
func (ix *Index) Add(ctx context.Context, recordID int64, text string) error {
	if !ix.Available() {
		return memory.ErrUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("record %d has no text to embed", recordID)
	}

	embedding, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		ix.markUnavailable(err)
		return fmt.Errorf("embed record %d: %w", recordID, err)
	}

	doc := chromem.Document{
		ID:        strconv.FormatInt(recordID, 10),
		Content:   text,
		Embedding: embedding,
	}

	ix.mu.Lock()
	col := ix.collection
	ix.mu.Unlock()

	if err := col.AddDocument(ctx, doc); err != nil {
		ix.markUnavailable(err)
		return fmt.Errorf("add document %d: %w", recordID, err)
	}
	return nil
}

// Query returns at most topK hits ordered by descending similarity. An
// empty index yields no hits and no error.
func (ix *Index) Query(ctx context.Context, text string, topK int) ([]memory.Hit, error) {
	if !ix.Available() {
		return nil, memory.ErrUnavailable
	}
	if topK <= 0 {
		return nil, nil
	}

	embedding, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		ix.markUnavailable(err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	ix.mu.Lock()
	col := ix.collection
	ix.mu.Unlock()

	// chromem requires nResults <= collection size; shrink until it fits.
	var results []chromem.Result
	for limit := topK; limit >= 1; limit-- {
		results, err = col.QueryEmbedding(ctx, embedding, limit, nil, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if limit == 1 {
				return nil, nil // Collection is empty.
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]memory.Hit, 0, len(results))
	for _, res := range results {
		id, err := strconv.ParseInt(res.ID, 10, 64)
		if err != nil {
			log.Printf("[INDEX] Skipping result with malformed id %q", res.ID)
			continue
		}
		hits = append(hits, memory.Hit{RecordID: id, Score: res.Similarity})
	}
	return hits, nil
}

// Rebuild drops the collection and re-indexes every record from the
// observation log. This is the recovery path when the index is corrupted
// or the embedder changes; the log remains the source of truth throughout.
// Returns the number of records indexed.
func (ix *Index) Rebuild(ctx context.Context, records []core.ObservationRecord) (int, error) {
	ix.mu.Lock()
	if err := ix.db.DeleteCollection(collectionName); err != nil {
		ix.mu.Unlock()
		return 0, fmt.Errorf("drop collection: %w", err)
	}
	col, err := ix.db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		ix.mu.Unlock()
		return 0, fmt.Errorf("recreate collection: %w", err)
	}
	ix.collection = col
	ix.available = true
	ix.mu.Unlock()

	indexed := 0
	for _, rec := range records {
		if err := ix.Add(ctx, rec.ID, rec.Text()); err != nil {
			if errors.Is(err, memory.ErrUnavailable) || !ix.Available() {
				return indexed, err
			}
			log.Printf("[INDEX] Rebuild skipped record %d: %v", rec.ID, err)
			continue
		}
		indexed++
	}

	log.Printf("[INDEX] Rebuilt index from log: %d/%d records", indexed, len(records))
	return indexed, nil
}

// isInsufficientDocsError checks if the error is chromem complaining that
// nResults exceeds the number of stored documents.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

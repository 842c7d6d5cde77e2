package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/robotdiary/memory-go-sdk/core"
)

// QueryContext is the small key-value set of situational fields (weather,
// time of day, date) supplied by an external collaborator. The retriever
// only turns it into a query string; the field set is not interpreted here.
type QueryContext map[string]string

// QueryBuilder derives a semantic query string from a QueryContext. It is
// a pluggable strategy: when to lean on which context fields is owned by
// the caller, not this package.
type QueryBuilder func(QueryContext) string

// BuildContextQuery is the default QueryBuilder. It concatenates the
// commonly available fields and falls back to a generic query so semantic
// search still has something to work with.
func BuildContextQuery(qc QueryContext) string {
	var parts []string

	if weather := qc["weather"]; weather != "" {
		parts = append(parts, "weather: "+weather)
	}
	if tod := qc["time_of_day"]; tod != "" {
		parts = append(parts, "time: "+tod)
	}
	if date := qc["date"]; date != "" {
		if t, err := time.Parse(time.RFC3339, date); err == nil {
			parts = append(parts, "month: "+t.Format("January"))
		}
	}

	if len(parts) == 0 {
		return "recent observations"
	}
	return strings.Join(parts, " ")
}

// Retriever composes the observation store (guaranteed recency) and the
// semantic index (best-effort relevance) into one deduplicated result set.
// It is the sole read path used by generation.
type Retriever struct {
	store      *Store
	index      Index
	buildQuery QueryBuilder

	// maxResults bounds the merged result size against the prompt budget.
	// Semantic entries are trimmed first, lowest score first; recency
	// entries are never dropped. Zero disables the cap.
	maxResults int
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithQueryBuilder replaces the default context-to-query strategy.
func WithQueryBuilder(b QueryBuilder) RetrieverOption {
	return func(r *Retriever) { r.buildQuery = b }
}

// WithMaxResults caps the merged result set size.
func WithMaxResults(n int) RetrieverOption {
	return func(r *Retriever) { r.maxResults = n }
}

// NewRetriever creates a hybrid retriever. index may be nil when no
// semantic backend is configured; retrieval then serves the recency window
// only.
func NewRetriever(store *Store, index Index, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		store:      store,
		index:      index,
		buildQuery: BuildContextQuery,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SemanticAvailable reports whether the semantic path can currently serve
// queries.
func (r *Retriever) SemanticAvailable() bool {
	return r.index != nil && r.index.Available()
}

// Retrieve returns the recentCount most recent records plus up to
// semanticTopK semantically relevant ones for the given context,
// deduplicated, recency entries first. It never fails: any problem on the
// semantic path degrades the result to the recency window alone.
func (r *Retriever) Retrieve(ctx context.Context, recentCount, semanticTopK int, qc QueryContext) []core.RetrievalResult {
	return r.RetrieveQuery(ctx, recentCount, semanticTopK, r.buildQuery(qc))
}

// RetrieveQuery is Retrieve with an explicit semantic query string.
func (r *Retriever) RetrieveQuery(ctx context.Context, recentCount, semanticTopK int, query string) []core.RetrievalResult {
	var results []core.RetrievalResult
	seen := make(map[int64]bool)

	// Step 1: the recency window is unconditionally included. This is the
	// continuity guarantee (comparing this morning to last night) and holds
	// regardless of semantic index health.
	for _, rec := range r.store.Recent(recentCount) {
		if seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		results = append(results, core.RetrievalResult{
			Record:     rec,
			RankSource: core.RankRecency,
		})
	}

	// Step 2: the semantic path is strictly best-effort.
	semantic := r.semanticResults(ctx, query, semanticTopK, seen)

	// Step 3: trim against the prompt budget, lowest score first. The
	// recency window is never trimmed.
	if r.maxResults > 0 && len(results)+len(semantic) > r.maxResults {
		room := r.maxResults - len(results)
		if room < 0 {
			room = 0
		}
		semantic = semantic[:room]
	}

	return append(results, semantic...)
}

// semanticResults queries the index and resolves hits against the store.
// Records already in the recency set are discarded; recency wins the tag.
// Any failure yields nil: the caller's fallback guarantee depends on this
// function never propagating an error.
func (r *Retriever) semanticResults(ctx context.Context, query string, topK int, seen map[int64]bool) []core.RetrievalResult {
	if topK <= 0 || query == "" || !r.SemanticAvailable() {
		return nil
	}

	hits, err := r.index.Query(ctx, query, topK)
	if err != nil {
		log.Printf("[RETRIEVER] Semantic search failed, serving recency only: %v", err)
		return nil
	}

	var out []core.RetrievalResult
	for _, hit := range hits {
		if seen[hit.RecordID] {
			continue
		}
		rec, ok := r.store.Get(hit.RecordID)
		if !ok {
			// The index lags the log; a pruned record can still have an
			// embedding until the next rebuild.
			continue
		}
		seen[hit.RecordID] = true
		out = append(out, core.RetrievalResult{
			Record:     rec,
			RankSource: core.RankSemantic,
			Score:      hit.Score,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	log.Printf("[RETRIEVER] Hybrid retrieval: %d semantic hits merged for query %q", len(out), truncateLog(query, 60))
	return out
}

// FormatResults renders retrieval results for prompt injection, one
// observation per block, in result order.
func FormatResults(results []core.RetrievalResult) string {
	if len(results) == 0 {
		return ""
	}

	parts := make([]string, 0, len(results))
	for _, res := range results {
		parts = append(parts, fmt.Sprintf("Observation #%d (%s): %s",
			res.Record.ID,
			res.Record.Timestamp.Format("January 2, 2006"),
			Truncate(res.Record.Text(), 300)))
	}
	return strings.Join(parts, "\n\n")
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

package core

import "time"

// ObservationRecord is one unit of generated narrative content tied to a
// point in time and an external source artifact. Records are created by the
// observation store, never mutated, and removed only by retention pruning.
type ObservationRecord struct {
	// ID is assigned by the store at append time. IDs are strictly
	// increasing for the lifetime of the store and are never reused,
	// even after pruning removes earlier records.
	ID int64 `json:"id"`

	// Timestamp is the UTC instant the observation was made.
	Timestamp time.Time `json:"timestamp"`

	// Content is the full narrative text for this observation.
	Content string `json:"content"`

	// Summary is a short synopsis of Content, produced by the summarizer.
	// It may be a truncated fallback of Content when summarization failed.
	Summary string `json:"summary"`

	// SourceRef is an opaque reference to the originating artifact
	// (e.g., an image identifier). Owned by an external collaborator.
	SourceRef string `json:"source_ref"`
}

// Text returns the best available text for prompting and embedding:
// the summary when present, otherwise the full content.
func (r ObservationRecord) Text() string {
	if r.Summary != "" {
		return r.Summary
	}
	return r.Content
}

// RankSource tags why a record was included in a retrieval result.
type RankSource string

const (
	// RankRecency marks records included from the guaranteed-recent window.
	RankRecency RankSource = "recency"

	// RankSemantic marks records included by vector similarity.
	RankSemantic RankSource = "semantic"
)

// RetrievalResult is one entry of a hybrid retrieval. A record appears at
// most once per result set; recency inclusion takes priority for tagging.
type RetrievalResult struct {
	Record     ObservationRecord `json:"record"`
	RankSource RankSource        `json:"rank_source"`

	// Score is the similarity score. Only set for semantic-source results.
	Score float32 `json:"score,omitempty"`
}

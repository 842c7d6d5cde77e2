// Package memory implements the hybrid memory engine: a durable observation
// log, a summarization pipeline, and recency+similarity retrieval.
//
// The observation log is the source of truth. It is a single JSON file of
// ObservationRecord objects, written with atomic replace semantics and
// bounded by a retention policy (age and count).
//
// The semantic index is an optional collaborator. It is a cache over the
// log, updated best-effort after each append, and can be rebuilt from the
// log at any time. When the index is unavailable the retriever degrades to
// the guaranteed-recent window; retrieval never fails because of it.
//
// Architecture:
//   - Store: append-only observation log (this package)
//   - Summarizer: LLM synopsis with deterministic truncation fallback
//   - Index: vector search backend (memory/index/chromem)
//   - Embedder: text-to-vector conversion (memory/embedder/...)
//   - Retriever: hybrid recency + semantic retrieval, deduplicated
package memory

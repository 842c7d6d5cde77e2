package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robotdiary/memory-go-sdk/core"
)

// ErrStoreIO marks a persistence failure on append. The previously
// persisted state is left intact and the caller may retry.
var ErrStoreIO = errors.New("observation store write failed")

// StoreConfig holds observation store settings.
type StoreConfig struct {
	// RetentionAge bounds how old a record may be before pruning removes
	// it. Zero disables age-based pruning.
	RetentionAge time.Duration

	// MaxEntries caps the number of stored records. Zero disables the cap.
	MaxEntries int

	// Summarizer produces record summaries at append time. When nil,
	// summaries fall back to truncated content.
	Summarizer Summarizer

	// SummaryMaxChars bounds the truncation fallback. Default 400.
	SummaryMaxChars int
}

// DefaultStoreConfig mirrors the historical service defaults:
// 30 days of retention, at most 50 entries.
var DefaultStoreConfig = StoreConfig{
	RetentionAge:    30 * 24 * time.Hour,
	MaxEntries:      50,
	SummaryMaxChars: 400,
}

// Store is the append-only, retention-bounded observation log. It persists
// to a single JSON file with atomic replace semantics; readers never
// observe a partially written file. Writes are serialized by a single
// mutex (single-writer assumption).
type Store struct {
	mu      sync.RWMutex
	path    string
	config  StoreConfig
	records []core.ObservationRecord
	lastID  int64

	// now is swappable for tests.
	now func() time.Time
}

// OpenStore opens (or creates) the observation log at path. The monotonic
// id counter is seeded from the highest id present in the file, so ids
// keep increasing across restarts.
func OpenStore(path string, config StoreConfig) (*Store, error) {
	if config.SummaryMaxChars <= 0 {
		config.SummaryMaxChars = DefaultStoreConfig.SummaryMaxChars
	}

	s := &Store{
		path:   path,
		config: config,
		now:    time.Now,
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	log.Printf("[STORE] Opened %s: %d records, last id %d", path, len(s.records), s.lastID)
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil // First run, file is created on first append.
	}
	if err != nil {
		return fmt.Errorf("read observation log: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var records []core.ObservationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse observation log %s: %w", s.path, err)
	}

	s.records = records
	for _, r := range records {
		if r.ID > s.lastID {
			s.lastID = r.ID
		}
	}
	return nil
}

// Append creates the next observation record: it assigns the next id, sets
// the timestamp to now (UTC), summarizes content synchronously, persists
// the full record set atomically, and applies the retention policy.
//
// On a persistence failure the in-memory and on-disk state are both left
// as they were; the returned error wraps ErrStoreIO and the caller may
// retry.
func (s *Store) Append(ctx context.Context, content, sourceRef string) (core.ObservationRecord, error) {
	summary := Truncate(content, s.config.SummaryMaxChars)
	if s.config.Summarizer != nil {
		summary = s.config.Summarizer.Summarize(ctx, content)
	}
	return s.AppendWithSummary(ctx, content, summary, sourceRef)
}

// AppendWithSummary is Append with a precomputed summary, bypassing the
// summarizer.
func (s *Store) AppendWithSummary(ctx context.Context, content, summary, sourceRef string) (core.ObservationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := core.ObservationRecord{
		ID:        s.lastID + 1,
		Timestamp: s.now().UTC(),
		Content:   content,
		Summary:   summary,
		SourceRef: sourceRef,
	}

	next := make([]core.ObservationRecord, 0, len(s.records)+1)
	next = append(next, s.records...)
	next = append(next, record)
	next = s.applyRetention(next)

	if err := s.persist(next); err != nil {
		return core.ObservationRecord{}, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}

	s.records = next
	s.lastID = record.ID
	log.Printf("[STORE] Appended observation id=%d (%d records retained)", record.ID, len(next))
	return record, nil
}

// Recent returns the n most recent records, most-recent-first. When the
// store holds fewer than n records it returns all of them; it never errors
// on under-supply.
func (s *Store) Recent(n int) []core.ObservationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || len(s.records) == 0 {
		return nil
	}
	if n > len(s.records) {
		n = len(s.records)
	}

	out := make([]core.ObservationRecord, n)
	for i := 0; i < n; i++ {
		out[i] = s.records[len(s.records)-1-i]
	}
	return out
}

// Get resolves a record by id.
func (s *Store) Get(id int64) (core.ObservationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].ID == id {
			return s.records[i], true
		}
	}
	return core.ObservationRecord{}, false
}

// All returns every stored record in append order. This is the input to an
// index rebuild.
func (s *Store) All() []core.ObservationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.ObservationRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Stats summarizes the store's current state.
type Stats struct {
	TotalEntries int
	LastID       int64
	Oldest       time.Time
	Newest       time.Time
}

// Summary returns statistics about the stored records.
func (s *Store) Summary() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{TotalEntries: len(s.records), LastID: s.lastID}
	if len(s.records) > 0 {
		stats.Oldest = s.records[0].Timestamp
		stats.Newest = s.records[len(s.records)-1].Timestamp
	}
	return stats
}

// Prune applies the retention policy and persists the result. Append
// already prunes on every write; Prune exists for explicit maintenance.
// Pruning never lowers the id counter.
func (s *Store) Prune() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := s.applyRetention(s.records)
	if len(pruned) == len(s.records) {
		return nil
	}

	if err := s.persist(pruned); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	s.records = pruned
	return nil
}

// applyRetention removes records older than RetentionAge and, after that,
// the oldest records beyond MaxEntries. The input slice is append-ordered.
func (s *Store) applyRetention(records []core.ObservationRecord) []core.ObservationRecord {
	out := records

	if s.config.RetentionAge > 0 {
		cutoff := s.now().UTC().Add(-s.config.RetentionAge)
		kept := out[:0:0]
		for _, r := range out {
			if !r.Timestamp.Before(cutoff) {
				kept = append(kept, r)
			}
		}
		if removed := len(out) - len(kept); removed > 0 {
			log.Printf("[STORE] Pruned %d records older than %s", removed, s.config.RetentionAge)
		}
		out = kept
	}

	if s.config.MaxEntries > 0 && len(out) > s.config.MaxEntries {
		removed := len(out) - s.config.MaxEntries
		out = out[removed:]
		log.Printf("[STORE] Pruned %d records beyond the %d-entry cap", removed, s.config.MaxEntries)
	}

	return out
}

// persist writes records to a temp file in the log's directory and renames
// it over the log, so concurrent readers only ever see a complete file.
func (s *Store) persist(records []core.ObservationRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal observation log: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".observations-*.json")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp log: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace log: %w", err)
	}
	return nil
}

package memory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

func newTestStore(t *testing.T, config StoreConfig) *Store {
	t.Helper()

	store, err := OpenStore(filepath.Join(t.TempDir(), "observations.json"), config)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return store
}

func TestStore_AppendAssignsIncreasingIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, StoreConfig{})

	for i := 1; i <= 5; i++ {
		rec, err := store.Append(ctx, "observation", "")
		if err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
		if rec.ID != int64(i) {
			t.Errorf("Expected id %d, got %d", i, rec.ID)
		}
	}
}

func TestStore_IDsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "observations.json")

	store, err := OpenStore(path, StoreConfig{})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.Append(ctx, "observation", ""); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}

	reopened, err := OpenStore(path, StoreConfig{})
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	if reopened.Count() != 3 {
		t.Fatalf("Expected 3 records after reopen, got %d", reopened.Count())
	}

	rec, err := reopened.Append(ctx, "after restart", "")
	if err != nil {
		t.Fatalf("Failed to append after reopen: %v", err)
	}
	if rec.ID != 4 {
		t.Errorf("Expected id 4 after reopen, got %d", rec.ID)
	}
}

func TestStore_EntryCapKeepsNewestAndNeverReusesIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, StoreConfig{MaxEntries: 5})

	for i := 0; i < 8; i++ {
		if _, err := store.Append(ctx, "observation", ""); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}

	if store.Count() != 5 {
		t.Fatalf("Expected 5 records under the cap, got %d", store.Count())
	}

	recent := store.Recent(5)
	if recent[0].ID != 8 {
		t.Errorf("Expected newest id 8, got %d", recent[0].ID)
	}
	if recent[len(recent)-1].ID != 4 {
		t.Errorf("Expected oldest retained id 4, got %d", recent[len(recent)-1].ID)
	}

	// Pruning never lowers the id counter.
	rec, err := store.Append(ctx, "observation", "")
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if rec.ID != 9 {
		t.Errorf("Expected id 9 after pruning, got %d", rec.ID)
	}
}

func TestStore_AgeRetentionPrunesOldRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, StoreConfig{RetentionAge: 30 * 24 * time.Hour})

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		if _, err := store.Append(ctx, "old observation", ""); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}

	// 40 days later the first five are past retention.
	store.now = func() time.Time { return base.Add(40 * 24 * time.Hour) }
	rec, err := store.Append(ctx, "new observation", "")
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	if store.Count() != 1 {
		t.Fatalf("Expected only the new record to survive, got %d", store.Count())
	}
	if rec.ID != 6 {
		t.Errorf("Expected id 6 after age pruning, got %d", rec.ID)
	}
}

func TestStore_PruneRemovesExpiredRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, StoreConfig{RetentionAge: 30 * 24 * time.Hour, MaxEntries: 50})

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	for i := 0; i < 5; i++ {
		if _, err := store.Append(ctx, "stale observation", ""); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}

	store.now = func() time.Time { return base.Add(20 * 24 * time.Hour) }
	for i := 0; i < 35; i++ {
		if _, err := store.Append(ctx, "fresh observation", ""); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}
	if store.Count() != 40 {
		t.Fatalf("Expected 40 records before pruning, got %d", store.Count())
	}

	// 31 days after the first batch, only those five are past retention.
	store.now = func() time.Time { return base.Add(31 * 24 * time.Hour) }
	if err := store.Prune(); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	if store.Count() != 35 {
		t.Errorf("Expected 35 records after pruning, got %d", store.Count())
	}
	cutoff := store.now().UTC().Add(-30 * 24 * time.Hour)
	for _, rec := range store.All() {
		if rec.Timestamp.Before(cutoff) {
			t.Errorf("Record %d is older than the retention age", rec.ID)
		}
	}
	if last := store.Summary().LastID; last != 40 {
		t.Errorf("Expected last id 40 after pruning, got %d", last)
	}
}

func TestStore_AppendPersistFailureLeavesStateIntact(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "missing-dir", "observations.json")

	// The log's directory does not exist, so the temp-file write fails.
	store, err := OpenStore(path, StoreConfig{})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	_, err = store.Append(ctx, "observation", "")
	if !errors.Is(err, ErrStoreIO) {
		t.Fatalf("Expected ErrStoreIO, got %v", err)
	}

	if store.Count() != 0 {
		t.Errorf("Expected no records after failed append, got %d", store.Count())
	}
	if last := store.Summary().LastID; last != 0 {
		t.Errorf("Expected id counter unchanged after failed append, got %d", last)
	}
}

func TestStore_RecentUnderSupply(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, StoreConfig{})

	for i := 0; i < 3; i++ {
		if _, err := store.Append(ctx, "observation", ""); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}

	recent := store.Recent(5)
	if len(recent) != 3 {
		t.Fatalf("Expected all 3 records, got %d", len(recent))
	}
	for i, rec := range recent {
		if want := int64(3 - i); rec.ID != want {
			t.Errorf("Expected id %d at position %d, got %d", want, i, rec.ID)
		}
	}

	if got := store.Recent(0); got != nil {
		t.Errorf("Expected nil for zero count, got %d records", len(got))
	}
}

type staticSummarizer struct {
	summary string
}

func (s staticSummarizer) Summarize(ctx context.Context, content string) string {
	return s.summary
}

func TestStore_AppendUsesSummarizer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, StoreConfig{Summarizer: staticSummarizer{summary: "a short synopsis"}})

	rec, err := store.Append(ctx, "a very long observation about the plaza", "frame-17")
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	if rec.Summary != "a short synopsis" {
		t.Errorf("Expected summarizer output, got %q", rec.Summary)
	}
	if rec.Content != "a very long observation about the plaza" {
		t.Errorf("Content should be stored verbatim, got %q", rec.Content)
	}
	if rec.SourceRef != "frame-17" {
		t.Errorf("Expected source ref to round-trip, got %q", rec.SourceRef)
	}
	if rec.Text() != "a short synopsis" {
		t.Errorf("Text() should prefer the summary, got %q", rec.Text())
	}
}

// erroringClient fails every model call.
type erroringClient struct{}

func (erroringClient) NewMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return nil, errors.New("model unreachable")
}

func TestStore_AppendSummarizerFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	summarizer := NewModelSummarizer(erroringClient{}, "", 20)
	store := newTestStore(t, StoreConfig{Summarizer: summarizer})

	content := "a long observation about two delivery vans by the fountain"
	rec, err := store.Append(ctx, content, "")
	if err != nil {
		t.Fatalf("A failing summarizer must not fail the append: %v", err)
	}

	if rec.Summary != Truncate(content, 20) {
		t.Errorf("Expected the truncation fallback, got %q", rec.Summary)
	}
	if !strings.HasSuffix(rec.Summary, "...") {
		t.Errorf("Expected the truncation marker, got %q", rec.Summary)
	}
	if rec.Content != content {
		t.Errorf("Content must be stored untouched, got %q", rec.Content)
	}
}

func TestStore_ReloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "observations.json")

	store, err := OpenStore(path, StoreConfig{})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	want, err := store.Append(ctx, "the plaza was crowded at noon", "frame-3")
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	reopened, err := OpenStore(path, StoreConfig{})
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}

	got, ok := reopened.Get(want.ID)
	if !ok {
		t.Fatalf("Record %d missing after reload", want.ID)
	}
	if got.Content != want.Content || got.SourceRef != want.SourceRef {
		t.Errorf("Record changed across reload: got %+v, want %+v", got, want)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("Timestamp changed across reload: got %v, want %v", got.Timestamp, want.Timestamp)
	}
}

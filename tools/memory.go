// Package tools exposes memory query operations as callable,
// schema-described tools for the generation loop.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/robotdiary/memory-go-sdk/core"
	"github.com/robotdiary/memory-go-sdk/memory"
)

const (
	defaultTopK = 5
	maxTopK     = 10

	// keywordScanWindow is how many recent records the keyword fallback
	// scans when the semantic index is down.
	keywordScanWindow = 50

	snippetChars = 300
)

// Memory exposes on-demand memory queries to the generation step. All
// three operations are pure reads and never return an error to the model:
// failures become best-effort answers, possibly empty.
type Memory struct {
	store     *memory.Store
	retriever *memory.Retriever
}

// NewMemory creates the memory query surface over a store and retriever.
func NewMemory(store *memory.Store, retriever *memory.Retriever) *Memory {
	return &Memory{store: store, retriever: retriever}
}

// QueryMemories finds past observations matching a natural language query.
// With the semantic index available it is a similarity search; otherwise a
// keyword match over recent records serves as the fallback.
func (m *Memory) QueryMemories(ctx context.Context, query string, topK int) string {
	topK = clampTopK(topK)

	var results []core.RetrievalResult
	if m.retriever.SemanticAvailable() {
		// Semantic-only: the recency window is not wanted here.
		results = m.retriever.RetrieveQuery(ctx, 0, topK, query)
	} else {
		log.Printf("[TOOLS] Semantic index unavailable, keyword search for %q", query)
		results = m.keywordSearch(query, topK)
	}

	if len(results) == 0 {
		return fmt.Sprintf("No memories found matching query: '%s'", query)
	}
	return memory.FormatResults(results)
}

// RecentMemories returns the most recent observations, most-recent-first.
func (m *Memory) RecentMemories(ctx context.Context, count int) string {
	count = clampTopK(count)

	recent := m.store.Recent(count)
	if len(recent) == 0 {
		return "No recent observations found."
	}

	results := make([]core.RetrievalResult, 0, len(recent))
	for _, rec := range recent {
		results = append(results, core.RetrievalResult{Record: rec, RankSource: core.RankRecency})
	}
	return memory.FormatResults(results)
}

// CheckMemoryExists answers whether any memory matches topic, with a brief
// example when one does.
func (m *Memory) CheckMemoryExists(ctx context.Context, topic string) string {
	var results []core.RetrievalResult
	if m.retriever.SemanticAvailable() {
		results = m.retriever.RetrieveQuery(ctx, 0, 1, topic)
	} else {
		results = m.keywordSearch(topic, 1)
	}

	if len(results) == 0 {
		return fmt.Sprintf("No, I don't have any memories about '%s'.", topic)
	}

	rec := results[0].Record
	return fmt.Sprintf("Yes, I have memories about '%s'. Example: Observation #%d: %s",
		topic, rec.ID, memory.Truncate(rec.Text(), 150))
}

// keywordSearch scans the recent window for a substring or word match.
// It is the degraded path; relevance is approximate by design.
func (m *Memory) keywordSearch(query string, limit int) []core.RetrievalResult {
	queryLower := strings.ToLower(query)
	words := significantWords(queryLower)

	var results []core.RetrievalResult
	for _, rec := range m.store.Recent(keywordScanWindow) {
		text := strings.ToLower(rec.Text())

		matched := strings.Contains(text, queryLower)
		if !matched {
			for _, w := range words {
				if strings.Contains(text, w) {
					matched = true
					break
				}
			}
		}
		if !matched {
			continue
		}

		results = append(results, core.RetrievalResult{Record: rec, RankSource: core.RankRecency})
		if len(results) >= limit {
			break
		}
	}
	return results
}

// significantWords keeps query words long enough to be meaningful matches.
func significantWords(query string) []string {
	var out []string
	for _, w := range strings.Fields(query) {
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

func clampTopK(n int) int {
	if n <= 0 {
		return defaultTopK
	}
	if n > maxTopK {
		return maxTopK
	}
	return n
}

// Tools returns the three memory operations as schema-described tools,
// ready to register with the generation loop.
func (m *Memory) Tools() []core.Tool {
	return []core.Tool{
		core.FuncTool{
			Def: core.ToolDefinition{
				Name: "query_memories",
				Description: "Query your memory for similar past observations by searching for specific, " +
					"concrete details you see: objects, vehicles, clothing, group sizes, time patterns, " +
					"or notable details. Vary what you search for across observations.",
				InputSchema: ObjectSchema(map[string]interface{}{
					"query": StringProperty("Specific, concrete detail to search for in past observations " +
						"(e.g., 'men in red shirts', '10 people', 'tuesday night')."),
					"top_k": BoundedIntegerProperty("Number of most relevant memories to return.", defaultTopK, 1, maxTopK),
				}, "query"),
			},
			Fn: func(ctx context.Context, input json.RawMessage) (string, error) {
				var args struct {
					Query string `json:"query"`
					TopK  int    `json:"top_k"`
				}
				if err := json.Unmarshal(input, &args); err != nil {
					return "", fmt.Errorf("invalid query_memories arguments: %w", err)
				}
				if strings.TrimSpace(args.Query) == "" {
					return "", fmt.Errorf("query_memories requires a non-empty query")
				}
				return m.QueryMemories(ctx, args.Query, args.TopK), nil
			},
		},
		core.FuncTool{
			Def: core.ToolDefinition{
				Name: "get_recent_memories",
				Description: "Get your most recent observations for temporal continuity. Use this to compare " +
					"the current observation with recent ones, especially morning vs evening or day-to-day changes.",
				InputSchema: ObjectSchema(map[string]interface{}{
					"count": BoundedIntegerProperty("Number of recent memories to retrieve.", defaultTopK, 1, maxTopK),
				}),
			},
			Fn: func(ctx context.Context, input json.RawMessage) (string, error) {
				var args struct {
					Count int `json:"count"`
				}
				if err := json.Unmarshal(input, &args); err != nil {
					return "", fmt.Errorf("invalid get_recent_memories arguments: %w", err)
				}
				return m.RecentMemories(ctx, args.Count), nil
			},
		},
		core.FuncTool{
			Def: core.ToolDefinition{
				Name: "check_memory_exists",
				Description: "Quickly check if you have any memories about a specific topic. Returns yes/no " +
					"with a brief example if found. Use this before doing a full query.",
				InputSchema: ObjectSchema(map[string]interface{}{
					"topic": StringProperty("Topic to check (e.g., 'rain', 'crowds', 'morning observations')."),
				}, "topic"),
			},
			Fn: func(ctx context.Context, input json.RawMessage) (string, error) {
				var args struct {
					Topic string `json:"topic"`
				}
				if err := json.Unmarshal(input, &args); err != nil {
					return "", fmt.Errorf("invalid check_memory_exists arguments: %w", err)
				}
				if strings.TrimSpace(args.Topic) == "" {
					return "", fmt.Errorf("check_memory_exists requires a non-empty topic")
				}
				return m.CheckMemoryExists(ctx, args.Topic), nil
			},
		},
	}
}

// Command robotmem manages the observation memory from the command line:
// appending observations, querying them, and rebuilding the semantic index
// from the log.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/robotdiary/memory-go-sdk/config"
	"github.com/robotdiary/memory-go-sdk/core"
	"github.com/robotdiary/memory-go-sdk/memory"
	"github.com/robotdiary/memory-go-sdk/memory/embedder/cached"
	indexchromem "github.com/robotdiary/memory-go-sdk/memory/index/chromem"
	"github.com/robotdiary/memory-go-sdk/tools"
)

// CLI defines the command-line interface.
type CLI struct {
	Observe ObserveCmd `cmd:"" help:"Append an observation to the memory log"`
	Recent  RecentCmd  `cmd:"" help:"Show the most recent observations"`
	Query   QueryCmd   `cmd:"" help:"Search memories for a query"`
	Exists  ExistsCmd  `cmd:"" help:"Check whether any memory matches a topic"`
	Rebuild RebuildCmd `cmd:"" help:"Rebuild the semantic index from the log"`
	Stats   StatsCmd   `cmd:"" help:"Show memory statistics"`
}

// App is the wired-up memory engine shared by all commands.
type App struct {
	cfg       *config.Config
	store     *memory.Store
	index     *indexchromem.Index // nil when the index could not be opened
	retriever *memory.Retriever
	memTools  *tools.Memory
}

// ObserveCmd appends an observation to the log and, best-effort, the index.
type ObserveCmd struct {
	File      string `short:"f" help:"Read content from file instead of stdin"`
	SourceRef string `short:"s" help:"Opaque reference to the source artifact (e.g. frame id)"`
	NoSummary bool   `help:"Skip the model summarizer; use truncated content"`
}

func (c *ObserveCmd) Run(app *App) error {
	ctx := context.Background()

	content, err := c.readContent()
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("observation content is empty")
	}

	var rec core.ObservationRecord
	if c.NoSummary {
		rec, err = app.store.AppendWithSummary(ctx, content, memory.Truncate(content, app.cfg.SummaryMaxChars), c.SourceRef)
	} else {
		rec, err = app.store.Append(ctx, content, c.SourceRef)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Appended observation #%d\n", rec.ID)
	c.indexAdd(ctx, app, rec.ID, rec.Text())
	return nil
}

// indexAdd updates the semantic index best-effort. A failure never fails
// the observe command; the log already holds the record.
func (c *ObserveCmd) indexAdd(ctx context.Context, app *App, id int64, text string) {
	if app.index == nil {
		return
	}
	if err := app.index.Add(ctx, id, text); err != nil {
		log.Printf("[CLI] Index update skipped: %v", err)
	}
}

func (c *ObserveCmd) readContent() (string, error) {
	if c.File != "" {
		data, err := os.ReadFile(c.File)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", c.File, err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

// RecentCmd shows the most recent observations.
type RecentCmd struct {
	Count int `short:"n" default:"5" help:"Number of observations to show"`
}

func (c *RecentCmd) Run(app *App) error {
	fmt.Println(app.memTools.RecentMemories(context.Background(), c.Count))
	return nil
}

// QueryCmd searches memories for a query.
type QueryCmd struct {
	Query string `arg:"" help:"Natural language query"`
	TopK  int    `short:"k" default:"5" help:"Number of results"`
}

func (c *QueryCmd) Run(app *App) error {
	fmt.Println(app.memTools.QueryMemories(context.Background(), c.Query, c.TopK))
	return nil
}

// ExistsCmd checks whether any memory matches a topic.
type ExistsCmd struct {
	Topic string `arg:"" help:"Topic to check"`
}

func (c *ExistsCmd) Run(app *App) error {
	fmt.Println(app.memTools.CheckMemoryExists(context.Background(), c.Topic))
	return nil
}

// RebuildCmd re-indexes every log record into the semantic index.
type RebuildCmd struct{}

func (c *RebuildCmd) Run(app *App) error {
	if app.index == nil {
		return fmt.Errorf("semantic index is not available")
	}
	indexed, err := app.index.Rebuild(context.Background(), app.store.All())
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	fmt.Printf("Rebuilt index: %d records\n", indexed)
	return nil
}

// StatsCmd shows memory statistics.
type StatsCmd struct{}

func (c *StatsCmd) Run(app *App) error {
	stats := app.store.Summary()
	fmt.Printf("Observations: %d (last id %d)\n", stats.TotalEntries, stats.LastID)
	if stats.TotalEntries > 0 {
		fmt.Printf("Oldest: %s\n", stats.Oldest.Format("January 2, 2006 15:04 MST"))
		fmt.Printf("Newest: %s\n", stats.Newest.Format("January 2, 2006 15:04 MST"))
	}
	if app.retriever.SemanticAvailable() {
		fmt.Printf("Index entries: %d\n", app.index.Count())
	} else {
		fmt.Println("Index: unavailable")
	}
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("robotmem"),
		kong.Description("Observation memory for the diary robot."),
		kong.UsageOnError(),
	)

	app, err := buildApp()
	if err != nil {
		log.Fatalf("[CLI] %v", err)
	}

	kctx.FatalIfErrorf(kctx.Run(app))
}

// buildApp wires config, store, summarizer, embedder, index, and retriever.
// A failed index open degrades to recency-only operation, matching the
// engine's availability model.
func buildApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.MemoryDir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}

	var summarizer memory.Summarizer
	if cfg.AnthropicAPIKey != "" {
		client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
		summarizer = memory.NewModelSummarizer(
			memory.AnthropicMessages{Client: &client},
			cfg.SummaryModel,
			cfg.SummaryMaxChars,
		)
	}

	store, err := memory.OpenStore(cfg.ObservationLogPath(), memory.StoreConfig{
		RetentionAge:    cfg.RetentionAge,
		MaxEntries:      cfg.MaxEntries,
		Summarizer:      summarizer,
		SummaryMaxChars: cfg.SummaryMaxChars,
	})
	if err != nil {
		return nil, err
	}

	var index *indexchromem.Index
	embedder, err := newEmbedder(cfg)
	if err != nil {
		log.Printf("[CLI] Embedder unavailable, semantic search disabled: %v", err)
	} else {
		cachedEmbedder, err := cached.New(embedder)
		if err != nil {
			return nil, err
		}
		index, err = indexchromem.New(cfg.IndexDir(), cachedEmbedder)
		if err != nil {
			log.Printf("[CLI] Index unavailable, semantic search disabled: %v", err)
			index = nil
		}
	}

	var retrieverIndex memory.Index
	if index != nil {
		retrieverIndex = index
	}
	retriever := memory.NewRetriever(store, retrieverIndex,
		memory.WithMaxResults(cfg.MaxPromptMemories))

	return &App{
		cfg:       cfg,
		store:     store,
		index:     index,
		retriever: retriever,
		memTools:  tools.NewMemory(store, retriever),
	}, nil
}

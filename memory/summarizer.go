package memory

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// MessageClient is the slice of the Anthropic API the summarizer needs.
// Tests substitute a scripted fake.
type MessageClient interface {
	NewMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// AnthropicMessages adapts an anthropic.Client to MessageClient.
type AnthropicMessages struct {
	Client *anthropic.Client
}

func (a AnthropicMessages) NewMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return a.Client.Messages.New(ctx, params)
}

const defaultSummaryModel = "claude-3-5-haiku-latest"

// ModelSummarizer produces synopses with a language model call. Every
// failure mode (transport error, empty reply, over-long reply) is absorbed
// into a deterministic truncation fallback: summarization is an
// optimization, never a correctness requirement, so it must not block the
// observation pipeline.
type ModelSummarizer struct {
	client   MessageClient
	model    string
	maxChars int
}

// NewModelSummarizer creates a summarizer bounded to maxChars characters.
// An empty model selects the default summary model.
func NewModelSummarizer(client MessageClient, model string, maxChars int) *ModelSummarizer {
	if model == "" {
		model = defaultSummaryModel
	}
	if maxChars <= 0 {
		maxChars = DefaultStoreConfig.SummaryMaxChars
	}
	return &ModelSummarizer{client: client, model: model, maxChars: maxChars}
}

// Summarize returns a dense synopsis of content, or the truncation fallback
// when the model call fails in any way. It never returns an empty string.
func (m *ModelSummarizer) Summarize(ctx context.Context, content string) string {
	if strings.TrimSpace(content) == "" {
		return "(empty observation)"
	}

	if m.client == nil {
		return Truncate(content, m.maxChars)
	}

	instruction := fmt.Sprintf(
		"Produce a dense synopsis of the observation below in at most %d characters. "+
			"Preserve notable details, tone, and references to earlier observations. "+
			"Reply with the synopsis only.\n\n%s",
		m.maxChars, content)

	resp, err := m.client.NewMessage(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(instruction)),
		},
	})
	if err != nil {
		log.Printf("[SUMMARY] Model call failed, using truncation fallback: %v", err)
		return Truncate(content, m.maxChars)
	}

	var summary string
	for _, block := range resp.Content {
		if block.Type == "text" {
			summary += block.Text
		}
	}
	summary = strings.TrimSpace(summary)

	if summary == "" {
		log.Printf("[SUMMARY] Empty model reply, using truncation fallback")
		return Truncate(content, m.maxChars)
	}
	if len(summary) > m.maxChars {
		summary = Truncate(summary, m.maxChars)
	}
	return summary
}

// Truncate bounds s to maxChars runes, appending "..." when cut. It is the
// deterministic fallback used whenever summarization is skipped or fails.
func Truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return "..."
	}
	return string(runes[:maxChars-3]) + "..."
}

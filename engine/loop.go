// Package engine drives the bounded tool-call conversation between a
// generation request and the memory query tools.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
)

// State is the conversation's position in the tool-call state machine.
type State int

const (
	// StateGenerating: waiting on the model's next response.
	StateGenerating State = iota

	// StateToolRequested: the response carried one or more tool calls.
	StateToolRequested

	// StateToolExecuted: tool results have been appended to the history.
	StateToolExecuted

	// StateFinalized: final text produced or the iteration budget reached.
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateGenerating:
		return "generating"
	case StateToolRequested:
		return "tool_requested"
	case StateToolExecuted:
		return "tool_executed"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// DefaultMaxIterations bounds tool rounds per run. This caps both latency
// and cost against a model that keeps requesting tools.
const DefaultMaxIterations = 10

// budgetExhaustedNote is appended to the output when finalization is
// forced by the iteration budget.
const budgetExhaustedNote = "\n\n(Note: memory tool budget exhausted; entry finalized with the context gathered so far.)"

// ModelClient is the slice of the Anthropic API the loop needs. Tests
// substitute a scripted fake; the FSM is fully exercisable without a real
// model.
type ModelClient interface {
	NewMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// AnthropicClient adapts an anthropic.Client to ModelClient.
type AnthropicClient struct {
	Client *anthropic.Client
}

func (a AnthropicClient) NewMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return a.Client.Messages.New(ctx, params)
}

// Conversation is the loop's explicit state: the exchanged turns, the tool
// round counter, and the terminal flag. Iterations never exceeds the
// loop's MaxIterations.
type Conversation struct {
	ID         string
	State      State
	Iterations int
	Messages   []anthropic.MessageParam
}

// Terminal reports whether the conversation has produced a final answer.
func (c *Conversation) Terminal() bool {
	return c.State == StateFinalized
}

// TokenUsage tracks model token consumption across a run.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// ToolCall records one tool invocation made during a run.
type ToolCall struct {
	Name    string
	Input   json.RawMessage
	Result  string
	IsError bool
}

// Result is the outcome of a loop run.
type Result struct {
	// Text is the model's final text, accumulated across rounds.
	Text string

	// Iterations is the number of tool rounds that were run.
	Iterations int

	// BudgetExhausted is set when finalization was forced by the
	// iteration bound. It is a designed terminal condition, not an error.
	BudgetExhausted bool

	ToolCalls  []ToolCall
	TokensUsed TokenUsage
}

// Loop is the bounded conversation driver. One Loop is reusable across
// runs; each Run gets a fresh Conversation.
type Loop struct {
	client        ModelClient
	registry      *Registry
	model         string
	maxTokens     int64
	maxIterations int
}

// Option configures the loop.
type Option func(*Loop)

// WithModel sets the generation model.
func WithModel(model string) Option {
	return func(l *Loop) { l.model = model }
}

// WithMaxTokens sets the per-response token limit.
func WithMaxTokens(n int64) Option {
	return func(l *Loop) { l.maxTokens = n }
}

// WithMaxIterations overrides the tool round budget.
func WithMaxIterations(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// NewLoop creates a loop over the given model client and tool registry.
func NewLoop(client ModelClient, registry *Registry, opts ...Option) *Loop {
	l := &Loop{
		client:        client,
		registry:      registry,
		model:         "claude-sonnet-4-20250514",
		maxTokens:     4096,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run drives the conversation to a final answer. The model may request
// memory tools any number of times up to the iteration budget; tool
// failures are converted to error results and fed back rather than
// aborting. The returned Conversation exposes the terminal state and the
// exact iteration count.
func (l *Loop) Run(ctx context.Context, systemPrompt, userMessage string) (*Result, *Conversation, error) {
	conv := &Conversation{
		ID:    uuid.New().String(),
		State: StateGenerating,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
		},
	}

	result := &Result{}
	apiTools := l.registry.ToAPITools()

	for {
		if err := ctx.Err(); err != nil {
			return nil, conv, fmt.Errorf("generation cancelled: %w", err)
		}

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(l.model),
			MaxTokens: l.maxTokens,
			Messages:  conv.Messages,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
		}
		if len(apiTools) > 0 {
			params.Tools = apiTools
		}

		resp, err := l.client.NewMessage(ctx, params)
		if err != nil {
			return nil, conv, fmt.Errorf("model call failed: %w", err)
		}

		result.TokensUsed.InputTokens += resp.Usage.InputTokens
		result.TokensUsed.OutputTokens += resp.Usage.OutputTokens

		text, toolUses := splitResponse(resp)
		if text != "" {
			if result.Text != "" {
				result.Text += "\n"
			}
			result.Text += text
		}

		if len(toolUses) == 0 {
			conv.State = StateFinalized
			result.Iterations = conv.Iterations
			log.Printf("[LOOP] Finalized after %d tool rounds", conv.Iterations)
			return result, conv, nil
		}

		conv.State = StateToolRequested
		conv.Iterations++

		if conv.Iterations >= l.maxIterations {
			// Forced finalization: the budget is spent, so the requested
			// tools are not executed and whatever text exists is the answer.
			conv.State = StateFinalized
			result.Iterations = conv.Iterations
			result.BudgetExhausted = true
			result.Text += budgetExhaustedNote
			log.Printf("[LOOP] Iteration budget (%d) exhausted, forcing finalization", l.maxIterations)
			return result, conv, nil
		}

		var assistantBlocks []anthropic.ContentBlockParamUnion
		if text != "" {
			assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(text))
		}
		echoBlocks, toolResults := l.executeTools(ctx, toolUses, result)
		assistantBlocks = append(assistantBlocks, echoBlocks...)
		conv.State = StateToolExecuted

		conv.Messages = append(conv.Messages,
			anthropic.NewAssistantMessage(assistantBlocks...),
			anthropic.NewUserMessage(toolResults...),
		)
		conv.State = StateGenerating
	}
}

// toolUse is one tool-call request parsed out of a model response.
type toolUse struct {
	id    string
	name  string
	input json.RawMessage
}

// splitResponse separates a response into its text and tool-call parts.
func splitResponse(resp *anthropic.Message) (string, []toolUse) {
	var text string
	var uses []toolUse

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			uses = append(uses, toolUse{id: block.ID, name: block.Name, input: block.Input})
		}
	}
	return text, uses
}

// executeTools invokes each requested tool and builds the assistant echo
// and tool-result blocks for the next round. A failing tool becomes an
// error result for the model; it never aborts the loop.
func (l *Loop) executeTools(ctx context.Context, uses []toolUse, result *Result) ([]anthropic.ContentBlockParamUnion, []anthropic.ContentBlockParamUnion) {
	assistantBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(uses))
	toolResults := make([]anthropic.ContentBlockParamUnion, 0, len(uses))

	for _, use := range uses {
		assistantBlocks = append(assistantBlocks, anthropic.NewToolUseBlock(use.id, use.input, use.name))

		call := ToolCall{Name: use.name, Input: use.input}

		tool, ok := l.registry.Get(use.name)
		if !ok {
			call.Result = fmt.Sprintf("unknown tool: %s", use.name)
			call.IsError = true
		} else {
			output, err := tool.Execute(ctx, use.input)
			if err != nil {
				log.Printf("[LOOP] Tool %s failed: %v", use.name, err)
				call.Result = err.Error()
				call.IsError = true
			} else {
				call.Result = output
			}
		}

		toolResults = append(toolResults, anthropic.NewToolResultBlock(use.id, call.Result, call.IsError))
		result.ToolCalls = append(result.ToolCalls, call)
	}

	return assistantBlocks, toolResults
}

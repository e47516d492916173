// Package engine produces assistant responses for a conversation.
//
// An Engine turns an ordered conversation into a stream of labeled chunks:
// model text and tool invocations under StageAgent, tool outputs under
// StageTools. The relay consumes that stream without knowing which provider
// generated it.
//
//	eng, sum, err := engine.New(ctx, cfg.Engine)
//	for chunk, err := range eng.Stream(ctx, msgs, "42") { ... }
package engine

import (
	"context"
	"fmt"
	"iter"

	"github.com/iksnae/chatrelay/internal"
)

// Role is the speaker of a context message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the context handed to an engine.
type Message struct {
	Role    Role
	Content string
}

// Stage labels where a chunk was produced.
type Stage string

const (
	StageAgent Stage = "agent"
	StageTools Stage = "tools"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResult is the output of one executed tool call.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// Chunk is one element of an engine stream. Agent chunks carry Text and/or
// ToolCalls; tools chunks carry ToolResult.
type Chunk struct {
	Stage      Stage
	Text       string
	ToolCalls  []ToolCall
	ToolResult *ToolResult
}

// Engine streams a response for msgs. continuationKey identifies the
// conversation thread; streams sharing a key do not run concurrently.
// A non-nil error ends the stream.
type Engine interface {
	Stream(ctx context.Context, msgs []Message, continuationKey string) iter.Seq2[Chunk, error]
}

// Summarizer derives a short title from a user's first message.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// New builds the engine and summarizer selected by cfg.Provider.
func New(ctx context.Context, cfg internal.EngineConfig, opts ...Option) (Engine, Summarizer, error) {
	switch cfg.Provider {
	case "genai", "gemini", "":
		eng, sum, err := NewGenAI(ctx, cfg, opts...)
		if err != nil {
			return nil, nil, err
		}
		return eng, sum, nil
	case "echo":
		o := applyOptions(opts)
		return NewEcho(o.echoDelay), NoSummarizer{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported engine provider: %s (supported: genai, echo)", cfg.Provider)
	}
}

// Option configures engine construction.
type Option func(*options)

type options struct {
	registry  *Registry
	generator generator
	echoDelay int
}

// WithRegistry overrides the default tool registry.
func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithEchoDelay sets the pause between echoed words, in milliseconds.
func WithEchoDelay(ms int) Option {
	return func(o *options) { o.echoDelay = ms }
}

// withGenerator swaps the model client; used by tests.
func withGenerator(g generator) Option {
	return func(o *options) { o.generator = g }
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

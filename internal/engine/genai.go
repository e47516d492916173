package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/iksnae/chatrelay/internal"
)

// generator is the subset of *genai.Models the engine calls.
type generator interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIEngine runs a tool-calling agent loop against the Gemini API.
type GenAIEngine struct {
	models        generator
	model         string
	tools         *Registry
	maxIterations int
	threads       *internal.KeyedMutex[string]
}

// NewGenAI creates the Gemini-backed engine and its title summarizer from cfg.
func NewGenAI(ctx context.Context, cfg internal.EngineConfig, opts ...Option) (*GenAIEngine, *GenAISummarizer, error) {
	o := applyOptions(opts)

	models := o.generator
	if models == nil {
		if cfg.APIKey == "" {
			return nil, nil, fmt.Errorf("GenAI API key is required (set %s)", cfg.APIKeyEnv)
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create GenAI client: %w", err)
		}
		models = client.Models
	}

	registry := o.registry
	if registry == nil {
		registry = DefaultRegistry()
	}

	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 6
	}

	titleModel := cfg.TitleModel
	if titleModel == "" {
		titleModel = cfg.Model
	}

	eng := &GenAIEngine{
		models:        models,
		model:         cfg.Model,
		tools:         registry,
		maxIterations: maxIter,
		threads:       internal.NewKeyedMutex[string](),
	}
	return eng, &GenAISummarizer{models: models, model: titleModel}, nil
}

// Stream runs model turns until the model answers without calling tools.
// Tool calls in one turn execute concurrently; their results feed the next turn.
func (e *GenAIEngine) Stream(ctx context.Context, msgs []Message, continuationKey string) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		release := e.threads.Lock(continuationKey)
		defer release()

		log := internal.Logger().With(zap.String("thread", continuationKey), zap.String("model", e.model))

		system, contents := toContents(msgs)
		cfg := &genai.GenerateContentConfig{Tools: e.tools.declarations()}
		if system != "" {
			cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
		}

		for iteration := 0; iteration < e.maxIterations; iteration++ {
			if err := ctx.Err(); err != nil {
				yield(Chunk{}, err)
				return
			}

			var (
				calls      []*genai.FunctionCall
				modelParts []*genai.Part
			)
			for resp, err := range e.models.GenerateContentStream(ctx, e.model, contents, cfg) {
				if err != nil {
					yield(Chunk{}, &internal.UpstreamEngineError{Err: err})
					return
				}
				if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
					continue
				}
				for _, part := range resp.Candidates[0].Content.Parts {
					switch {
					case part.FunctionCall != nil:
						calls = append(calls, part.FunctionCall)
						modelParts = append(modelParts, part)
					case part.Text != "" && !part.Thought:
						modelParts = append(modelParts, part)
						if !yield(Chunk{Stage: StageAgent, Text: part.Text}, nil) {
							return
						}
					}
				}
			}

			if len(calls) == 0 {
				log.Debug("agent loop finished", zap.Int("iterations", iteration+1))
				return
			}

			toolCalls := make([]ToolCall, len(calls))
			for i, c := range calls {
				args, _ := json.Marshal(c.Args)
				toolCalls[i] = ToolCall{ID: c.ID, Name: c.Name, Arguments: string(args)}
			}
			if !yield(Chunk{Stage: StageAgent, ToolCalls: toolCalls}, nil) {
				return
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: modelParts})

			results := e.executeTools(ctx, toolCalls)
			responseParts := make([]*genai.Part, len(results))
			for i, res := range results {
				if !yield(Chunk{Stage: StageTools, ToolResult: &res}, nil) {
					return
				}
				part := genai.NewPartFromFunctionResponse(res.Name, map[string]any{
					"output":   res.Content,
					"is_error": res.IsError,
				})
				part.FunctionResponse.ID = res.CallID
				responseParts[i] = part
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: responseParts})
		}

		yield(Chunk{}, &internal.UpstreamEngineError{Err: ErrMaxIterations})
	}
}

// executeTools runs calls concurrently and returns results in call order.
// Tool failures become error results for the model rather than stream errors.
func (e *GenAIEngine) executeTools(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			res, err := e.tools.Execute(gctx, call.Name, json.RawMessage(call.Arguments))
			if err != nil {
				internal.LogWarn("Tool %s failed: %v", call.Name, err)
				res = Result{Content: err.Error(), IsError: true}
			}
			results[i] = ToolResult{CallID: call.ID, Name: call.Name, Content: res.Content, IsError: res.IsError}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// toContents splits off system messages and maps the rest onto model roles.
func toContents(msgs []Message) (string, []*genai.Content) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/iksnae/chatrelay/internal"
)

// fakeGenerator replays one scripted model turn per GenerateContentStream call.
type fakeGenerator struct {
	mu        sync.Mutex
	turns     [][]*genai.Part
	streamErr error
	calls     int
	contents  [][]*genai.Content
	configs   []*genai.GenerateContentConfig

	summary    string
	summaryErr error
}

func (f *fakeGenerator) GenerateContentStream(_ context.Context, _ string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	f.mu.Lock()
	turn := f.calls
	f.calls++
	f.contents = append(f.contents, append([]*genai.Content(nil), contents...))
	f.configs = append(f.configs, config)
	f.mu.Unlock()

	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		if f.streamErr != nil {
			yield(nil, f.streamErr)
			return
		}
		if turn >= len(f.turns) {
			return
		}
		for _, p := range f.turns[turn] {
			resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{p}},
			}}}
			if !yield(resp, nil) {
				return
			}
		}
	}
}

func (f *fakeGenerator) GenerateContent(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: f.summary}}},
	}}}, nil
}

func newTestEngine(t *testing.T, gen *fakeGenerator, maxIter int) (*GenAIEngine, *GenAISummarizer) {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(Tool{Name: "lookup"}, func(_ context.Context, args json.RawMessage) (Result, error) {
		var in map[string]any
		_ = json.Unmarshal(args, &in)
		return Result{Content: "found " + in["q"].(string)}, nil
	}))
	require.NoError(t, reg.Register(Tool{Name: "broken"}, func(context.Context, json.RawMessage) (Result, error) {
		return Result{}, errors.New("backend down")
	}))

	eng, sum, err := NewGenAI(context.Background(), internal.EngineConfig{Model: "test-model", MaxIterations: maxIter},
		withGenerator(gen), WithRegistry(reg))
	require.NoError(t, err)
	return eng, sum
}

func collect(t *testing.T, seq iter.Seq2[Chunk, error]) ([]Chunk, error) {
	t.Helper()
	var chunks []Chunk
	for c, err := range seq {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func TestGenAIEngine_TextOnly(t *testing.T) {
	gen := &fakeGenerator{turns: [][]*genai.Part{{
		{Text: "thinking...", Thought: true},
		{Text: "Hello"},
		{Text: " there"},
	}}}
	eng, _ := newTestEngine(t, gen, 4)

	chunks, err := collect(t, eng.Stream(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
	}, "1"))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, Chunk{Stage: StageAgent, Text: "Hello"}, chunks[0])
	assert.Equal(t, Chunk{Stage: StageAgent, Text: " there"}, chunks[1])

	require.NotNil(t, gen.configs[0].SystemInstruction)
	assert.Equal(t, "be brief", gen.configs[0].SystemInstruction.Parts[0].Text)
	require.Len(t, gen.configs[0].Tools, 1)
	assert.Len(t, gen.configs[0].Tools[0].FunctionDeclarations, 2)
}

func TestGenAIEngine_ToolLoop(t *testing.T) {
	gen := &fakeGenerator{turns: [][]*genai.Part{
		{
			{Text: "Let me look."},
			{FunctionCall: &genai.FunctionCall{ID: "c1", Name: "lookup", Args: map[string]any{"q": "go"}}},
			{FunctionCall: &genai.FunctionCall{ID: "c2", Name: "broken", Args: map[string]any{}}},
		},
		{{Text: "Done."}},
	}}
	eng, _ := newTestEngine(t, gen, 4)

	chunks, err := collect(t, eng.Stream(context.Background(), []Message{{Role: RoleUser, Content: "search go"}}, "7"))
	require.NoError(t, err)
	require.Len(t, chunks, 5)

	assert.Equal(t, "Let me look.", chunks[0].Text)
	assert.Equal(t, StageAgent, chunks[1].Stage)
	require.Len(t, chunks[1].ToolCalls, 2)
	assert.Equal(t, ToolCall{ID: "c1", Name: "lookup", Arguments: `{"q":"go"}`}, chunks[1].ToolCalls[0])

	assert.Equal(t, StageTools, chunks[2].Stage)
	assert.Equal(t, &ToolResult{CallID: "c1", Name: "lookup", Content: "found go"}, chunks[2].ToolResult)
	assert.Equal(t, StageTools, chunks[3].Stage)
	assert.True(t, chunks[3].ToolResult.IsError)
	assert.Contains(t, chunks[3].ToolResult.Content, "backend down")

	assert.Equal(t, "Done.", chunks[4].Text)

	// Second turn sees the model's calls and the function responses.
	require.Len(t, gen.contents, 2)
	second := gen.contents[1]
	require.Len(t, second, 3)
	assert.Equal(t, genai.RoleModel, second[1].Role)
	resp := second[2].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "c1", resp.ID)
	assert.Equal(t, "found go", resp.Response["output"])
}

func TestGenAIEngine_UpstreamError(t *testing.T) {
	gen := &fakeGenerator{streamErr: errors.New("429 quota")}
	eng, _ := newTestEngine(t, gen, 4)

	_, err := collect(t, eng.Stream(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, "1"))
	var upstream *internal.UpstreamEngineError
	require.ErrorAs(t, err, &upstream)
	assert.Contains(t, err.Error(), "429 quota")
}

func TestGenAIEngine_MaxIterations(t *testing.T) {
	call := []*genai.Part{{FunctionCall: &genai.FunctionCall{ID: "c", Name: "lookup", Args: map[string]any{"q": "again"}}}}
	gen := &fakeGenerator{turns: [][]*genai.Part{call, call, call}}
	eng, _ := newTestEngine(t, gen, 2)

	_, err := collect(t, eng.Stream(context.Background(), []Message{{Role: RoleUser, Content: "loop"}}, "1"))
	require.ErrorIs(t, err, ErrMaxIterations)
	assert.Equal(t, 2, gen.calls)
}

func TestGenAIEngine_ConsumerStops(t *testing.T) {
	gen := &fakeGenerator{turns: [][]*genai.Part{{{Text: "a"}, {Text: "b"}, {Text: "c"}}}}
	eng, _ := newTestEngine(t, gen, 4)

	n := 0
	for range eng.Stream(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, "1") {
		n++
		break
	}
	assert.Equal(t, 1, n)

	// The thread lock was released, so the same key can stream again.
	chunks, err := collect(t, eng.Stream(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, "1"))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestGenAIEngine_CancelledContext(t *testing.T) {
	gen := &fakeGenerator{turns: [][]*genai.Part{{{Text: "never"}}}}
	eng, _ := newTestEngine(t, gen, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := collect(t, eng.Stream(ctx, []Message{{Role: RoleUser, Content: "x"}}, "1"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewGenAI_RequiresKey(t *testing.T) {
	_, _, err := NewGenAI(context.Background(), internal.EngineConfig{Model: "m", APIKeyEnv: "GEMINI_API_KEY"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestToContents(t *testing.T) {
	system, contents := toContents([]Message{
		{Role: RoleSystem, Content: "preamble"},
		{Role: RoleSystem, Content: "addendum"},
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	})
	assert.Equal(t, "preamble\n\naddendum", system)
	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, "a1", contents[1].Parts[0].Text)
}

func TestGenAISummarizer(t *testing.T) {
	gen := &fakeGenerator{summary: "  \"Weekend hiking plans\"\n"}
	_, sum := newTestEngine(t, gen, 1)

	title, err := sum.Summarize(context.Background(), "where should I hike this weekend?")
	require.NoError(t, err)
	assert.Equal(t, "Weekend hiking plans", title)

	gen.summary = "   "
	_, err = sum.Summarize(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoSummary)

	gen.summaryErr = errors.New("unavailable")
	_, err = sum.Summarize(context.Background(), "x")
	assert.Error(t, err)
}

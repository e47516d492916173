package engine

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"
)

const titleInstruction = "Summarize the user's message as a conversation title of at most six words. " +
	"Reply with the title only, without quotes or punctuation at the end. Use the language of the message."

// ErrNoSummary is returned when no summary could be produced.
var ErrNoSummary = errors.New("no summary produced")

// GenAISummarizer derives titles with a single Gemini call.
type GenAISummarizer struct {
	models generator
	model  string
}

// Summarize returns a cleaned short title for text.
func (s *GenAISummarizer) Summarize(ctx context.Context, text string) (string, error) {
	resp, err := s.models.GenerateContent(ctx, s.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: titleInstruction}}},
		})
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoSummary
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if !part.Thought {
			b.WriteString(part.Text)
		}
	}
	title := CleanTitle(b.String())
	if title == "" {
		return "", ErrNoSummary
	}
	return title, nil
}

// CleanTitle strips quotes, line breaks, and surrounding whitespace from a model title.
func CleanTitle(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, "\"'`“”‘’ ")
	return strings.TrimSpace(s)
}

// NoSummarizer always fails, so callers fall back to a truncated title.
type NoSummarizer struct{}

// Summarize implements Summarizer.
func (NoSummarizer) Summarize(context.Context, string) (string, error) {
	return "", ErrNoSummary
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, text string) (string, error)

// Summarize implements Summarizer.
func (f SummarizerFunc) Summarize(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

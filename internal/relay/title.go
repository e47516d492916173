package relay

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/iksnae/chatrelay/internal"
	"github.com/iksnae/chatrelay/internal/engine"
)

// titleTask is a single-assignment future for a session's derived title.
type titleTask struct {
	done  chan struct{}
	title string
}

// startTitle derives, persists, and publishes a title in the background.
// ctx must not be tied to the client connection.
func (r *Relay) startTitle(ctx context.Context, sessionID int64, input string, log *zap.Logger) *titleTask {
	maxRunes := r.titleMaxRunes
	t := &titleTask{done: make(chan struct{})}
	r.background.Add(1)
	go func() {
		defer r.background.Done()
		defer close(t.done)

		title, err := r.summarizer.Summarize(ctx, input)
		title = engine.CleanTitle(title)
		if err != nil || title == "" {
			if err != nil {
				log.Debug("title summary unavailable, using fallback",
					zap.Error(&internal.EnrichmentError{SessionID: sessionID, Err: err}))
			}
			title = FallbackTitle(input, maxRunes)
		}
		if utf8.RuneCountInString(title) > maxRunes*2 {
			title = FallbackTitle(title, maxRunes*2)
		}

		if err := r.store.SetTitle(ctx, sessionID, title); err != nil {
			log.Warn("failed to persist title", zap.Error(err))
		}
		t.title = title
	}()
	return t
}

// TryPoll returns the title if the task has finished, without blocking.
func (t *titleTask) TryPoll() (string, bool) {
	select {
	case <-t.done:
		return t.title, true
	default:
		return "", false
	}
}

// Await blocks until the task finishes and returns its title.
func (t *titleTask) Await() string {
	<-t.done
	return t.title
}

// FallbackTitle collapses whitespace in input and truncates it to maxRunes,
// marking the cut with an ellipsis.
func FallbackTitle(input string, maxRunes int) string {
	s := strings.Join(strings.Fields(input), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}

package engine

import (
	"context"
	"iter"
	"strings"
	"time"
)

// EchoEngine streams the latest user message back word by word. It needs no
// credentials and is used for local runs and demos.
type EchoEngine struct {
	delay time.Duration
}

// NewEcho returns an EchoEngine pausing delayMS milliseconds between words.
func NewEcho(delayMS int) *EchoEngine {
	return &EchoEngine{delay: time.Duration(delayMS) * time.Millisecond}
}

// Stream implements Engine.
func (e *EchoEngine) Stream(ctx context.Context, msgs []Message, _ string) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		var last string
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == RoleUser {
				last = msgs[i].Content
				break
			}
		}

		words := strings.Fields(last)
		for i, w := range words {
			if i > 0 {
				w = " " + w
			}
			if e.delay > 0 {
				select {
				case <-ctx.Done():
					yield(Chunk{}, ctx.Err())
					return
				case <-time.After(e.delay):
				}
			} else if err := ctx.Err(); err != nil {
				yield(Chunk{}, err)
				return
			}
			if !yield(Chunk{Stage: StageAgent, Text: w}, nil) {
				return
			}
		}
	}
}

package relay

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/iksnae/chatrelay/internal"
	"github.com/iksnae/chatrelay/internal/engine"
)

// step is one scripted engine output. before runs ahead of the yield.
type step struct {
	chunk  engine.Chunk
	err    error
	before func()
}

func token(s string) step {
	return step{chunk: engine.Chunk{Stage: engine.StageAgent, Text: s}}
}

type scriptedEngine struct {
	steps []step
	// after runs once every step has been consumed.
	after func()

	mu       sync.Mutex
	received [][]engine.Message
	keys     []string
}

func (e *scriptedEngine) Stream(ctx context.Context, msgs []engine.Message, key string) iter.Seq2[engine.Chunk, error] {
	e.mu.Lock()
	e.received = append(e.received, msgs)
	e.keys = append(e.keys, key)
	e.mu.Unlock()

	return func(yield func(engine.Chunk, error) bool) {
		for _, s := range e.steps {
			if err := ctx.Err(); err != nil {
				yield(engine.Chunk{}, err)
				return
			}
			if s.before != nil {
				s.before()
			}
			if s.err != nil {
				yield(engine.Chunk{}, s.err)
				return
			}
			if !yield(s.chunk, nil) {
				return
			}
		}
		if e.after != nil {
			e.after()
		}
	}
}

func (e *scriptedEngine) lastContext() []engine.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.received) == 0 {
		return nil
	}
	return e.received[len(e.received)-1]
}

var errSinkClosed = errors.New("sink closed")

// recordingSink keeps every event. With failAfter > 0 it accepts that many
// events and then fails like a closed connection.
type recordingSink struct {
	failAfter int
	events    []Event
}

func (s *recordingSink) Send(ev Event) error {
	if s.failAfter > 0 && len(s.events) >= s.failAfter {
		return errSinkClosed
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (s *recordingSink) types() []EventType {
	out := make([]EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

// countingStore records how the relay writes AI content.
type countingStore struct {
	*internal.Store

	mu       sync.Mutex
	aiAppend int
	updates  int
}

func (c *countingStore) AppendAfter(ctx context.Context, sessionID, anchorID int64, role internal.Role, content string) (*internal.Message, error) {
	if role == internal.RoleAI {
		c.mu.Lock()
		c.aiAppend++
		c.mu.Unlock()
	}
	return c.Store.AppendAfter(ctx, sessionID, anchorID, role, content)
}

func (c *countingStore) UpdateContent(ctx context.Context, sessionID, messageID int64, content string) (bool, error) {
	c.mu.Lock()
	c.updates++
	c.mu.Unlock()
	return c.Store.UpdateContent(ctx, sessionID, messageID, content)
}

func (c *countingStore) counts() (appends, updates int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aiAppend, c.updates
}

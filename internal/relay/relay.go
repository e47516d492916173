// Package relay drives one request/response cycle of a chat session: it
// records the user's message, streams the engine's answer to the client,
// checkpoints the answer while it grows, and surfaces a derived title for
// new sessions without holding up the token stream.
package relay

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iksnae/chatrelay/internal"
	"github.com/iksnae/chatrelay/internal/engine"
)

// ErrClientGone marks a run whose client stopped reading mid-stream.
var ErrClientGone = errors.New("client disconnected")

// Store is the persistence the relay needs. *internal.Store implements it.
type Store interface {
	GetSession(ctx context.Context, owner internal.OwnerKey, id int64) (*internal.Session, error)
	Append(ctx context.Context, sessionID int64, role internal.Role, content string) (*internal.Message, error)
	AppendAfter(ctx context.Context, sessionID, anchorID int64, role internal.Role, content string) (*internal.Message, error)
	UpdateContent(ctx context.Context, sessionID, messageID int64, content string) (bool, error)
	ListMessages(ctx context.Context, sessionID int64) ([]internal.Message, error)
	SetTitle(ctx context.Context, sessionID int64, title string) error
}

// Relay runs streaming cycles. One Relay is shared by all requests.
type Relay struct {
	store      Store
	engine     engine.Engine
	summarizer engine.Summarizer
	clock      internal.Clock

	interval      time.Duration
	titleMaxRunes int
	preamble      string
	addendum      string

	background sync.WaitGroup
}

// Option configures a Relay.
type Option func(*Relay)

// WithClock overrides the clock used for checkpoint spacing.
func WithClock(c internal.Clock) Option {
	return func(r *Relay) { r.clock = c }
}

// WithConfig applies the relay section of the service configuration.
func WithConfig(cfg internal.RelayConfig) Option {
	return func(r *Relay) {
		if cfg.CheckpointInterval > 0 {
			r.interval = cfg.CheckpointInterval
		}
		if cfg.TitleMaxRunes > 0 {
			r.titleMaxRunes = cfg.TitleMaxRunes
		}
		if cfg.Preamble != "" {
			r.preamble = cfg.Preamble
		}
		r.addendum = cfg.Addendum
	}
}

// New creates a Relay. The engine and summarizer are long-lived handles
// built once at startup.
func New(store Store, eng engine.Engine, sum engine.Summarizer, opts ...Option) *Relay {
	defaults := internal.DefaultConfig().Relay
	r := &Relay{
		store:         store,
		engine:        eng,
		summarizer:    sum,
		clock:         internal.RealClock(),
		interval:      defaults.CheckpointInterval,
		titleMaxRunes: defaults.TitleMaxRunes,
		preamble:      defaults.Preamble,
		addendum:      defaults.Addendum,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.summarizer == nil {
		r.summarizer = engine.NoSummarizer{}
	}
	return r
}

// Wait blocks until background title tasks started by this Relay finish.
func (r *Relay) Wait() {
	r.background.Wait()
}

// Request is the input of one streaming cycle.
type Request struct {
	SessionID int64
	Owner     internal.OwnerKey
	Input     string
}

// Result summarizes a finished run.
type Result struct {
	State         State
	UserMessageID int64
	AIMessageID   int64
	Text          string
	ToolCalls     int
	Title         string
	// Err is the engine or client failure that ended the run early, if any.
	Err error
}

// run carries the mutable state of one cycle.
type run struct {
	relay  *Relay
	sink   Sink
	log    *zap.Logger
	result *Result

	sessionID int64
	acc       *accumulator
	title     *titleTask

	seenCalls map[string]bool
	// spoken is set once a token or tool_call has gone out; the title waits for it.
	spoken       bool
	titleSent    bool
	disconnected bool
}

// Run executes one cycle and streams its events to sink.
//
// Ownership and input are checked before anything is written or sent; those
// failures are returned as errors. Once the user message is recorded, Run
// always returns a Result: engine and client failures end up in Result.Err
// and, when the client is still there, as a final error event.
func (r *Relay) Run(ctx context.Context, req Request, sink Sink) (*Result, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, &internal.ValidationError{Field: "message", Reason: "empty"}
	}
	if err := req.Owner.Validate(); err != nil {
		return nil, err
	}
	sess, err := r.store.GetSession(ctx, req.Owner, req.SessionID)
	if err != nil {
		return nil, err
	}

	userMsg, err := r.store.Append(ctx, sess.ID, internal.RoleHuman, req.Input)
	if err != nil {
		return nil, err
	}

	log := internal.Logger().With(zap.Int64("session_id", sess.ID), zap.Int64("user_message_id", userMsg.ID))
	ru := &run{
		relay:     r,
		sink:      sink,
		log:       log,
		result:    &Result{State: StateIdle, UserMessageID: userMsg.ID},
		sessionID: sess.ID,
		seenCalls: make(map[string]bool),
		acc: &accumulator{
			store:     r.store,
			clock:     r.clock,
			interval:  r.interval,
			sessionID: sess.ID,
			anchorID:  userMsg.ID,
			log:       log,
		},
	}

	ru.send(Event{Type: EventUserMessageID, ChatID: userMsg.ID})

	if userMsg.Sequence == 1 {
		ru.title = r.startTitle(context.WithoutCancel(ctx), sess.ID, req.Input, log)
	}

	engineErr := ru.stream(ctx, req.Owner)
	ru.finish(ctx, engineErr)
	return ru.result, nil
}

// stream feeds engine output to the client until the engine finishes,
// fails, or the client goes away.
func (ru *run) stream(ctx context.Context, owner internal.OwnerKey) error {
	history, err := ru.relay.store.ListMessages(ctx, ru.sessionID)
	if err != nil {
		return err
	}
	msgs := ru.relay.buildContext(owner, history)

	engCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Writes outlive the request so a departing client does not lose them.
	persistCtx := context.WithoutCancel(ctx)

	ru.transition(StateAwaitingEngine)
	for chunk, err := range ru.relay.engine.Stream(engCtx, msgs, strconv.FormatInt(ru.sessionID, 10)) {
		if err != nil {
			return err
		}
		if ru.result.State == StateAwaitingEngine {
			ru.transition(StateEmitting)
		}
		ru.handle(persistCtx, chunk)
		ru.pollTitle()
		if ru.disconnected {
			cancel()
			return nil
		}
	}
	return nil
}

func (ru *run) handle(ctx context.Context, chunk engine.Chunk) {
	switch chunk.Stage {
	case engine.StageTools:
		if chunk.ToolResult == nil {
			return
		}
		content := chunk.ToolResult.Content
		ru.send(Event{Type: EventToolResult, Length: len(content)})
		if ru.acc.gone {
			return
		}
		_, err := ru.relay.store.AppendAfter(ctx, ru.sessionID, ru.acc.anchorID, internal.RoleTool, content)
		if errors.Is(err, internal.ErrNotFound) {
			ru.acc.markGone()
		} else if err != nil {
			ru.log.Warn("failed to persist tool output", zap.String("tool", chunk.ToolResult.Name), zap.Error(err))
		}

	default:
		if len(chunk.ToolCalls) > 0 {
			for _, call := range chunk.ToolCalls {
				key := call.ID
				if key == "" {
					key = call.Name
				}
				if ru.seenCalls[key] {
					continue
				}
				ru.seenCalls[key] = true
				ru.result.ToolCalls++
				ru.send(Event{Type: EventToolCall, ToolName: call.Name})
				ru.spoken = true
			}
			return
		}
		if chunk.Text == "" {
			return
		}
		ru.acc.add(chunk.Text)
		ru.send(Event{Type: EventToken, Content: chunk.Text})
		ru.spoken = true
		ru.acc.checkpoint(ctx)
	}
}

// pollTitle emits the title once it is ready and the answer has started,
// never blocking.
func (ru *run) pollTitle() {
	if ru.title == nil || ru.titleSent || !ru.spoken {
		return
	}
	if title, ok := ru.title.TryPoll(); ok {
		ru.emitTitle(title)
	}
}

func (ru *run) emitTitle(title string) {
	ru.titleSent = true
	ru.result.Title = title
	ru.send(Event{Type: EventHistoryTitle, HistoryID: ru.sessionID, Title: title})
}

// finish persists the final text, flushes the title, and reports any failure last.
func (ru *run) finish(ctx context.Context, engineErr error) {
	ru.transition(StateFinalizing)

	if ctx.Err() != nil && !ru.disconnected {
		ru.disconnected = true
	}
	if engineErr != nil && ru.disconnected {
		// Cancellation caused by the client leaving is not an engine failure.
		engineErr = nil
	}

	if err := ru.acc.finalize(context.WithoutCancel(ctx)); err != nil {
		ru.log.Error("final response lost", zap.Error(err), zap.Int("length", ru.acc.text.Len()))
	}
	ru.result.AIMessageID = ru.acc.messageID
	ru.result.Text = ru.acc.String()

	if ru.title != nil && !ru.titleSent && !ru.disconnected {
		ru.emitTitle(ru.title.Await())
	}

	switch {
	case engineErr != nil:
		ru.result.Err = engineErr
		ru.log.Warn("engine failed mid-stream", zap.Error(engineErr), zap.Int("persisted_length", len(ru.result.Text)))
		ru.send(Event{Type: EventError, Message: engineErr.Error()})
		ru.transition(StateFailed)
	case ru.disconnected:
		ru.result.Err = ErrClientGone
		ru.log.Info("client disconnected; response persisted", zap.Int("length", len(ru.result.Text)))
		ru.transition(StateFailed)
	default:
		ru.transition(StateCompleted)
	}
}

// send writes ev unless the client is already gone.
func (ru *run) send(ev Event) {
	if ru.disconnected {
		return
	}
	if err := ru.sink.Send(ev); err != nil {
		ru.disconnected = true
		ru.log.Debug("send failed, treating client as gone", zap.Error(err))
	}
}

func (ru *run) transition(to State) {
	ru.log.Debug("relay state", zap.Stringer("from", ru.result.State), zap.Stringer("to", to))
	ru.result.State = to
}

// buildContext assembles the engine input: the fixed preamble, an
// owner-specific addendum, then the conversation so far. Tool output is
// left out; the engine sees only what was said.
func (r *Relay) buildContext(owner internal.OwnerKey, history []internal.Message) []engine.Message {
	system := r.preamble
	if r.addendum != "" {
		system += "\n" + strings.ReplaceAll(r.addendum, "{owner}", describeOwner(owner))
	}

	msgs := make([]engine.Message, 0, len(history)+1)
	msgs = append(msgs, engine.Message{Role: engine.RoleSystem, Content: system})
	for _, m := range history {
		switch m.Role {
		case internal.RoleHuman:
			msgs = append(msgs, engine.Message{Role: engine.RoleUser, Content: m.Content})
		case internal.RoleAI:
			if m.Content != "" {
				msgs = append(msgs, engine.Message{Role: engine.RoleAssistant, Content: m.Content})
			}
		}
	}
	return msgs
}

func describeOwner(owner internal.OwnerKey) string {
	if owner.IsGuest() {
		return "an anonymous guest"
	}
	return "signed-in user " + owner.ID
}

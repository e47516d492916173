package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iksnae/chatrelay/internal"
)

// accumulator owns the AI text of one turn and its persisted copy.
// The first write creates the AI message; later writes update it in place,
// so a turn never has more than one AI message.
type accumulator struct {
	store     Store
	clock     internal.Clock
	interval  time.Duration
	sessionID int64
	anchorID  int64
	log       *zap.Logger

	text           strings.Builder
	messageID      int64
	lastCheckpoint time.Time
	checkpoints    int
	// gone is set once the turn was deleted underneath the relay.
	gone bool
}

func (a *accumulator) add(s string) {
	a.text.WriteString(s)
}

func (a *accumulator) String() string {
	return a.text.String()
}

// due reports whether a checkpoint should be written now.
func (a *accumulator) due() bool {
	if a.gone || a.text.Len() == 0 {
		return false
	}
	return a.lastCheckpoint.IsZero() || a.clock.Now().Sub(a.lastCheckpoint) >= a.interval
}

// checkpoint persists the current text when due. Failures are logged and
// retried at the next interval.
func (a *accumulator) checkpoint(ctx context.Context) {
	if !a.due() {
		return
	}
	a.lastCheckpoint = a.clock.Now()
	if err := a.write(ctx, "checkpoint"); err != nil {
		a.log.Warn("checkpoint failed", zap.Error(err))
		return
	}
	a.checkpoints++
}

// finalize writes the full text, retrying once before reporting loss.
func (a *accumulator) finalize(ctx context.Context) error {
	if a.gone || (a.messageID == 0 && a.text.Len() == 0) {
		return nil
	}
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		if err = a.write(ctx, "finalize"); err == nil {
			return nil
		}
		a.log.Warn("final write failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}

func (a *accumulator) write(ctx context.Context, op string) error {
	content := a.text.String()

	if a.messageID == 0 {
		msg, err := a.store.AppendAfter(ctx, a.sessionID, a.anchorID, internal.RoleAI, content)
		if errors.Is(err, internal.ErrNotFound) {
			a.markGone()
			return nil
		}
		if err != nil {
			return &internal.PersistenceError{Op: op, Err: err}
		}
		a.messageID = msg.ID
		return nil
	}

	ok, err := a.store.UpdateContent(ctx, a.sessionID, a.messageID, content)
	if err != nil {
		return &internal.PersistenceError{Op: op, MessageID: a.messageID, Err: err}
	}
	if !ok {
		a.markGone()
	}
	return nil
}

func (a *accumulator) markGone() {
	if !a.gone {
		a.gone = true
		a.log.Info("turn deleted during streaming; no further writes", zap.Int64("ai_message_id", a.messageID))
	}
}

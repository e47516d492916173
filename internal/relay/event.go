package relay

import (
	"encoding/json"
	"fmt"
	"io"
)

// EventType names a wire event.
type EventType string

const (
	EventUserMessageID EventType = "user_message_id"
	EventToken         EventType = "token"
	EventToolCall      EventType = "tool_call"
	EventToolResult    EventType = "tool_result"
	EventHistoryTitle  EventType = "history_title"
	EventError         EventType = "error"
)

// Event is one line of the response stream. Only the fields belonging to
// Type are serialized.
type Event struct {
	Type      EventType
	ChatID    int64
	Content   string
	ToolName  string
	Length    int
	HistoryID int64
	Title     string
	Message   string
}

// MarshalJSON renders the event in its wire shape.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventUserMessageID:
		return json.Marshal(struct {
			Type   EventType `json:"type"`
			ChatID int64     `json:"chat_id"`
		}{e.Type, e.ChatID})
	case EventToken:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Content string    `json:"content"`
		}{e.Type, e.Content})
	case EventToolCall:
		return json.Marshal(struct {
			Type     EventType `json:"type"`
			ToolName string    `json:"tool_name"`
		}{e.Type, e.ToolName})
	case EventToolResult:
		return json.Marshal(struct {
			Type   EventType `json:"type"`
			Length int       `json:"length"`
		}{e.Type, e.Length})
	case EventHistoryTitle:
		return json.Marshal(struct {
			Type      EventType `json:"type"`
			HistoryID int64     `json:"history_id"`
			Title     string    `json:"title"`
		}{e.Type, e.HistoryID, e.Title})
	case EventError:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Message})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

// UnmarshalJSON reads any wire event back into an Event.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      EventType `json:"type"`
		ChatID    int64     `json:"chat_id"`
		Content   string    `json:"content"`
		ToolName  string    `json:"tool_name"`
		Length    int       `json:"length"`
		HistoryID int64     `json:"history_id"`
		Title     string    `json:"title"`
		Message   string    `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event(raw)
	return nil
}

// Sink receives events in order. A Send error means the client is gone.
type Sink interface {
	Send(Event) error
}

type flusher interface {
	Flush()
}

// NDJSONWriter writes one JSON event per line and flushes after each,
// so clients see tokens as they arrive.
type NDJSONWriter struct {
	w   io.Writer
	enc *json.Encoder
}

// NewNDJSONWriter wraps w. If w implements http.Flusher it is flushed after
// every event.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &NDJSONWriter{w: w, enc: enc}
}

// Send implements Sink.
func (n *NDJSONWriter) Send(ev Event) error {
	if err := n.enc.Encode(ev); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if f, ok := n.w.(flusher); ok {
		f.Flush()
	}
	return nil
}

package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/iksnae/chatrelay/internal"
)

// JSONLExporter exports transcripts in JSONL format (one message per line)
type JSONLExporter struct{}

type jsonlLine struct {
	Sequence  int64         `json:"sequence"`
	Role      internal.Role `json:"role"`
	Content   string        `json:"content"`
	CreatedAt string        `json:"created_at,omitempty"`
}

// Export writes every message of t as its own JSON line
func (e *JSONLExporter) Export(t *internal.Transcript, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for _, msg := range t.Messages {
		line := jsonlLine{
			Sequence: msg.Sequence,
			Role:     msg.Role,
			Content:  msg.Content,
		}
		if !msg.CreatedAt.IsZero() {
			line.CreatedAt = msg.CreatedAt.UTC().Format(time.RFC3339)
		}

		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode message %d: %w", msg.ID, err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}

// ContentType returns the MIME type for this format
func (e *JSONLExporter) ContentType() string {
	return "application/x-ndjson"
}

package export

import (
	"encoding/json"
	"io"

	"github.com/iksnae/chatrelay/internal"
)

// JSONExporter exports a transcript as one pretty-printed JSON document
type JSONExporter struct{}

// Export writes the session and its messages to w
func (e *JSONExporter) Export(t *internal.Transcript, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	return enc.Encode(t)
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}

// ContentType returns the MIME type for this format
func (e *JSONExporter) ContentType() string {
	return "application/json"
}

package export

import (
	"fmt"
	"io"

	"github.com/iksnae/chatrelay/internal"
)

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(t *internal.Transcript, w io.Writer) error
	Extension() string
	ContentType() string
}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: jsonl, md, yaml, json)", format)
	}
}

// Formats lists the canonical format names accepted by NewExporter.
func Formats() []string {
	return []string{"jsonl", "md", "yaml", "json"}
}

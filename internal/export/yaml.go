package export

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/iksnae/chatrelay/internal"
)

// YAMLExporter exports transcripts in YAML format
type YAMLExporter struct{}

// Export writes t as a single YAML document
func (e *YAMLExporter) Export(t *internal.Transcript, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(t)
}

// Extension returns the file extension for this format
func (e *YAMLExporter) Extension() string {
	return "yaml"
}

// ContentType returns the MIME type for this format
func (e *YAMLExporter) ContentType() string {
	return "application/yaml"
}

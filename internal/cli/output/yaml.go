package output

import (
	"io"

	"gopkg.in/yaml.v3"
)

// PrintYAML writes data to the writer as two-space-indented YAML, the
// shape "-o yaml" emits for scripting. The encoder buffers, so the
// flush error from Close is the one that matters.
func PrintYAML(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

package output

import (
	"encoding/json"
	"io"
)

// PrintJSON writes data to the writer as two-space-indented JSON. HTML
// escaping is off so file names containing & or < print as typed.
func PrintJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(data)
}

package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/dibuix-tech/dibuix/internal/doc"
)

// SchemaVersion identifies the JSON envelope layout.
const SchemaVersion = "2.0"

// SchemaDescription summarizes the envelope contents for consumers.
const SchemaDescription = "OCR extraction result with classified text blocks"

// Envelope wraps a result with export metadata so consumers can detect
// layout changes.
type Envelope struct {
	Version     string      `json:"version"`
	Description string      `json:"description"`
	GeneratedAt time.Time   `json:"generated_at"`
	Document    *doc.Result `json:"document"`
}

// WriteJSON writes the result as pretty-printed JSON inside a
// versioned envelope.
func WriteJSON(w io.Writer, res *doc.Result) error {
	if res == nil {
		return ErrNilResult
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Envelope{
		Version:     SchemaVersion,
		Description: SchemaDescription,
		GeneratedAt: now().UTC(),
		Document:    res,
	})
}

// Package export serializes processing results into the supported
// download formats: plain text, JSON, CSV and a rendered PDF report.
package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/dibuix-tech/dibuix/internal/doc"
)

// Format identifies an export format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
)

// ErrNilResult is returned when there is nothing to export.
var ErrNilResult = errors.New("nil result")

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON, FormatCSV, FormatPDF:
		return Format(s), nil
	case "txt":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	switch f {
	case FormatText:
		return "txt"
	default:
		return string(f)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Write serializes res to w in the given format. The PDF report needs
// page images and is handled separately by WriteReport.
func Write(w io.Writer, res *doc.Result, format Format) error {
	if res == nil {
		return ErrNilResult
	}
	switch format {
	case FormatText:
		return WriteText(w, res)
	case FormatJSON:
		return WriteJSON(w, res)
	case FormatCSV:
		return WriteCSV(w, res)
	default:
		return fmt.Errorf("format %q is not streamable", format)
	}
}

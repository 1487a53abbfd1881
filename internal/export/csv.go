package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dibuix-tech/dibuix/internal/doc"
)

// WriteCSV writes one row per block with position, confidence and text
// metrics.
func WriteCSV(w io.Writer, res *doc.Result) error {
	if res == nil {
		return ErrNilResult
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"id", "page", "kind", "text", "confidence",
		"x1", "y1", "x2", "y2", "chars", "words",
	}); err != nil {
		return err
	}
	for _, b := range res.Blocks {
		row := []string{
			b.ID,
			strconv.Itoa(b.Page),
			string(b.Kind),
			b.Text,
			fmt.Sprintf("%.3f", b.Confidence),
			fmt.Sprintf("%.1f", b.Box.X1),
			fmt.Sprintf("%.1f", b.Box.Y1),
			fmt.Sprintf("%.1f", b.Box.X2),
			fmt.Sprintf("%.1f", b.Box.Y2),
			strconv.Itoa(len([]rune(b.Text))),
			strconv.Itoa(len(strings.Fields(b.Text))),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

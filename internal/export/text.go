package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dibuix-tech/dibuix/internal/doc"
)

// now is swapped out in tests for deterministic headers.
var now = time.Now

// WriteText writes a human-readable extraction report: a short header
// with document statistics followed by the recognized text. When the
// engine provided a full-text layer that is used verbatim, otherwise
// the blocks are printed page by page in reading order.
func WriteText(w io.Writer, res *doc.Result) error {
	if res == nil {
		return ErrNilResult
	}

	var sb strings.Builder
	sb.WriteString("OCR EXTRACTION RESULT\n")
	sb.WriteString("=====================\n")
	fmt.Fprintf(&sb, "File:       %s\n", res.Filename)
	fmt.Fprintf(&sb, "Generated:  %s\n", now().Format(time.RFC3339))
	if res.Engine != "" {
		fmt.Fprintf(&sb, "Engine:     %s\n", res.Engine)
	}
	fmt.Fprintf(&sb, "Pages:      %d\n", res.Stats.PageCount)
	fmt.Fprintf(&sb, "Blocks:     %d\n", res.Stats.TotalBlocks)
	fmt.Fprintf(&sb, "Confidence: %.1f%% (high %d / medium %d / low %d)\n",
		res.Stats.AvgConfidence*100,
		res.Stats.Tiers.High, res.Stats.Tiers.Medium, res.Stats.Tiers.Low)
	sb.WriteString("\n")

	if strings.TrimSpace(res.Text) != "" {
		sb.WriteString(res.Text)
		if !strings.HasSuffix(res.Text, "\n") {
			sb.WriteString("\n")
		}
	} else {
		writeBlockText(&sb, res)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeBlockText(sb *strings.Builder, res *doc.Result) {
	pages := make([]int, 0, len(res.Pages))
	for _, p := range res.Pages {
		pages = append(pages, p.Number)
	}
	sort.Ints(pages)

	for _, page := range pages {
		blocks := res.PageBlocks(page)
		if len(blocks) == 0 {
			continue
		}
		fmt.Fprintf(sb, "--- Page %d ---\n", page)
		for _, b := range blocks {
			t := strings.TrimSpace(b.Text)
			if t != "" {
				sb.WriteString(t)
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\n")
	}
}

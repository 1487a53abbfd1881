package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"sort"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/dibuix-tech/dibuix/internal/doc"
	"github.com/dibuix-tech/dibuix/internal/ocr"
	"github.com/dibuix-tech/dibuix/internal/overlay"
)

// Summary page canvas, A4 proportions at 150 dpi.
const (
	summaryWidth  = 1240
	summaryHeight = 1754
	summaryMargin = 60
	lineSpacing   = 22
)

// WriteReport produces a PDF with a summary page followed by every
// rendered page with its overlay drawn in.
func WriteReport(w io.Writer, res *doc.Result, pages []ocr.PageImage, opts overlay.Options) error {
	if res == nil {
		return ErrNilResult
	}

	imgs := make([]io.Reader, 0, len(pages)+1)

	var buf bytes.Buffer
	if err := png.Encode(&buf, summaryPage(res)); err != nil {
		return fmt.Errorf("encode summary page: %w", err)
	}
	imgs = append(imgs, bytes.NewReader(buf.Bytes()))

	for _, p := range pages {
		rendered := overlay.Render(p.Image, res.Blocks, p.Number, opts)
		var pb bytes.Buffer
		if err := png.Encode(&pb, rendered); err != nil {
			return fmt.Errorf("encode page %d: %w", p.Number, err)
		}
		imgs = append(imgs, bytes.NewReader(pb.Bytes()))
	}

	imp, err := api.Import("form:A4, pos:c", types.POINTS)
	if err != nil {
		return fmt.Errorf("report layout: %w", err)
	}
	if err := api.ImportImages(nil, w, imgs, imp, nil); err != nil {
		return fmt.Errorf("assemble report: %w", err)
	}
	return nil
}

// summaryPage renders the document statistics as the report cover.
func summaryPage(res *doc.Result) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, summaryWidth, summaryHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	lines := []string{
		"OCR PROCESSING REPORT",
		"",
		fmt.Sprintf("File:       %s", res.Filename),
		fmt.Sprintf("Generated:  %s", now().Format(time.RFC3339)),
	}
	if res.Engine != "" {
		lines = append(lines, fmt.Sprintf("Engine:     %s", res.Engine))
	}
	lines = append(lines,
		fmt.Sprintf("Pages:      %d (%d with text)", res.Stats.PageCount, res.Stats.PagesWithText),
		fmt.Sprintf("Blocks:     %d", res.Stats.TotalBlocks),
		fmt.Sprintf("Confidence: %.1f%%", res.Stats.AvgConfidence*100),
		fmt.Sprintf("  high   %d", res.Stats.Tiers.High),
		fmt.Sprintf("  medium %d", res.Stats.Tiers.Medium),
		fmt.Sprintf("  low    %d", res.Stats.Tiers.Low),
		"",
		"Elements by type:",
	)

	kinds := make([]string, 0, len(res.Stats.KindCounts))
	for k := range res.Stats.KindCounts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		lines = append(lines, fmt.Sprintf("  %-12s %d", k, res.Stats.KindCounts[doc.Kind(k)]))
	}
	if res.Stats.DetectionCount > 0 {
		lines = append(lines, "", fmt.Sprintf("Detector hits: %d", res.Stats.DetectionCount))
	}

	drawer := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
	}
	y := summaryMargin
	for _, line := range lines {
		drawer.Dot = fixed.P(summaryMargin, y)
		drawer.DrawString(line)
		y += lineSpacing
	}
	return img
}

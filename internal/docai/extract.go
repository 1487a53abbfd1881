package docai

import (
	"fmt"
	"strings"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"golang.org/x/text/unicode/norm"

	"github.com/dibuix-tech/dibuix/internal/doc"
)

// Default confidences assigned when the processor omits them, matching
// the trust order: form fields and paragraphs over table cells over
// bare lines.
const (
	defaultFormFieldConf = 0.8
	defaultTableCellConf = 0.7
	defaultParagraphConf = 0.8
	defaultLineConf      = 0.6
	fallbackTextConf     = 0.5
)

// ExtractResult converts a Document AI document into the internal
// model. Form fields, table cells and paragraphs are walked per page;
// lines serve as fallback for pages that yield nothing else; a plain
// text split covers documents without any structured layout.
func ExtractResult(d *documentaipb.Document) *doc.Result {
	res := &doc.Result{}
	if d == nil {
		return res
	}
	res.Text = d.GetText()

	for _, page := range d.GetPages() {
		num := int(page.GetPageNumber())
		if num < 1 {
			num = len(res.Pages) + 1
		}
		dim := page.GetDimension()
		p := doc.Page{
			Number: num,
			Width:  int(dim.GetWidth()),
			Height: int(dim.GetHeight()),
		}
		res.Pages = append(res.Pages, p)

		blocks := extractFormFields(page, p, d.GetText())
		blocks = append(blocks, extractTableCells(page, p, d.GetText())...)
		blocks = append(blocks, extractParagraphs(page, p, d.GetText())...)
		if len(blocks) == 0 {
			blocks = extractLines(page, p, d.GetText())
		}
		res.Blocks = append(res.Blocks, blocks...)
	}

	if len(res.Blocks) == 0 && res.Text != "" {
		res.Blocks = fallbackTextBlocks(res.Text)
		if len(res.Pages) == 0 {
			res.Pages = []doc.Page{{Number: 1, Width: 1000, Height: 20 * (len(res.Blocks) + 1)}}
		}
	}

	for i := range res.Blocks {
		res.Blocks[i].ID = fmt.Sprintf("b%04d", i+1)
	}
	res.Blocks = doc.Classify(res.Blocks)
	res.Stats = doc.ComputeStats(res.Blocks, len(res.Pages))
	return res
}

func extractFormFields(page *documentaipb.Document_Page, p doc.Page, text string) []doc.Block {
	var out []doc.Block
	for _, f := range page.GetFormFields() {
		value := strings.TrimSpace(anchorText(text, f.GetFieldValue()))
		if value == "" {
			continue
		}
		name := strings.TrimSpace(anchorText(text, f.GetFieldName()))
		out = append(out, doc.Block{
			Kind:        doc.KindFormField,
			Text:        value,
			Description: name,
			Confidence:  layoutConfidence(f.GetFieldValue(), defaultFormFieldConf),
			Box:         layoutBox(f.GetFieldValue(), p),
			Page:        p.Number,
		})
	}
	return out
}

func extractTableCells(page *documentaipb.Document_Page, p doc.Page, text string) []doc.Block {
	var out []doc.Block
	for _, table := range page.GetTables() {
		for _, row := range table.GetBodyRows() {
			for _, cell := range row.GetCells() {
				value := strings.TrimSpace(anchorText(text, cell.GetLayout()))
				if value == "" {
					continue
				}
				out = append(out, doc.Block{
					Kind:        doc.KindTableCell,
					Text:        value,
					Description: "Table cell data",
					Confidence:  layoutConfidence(cell.GetLayout(), defaultTableCellConf),
					Box:         layoutBox(cell.GetLayout(), p),
					Page:        p.Number,
				})
			}
		}
	}
	return out
}

func extractParagraphs(page *documentaipb.Document_Page, p doc.Page, text string) []doc.Block {
	var out []doc.Block
	for _, para := range page.GetParagraphs() {
		value := strings.TrimSpace(anchorText(text, para.GetLayout()))
		if value == "" {
			continue
		}
		out = append(out, doc.Block{
			Kind:        doc.KindParagraph,
			Text:        value,
			Description: "Paragraph text",
			Confidence:  layoutConfidence(para.GetLayout(), defaultParagraphConf),
			Box:         layoutBox(para.GetLayout(), p),
			Page:        p.Number,
		})
	}
	return out
}

func extractLines(page *documentaipb.Document_Page, p doc.Page, text string) []doc.Block {
	var out []doc.Block
	for _, line := range page.GetLines() {
		value := strings.TrimSpace(anchorText(text, line.GetLayout()))
		if value == "" {
			continue
		}
		out = append(out, doc.Block{
			Kind:        doc.KindTextLine,
			Text:        value,
			Description: "Text line",
			Confidence:  layoutConfidence(line.GetLayout(), defaultLineConf),
			Box:         layoutBox(line.GetLayout(), p),
			Page:        p.Number,
		})
	}
	return out
}

// fallbackTextBlocks splits the raw document text into synthetic
// per-line blocks when the structured walk produced nothing.
func fallbackTextBlocks(text string) []doc.Block {
	var out []doc.Block
	for _, line := range strings.Split(text, "\n") {
		line = norm.NFC.String(strings.TrimSpace(line))
		if line == "" {
			continue
		}
		// Position by emitted row, not raw line index, so blank lines
		// cannot push blocks past the synthetic page height.
		y := float64(len(out) * 20)
		out = append(out, doc.Block{
			Kind:        doc.KindTextBlock,
			Text:        line,
			Description: "Basic text block",
			Confidence:  fallbackTextConf,
			Box:         doc.Box{X1: 10, Y1: y, X2: 500, Y2: y + 20},
			Page:        1,
		})
	}
	return out
}

// anchorText resolves a layout's text anchor segments against the full
// document text. OCR output may carry decomposed code points (combining
// diacritics, diameter signs), so the result is normalized to NFC
// before classification sees it.
func anchorText(text string, layout *documentaipb.Document_Page_Layout) string {
	anchor := layout.GetTextAnchor()
	if anchor == nil {
		return ""
	}
	var sb strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start := int(seg.GetStartIndex())
		end := int(seg.GetEndIndex())
		if start < 0 || end > len(text) || start >= end {
			continue
		}
		sb.WriteString(text[start:end])
	}
	return norm.NFC.String(sb.String())
}

func layoutConfidence(layout *documentaipb.Document_Page_Layout, def float64) float64 {
	if c := float64(layout.GetConfidence()); c > 0 {
		return doc.ClampConfidence(c)
	}
	return def
}

// layoutBox derives a pixel bounding box from a layout's bounding
// polygon. Normalized vertices are scaled by the page dimension;
// absolute vertices pass through. Degenerate polygons get a small
// default box so overlays stay drawable.
func layoutBox(layout *documentaipb.Document_Page_Layout, p doc.Page) doc.Box {
	poly := layout.GetBoundingPoly()
	if poly == nil {
		return defaultBox()
	}
	if nv := poly.GetNormalizedVertices(); len(nv) >= 2 {
		minX, minY := float64(nv[0].GetX()), float64(nv[0].GetY())
		maxX, maxY := minX, minY
		for _, v := range nv[1:] {
			minX = minf(minX, float64(v.GetX()))
			minY = minf(minY, float64(v.GetY()))
			maxX = maxf(maxX, float64(v.GetX()))
			maxY = maxf(maxY, float64(v.GetY()))
		}
		w, h := float64(p.Width), float64(p.Height)
		return doc.Box{X1: minX * w, Y1: minY * h, X2: maxX * w, Y2: maxY * h}.Clamp(w, h)
	}
	if vs := poly.GetVertices(); len(vs) >= 2 {
		minX, minY := float64(vs[0].GetX()), float64(vs[0].GetY())
		maxX, maxY := minX, minY
		for _, v := range vs[1:] {
			minX = minf(minX, float64(v.GetX()))
			minY = minf(minY, float64(v.GetY()))
			maxX = maxf(maxX, float64(v.GetX()))
			maxY = maxf(maxY, float64(v.GetY()))
		}
		return doc.Box{X1: minX, Y1: minY, X2: maxX, Y2: maxY}.Normalize()
	}
	return defaultBox()
}

func defaultBox() doc.Box { return doc.Box{X1: 10, Y1: 10, X2: 100, Y2: 30} }

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

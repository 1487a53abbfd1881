// Package doc defines the structured OCR data model shared by the
// engines, pipeline, exporters and server: text blocks with position
// and confidence, per-page dimensions and aggregate results.
package doc

import (
	"errors"
	"fmt"
)

// Kind classifies what a text block represents on a technical drawing.
type Kind string

const (
	KindParagraph  Kind = "paragraph"
	KindTextLine   Kind = "text_line"
	KindTextBlock  Kind = "text_block"
	KindFormField  Kind = "form_field"
	KindTableCell  Kind = "table_cell"
	KindDimension  Kind = "dimension"
	KindTolerance  Kind = "tolerance"
	KindMaterial   Kind = "material"
	KindPartNumber Kind = "part_number"
	KindScale      Kind = "scale"
	KindAnnotation Kind = "annotation"
	KindSymbol     Kind = "symbol"
)

// Box is an axis-aligned bounding box in page pixel coordinates.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the vertical extent of the box.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// CenterX returns the horizontal center of the box.
func (b Box) CenterX() float64 { return (b.X1 + b.X2) / 2 }

// CenterY returns the vertical center of the box.
func (b Box) CenterY() float64 { return (b.Y1 + b.Y2) / 2 }

// Normalize reorders coordinates so that X1<=X2 and Y1<=Y2.
func (b Box) Normalize() Box {
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b
}

// Clamp restricts the box to the page bounds [0,w]x[0,h]. Boxes are
// normalized first so the result always has non-negative extent.
func (b Box) Clamp(w, h float64) Box {
	b = b.Normalize()
	b.X1 = clamp(b.X1, 0, w)
	b.Y1 = clamp(b.Y1, 0, h)
	b.X2 = clamp(b.X2, b.X1, w)
	b.Y2 = clamp(b.Y2, b.Y1, h)
	return b
}

// Distance returns the shortest gap between two boxes, zero when they
// overlap or touch.
func (b Box) Distance(o Box) float64 {
	dx := maxf(0, maxf(o.X1-b.X2, b.X1-o.X2))
	dy := maxf(0, maxf(o.Y1-b.Y2, b.Y1-o.Y2))
	if dx == 0 {
		return dy
	}
	if dy == 0 {
		return dx
	}
	return dx + dy
}

// IoU computes intersection-over-union between two boxes.
func (b Box) IoU(o Box) float64 {
	ix1 := maxf(b.X1, o.X1)
	iy1 := maxf(b.Y1, o.Y1)
	ix2 := minf(b.X2, o.X2)
	iy2 := minf(b.Y2, o.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := b.Width()*b.Height() + o.Width()*o.Height() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Block is a unit of recognized text with position and confidence as
// returned by an OCR engine, optionally reclassified by content.
type Block struct {
	ID          string  `json:"id"`
	Kind        Kind    `json:"kind"`
	Text        string  `json:"text"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
	Box         Box     `json:"box"`
	Page        int     `json:"page"` // 1-based
	Source      string  `json:"source,omitempty"`

	// Detector enrichment, set during spatial merge.
	DetectedKind Kind    `json:"detected_kind,omitempty"`
	DetectedConf float64 `json:"detected_confidence,omitempty"`
}

// Page holds the rendered dimensions of a processed page.
type Page struct {
	Number int `json:"number"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Result is the aggregated output for one processed document.
type Result struct {
	Filename   string     `json:"filename"`
	Text       string     `json:"text"`
	Pages      []Page     `json:"pages"`
	Blocks     []Block    `json:"blocks"`
	Detections []Block    `json:"detections,omitempty"` // detector-only hits without matching OCR text
	Stats      Statistics `json:"statistics"`
	Engine     string     `json:"engine,omitempty"`
	Processing struct {
		RenderNs int64 `json:"render_ns"`
		OCRNs    int64 `json:"ocr_ns"`
		DetectNs int64 `json:"detect_ns"`
		TotalNs  int64 `json:"total_ns"`
	} `json:"processing"`
}

// PageBlocks returns the blocks belonging to a page, preserving order.
func (r *Result) PageBlocks(page int) []Block {
	var out []Block
	for _, b := range r.Blocks {
		if b.Page == page {
			out = append(out, b)
		}
	}
	return out
}

// PageDim returns the dimensions of the given page, ok=false when unknown.
func (r *Result) PageDim(page int) (Page, bool) {
	for _, p := range r.Pages {
		if p.Number == page {
			return p, true
		}
	}
	return Page{}, false
}

// ClampConfidence forces a confidence score into [0,1].
func ClampConfidence(c float64) float64 { return clamp(c, 0, 1) }

func validateBlock(b Block, pages []Page, idx int) error {
	if b.Confidence < 0 || b.Confidence > 1 {
		return fmt.Errorf("block %d: confidence %.3f out of range", idx, b.Confidence)
	}
	if b.Page < 1 {
		return fmt.Errorf("block %d: page %d is not 1-based", idx, b.Page)
	}
	box := b.Box
	if box.X1 > box.X2 || box.Y1 > box.Y2 {
		return fmt.Errorf("block %d: box is not normalized", idx)
	}
	for _, p := range pages {
		if p.Number != b.Page {
			continue
		}
		if box.X1 < 0 || box.Y1 < 0 || box.X2 > float64(p.Width) || box.Y2 > float64(p.Height) {
			return fmt.Errorf("block %d: box exceeds page %d bounds", idx, b.Page)
		}
		return nil
	}
	return fmt.Errorf("block %d: references unknown page %d", idx, b.Page)
}

// Validate performs consistency checks on a result: coordinates lie
// within page bounds and confidences are in [0,1].
func Validate(r *Result) error {
	if r == nil {
		return errors.New("nil result")
	}
	for _, p := range r.Pages {
		if p.Width <= 0 || p.Height <= 0 {
			return fmt.Errorf("page %d has invalid size %dx%d", p.Number, p.Width, p.Height)
		}
	}
	for i, b := range r.Blocks {
		if err := validateBlock(b, r.Pages, i); err != nil {
			return err
		}
	}
	return nil
}

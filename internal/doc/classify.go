package doc

import (
	"regexp"
	"strings"
)

// Content patterns for technical drawings. Order matters: the first
// match wins, so dimensions take precedence over generic annotations.
var (
	dimensionRe  = regexp.MustCompile(`\d+[.,]?\d*\s*(mm|cm|m|in|"|'|±)`)
	toleranceRe  = regexp.MustCompile(`[±∓]\s*\d+[.,]?\d*`)
	materialRe   = regexp.MustCompile(`(steel|aluminum|iron|brass|copper|plastic|wood)`)
	partNumberRe = regexp.MustCompile(`^[A-Z]{1,3}[-_]?\d{2,6}[A-Z]?$`)
	scaleRe      = regexp.MustCompile(`(scale|escala)\s*[:\-]?\s*\d+:\d+`)
)

var annotationKeywords = []string{"note", "nota", "see", "veure", "detail", "detall"}

// ClassifyBlock reassigns a block's kind based on its text content.
// Structural kinds from the OCR engine (form fields, table cells) are
// kept unless the text matches a more specific drawing pattern.
func ClassifyBlock(b Block) Block {
	text := strings.ToLower(b.Text)

	switch {
	case dimensionRe.MatchString(text):
		b.Kind = KindDimension
		b.Description = "Dimensional measurement"
	case toleranceRe.MatchString(text):
		b.Kind = KindTolerance
		b.Description = "Tolerance specification"
	case materialRe.MatchString(text):
		b.Kind = KindMaterial
		b.Description = "Material specification"
	case partNumberRe.MatchString(strings.ToUpper(strings.TrimSpace(b.Text))):
		b.Kind = KindPartNumber
		b.Description = "Part identification number"
	case scaleRe.MatchString(text):
		b.Kind = KindScale
		b.Description = "Drawing scale"
	case containsAny(text, annotationKeywords):
		b.Kind = KindAnnotation
		b.Description = "Drawing annotation"
	case b.Kind == KindParagraph || b.Kind == KindTextLine || b.Kind == KindTextBlock:
		b.Kind = KindAnnotation
		b.Description = "General text annotation"
	}
	return b
}

// Classify applies ClassifyBlock to every block of a result.
func Classify(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = ClassifyBlock(b)
	}
	return out
}

func containsAny(s string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

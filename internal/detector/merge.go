package detector

import (
	"fmt"

	"github.com/dibuix-tech/dibuix/internal/doc"
)

// MergeResult describes how detector hits were reconciled with OCR
// text blocks.
type MergeResult struct {
	Matched   int              `json:"matched"`
	Unmatched []doc.Block      `json:"unmatched,omitempty"` // detections without nearby text
	Summary   map[doc.Kind]int `json:"summary"`
	Coherence Coherence        `json:"coherence"`
}

// Coherence compares dimension counts between OCR classification and
// the detector; counts within a small tolerance are considered sane.
type Coherence struct {
	OCRDimensions      int  `json:"ocr_dimensions"`
	DetectorDimensions int  `json:"detector_dimensions"`
	Coherent           bool `json:"coherent"`
}

// dimensionCountTolerance is the allowed spread between the two counts.
const dimensionCountTolerance = 2

// Merge links detections to OCR blocks by nearest-box distance within
// maxDist, enriching matched blocks in place with the detector class
// and confidence. Detections with no block nearby are returned as
// standalone blocks so exports still carry them.
func Merge(blocks []doc.Block, dets []Detection, maxDist float64) MergeResult {
	res := MergeResult{Summary: make(map[doc.Kind]int)}
	if maxDist <= 0 {
		maxDist = DefaultConfig().MaxMergeDist
	}

	for di, det := range dets {
		res.Summary[det.Kind]++

		best := -1
		bestDist := maxDist
		for i := range blocks {
			if blocks[i].Page != det.Page {
				continue
			}
			d := blocks[i].Box.Distance(det.Box)
			if d <= bestDist && (best == -1 || d < bestDist) {
				best = i
				bestDist = d
			}
		}
		if best >= 0 {
			// Closest text wins; keep the strongest detection per block.
			if blocks[best].DetectedKind == "" || det.Confidence > blocks[best].DetectedConf {
				blocks[best].DetectedKind = det.Kind
				blocks[best].DetectedConf = det.Confidence
			}
			res.Matched++
			continue
		}
		res.Unmatched = append(res.Unmatched, doc.Block{
			ID:          fmt.Sprintf("det%04d", di+1),
			Kind:        det.Kind,
			Description: "Detector-only element",
			Confidence:  det.Confidence,
			Box:         det.Box,
			Page:        det.Page,
			Source:      "detector",
		})
	}

	res.Coherence = checkCoherence(blocks, res.Summary[doc.KindDimension])
	return res
}

func checkCoherence(blocks []doc.Block, detectorDims int) Coherence {
	ocrDims := 0
	for _, b := range blocks {
		if b.Kind == doc.KindDimension {
			ocrDims++
		}
	}
	diff := ocrDims - detectorDims
	if diff < 0 {
		diff = -diff
	}
	return Coherence{
		OCRDimensions:      ocrDims,
		DetectorDimensions: detectorDims,
		Coherent:           diff <= dimensionCountTolerance,
	}
}

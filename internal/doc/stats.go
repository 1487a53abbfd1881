package doc

// ConfidenceTiers buckets block confidences the way the overlay colors
// them: high > 0.8, medium in [0.5, 0.8], low < 0.5.
type ConfidenceTiers struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Statistics summarizes a processed document.
type Statistics struct {
	TotalBlocks    int             `json:"total_blocks"`
	PageCount      int             `json:"page_count"`
	PagesWithText  int             `json:"pages_with_text"`
	AvgConfidence  float64         `json:"avg_confidence"`
	KindCounts     map[Kind]int    `json:"kind_counts,omitempty"`
	Tiers          ConfidenceTiers `json:"confidence_distribution"`
	DetectionCount int             `json:"detection_count,omitempty"`
}

// ComputeStats derives summary statistics from a block list.
func ComputeStats(blocks []Block, pageCount int) Statistics {
	s := Statistics{
		TotalBlocks: len(blocks),
		PageCount:   pageCount,
		KindCounts:  make(map[Kind]int),
	}
	if len(blocks) == 0 {
		return s
	}
	pages := make(map[int]struct{})
	var sum float64
	for _, b := range blocks {
		sum += b.Confidence
		s.KindCounts[b.Kind]++
		pages[b.Page] = struct{}{}
		switch {
		case b.Confidence > 0.8:
			s.Tiers.High++
		case b.Confidence >= 0.5:
			s.Tiers.Medium++
		default:
			s.Tiers.Low++
		}
	}
	s.AvgConfidence = sum / float64(len(blocks))
	s.PagesWithText = len(pages)
	return s
}

package detector

import (
	"image"
	"image/draw"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/dibuix-tech/dibuix/internal/doc"
)

// preprocess stretches the image to the square model input and returns
// NCHW float32 data in [0,1] plus the scale factors back to the
// original size.
func preprocess(img image.Image, size int) (data []float32, sx, sy float64) {
	bounds := img.Bounds()
	sx = float64(bounds.Dx()) / float64(size)
	sy = float64(bounds.Dy()) / float64(size)

	resized := imaging.Resize(img, size, size, imaging.Linear)
	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(rgba, rgba.Bounds(), resized, image.Point{}, draw.Src)

	plane := size * size
	data = make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := rgba.PixOffset(x, y)
			idx := y*size + x
			data[idx] = float32(rgba.Pix[i]) / 255.0
			data[plane+idx] = float32(rgba.Pix[i+1]) / 255.0
			data[2*plane+idx] = float32(rgba.Pix[i+2]) / 255.0
		}
	}
	return data, sx, sy
}

// decodeOutput converts raw model output into detections above the
// confidence threshold. The exported model emits one row per candidate
// as (x1, y1, x2, y2, score, class) in model input coordinates; both
// [1, N, 6] and [N, 6] layouts are accepted.
func decodeOutput(out []float32, shape []int64, confThreshold float64) []Detection {
	const stride = 6
	rows := 0
	switch len(shape) {
	case 3:
		if shape[2] == stride {
			rows = int(shape[1])
		}
	case 2:
		if shape[1] == stride {
			rows = int(shape[0])
		}
	}
	if rows == 0 || len(out) < rows*stride {
		return nil
	}

	var dets []Detection
	for r := 0; r < rows; r++ {
		row := out[r*stride : (r+1)*stride]
		score := float64(row[4])
		if score < confThreshold {
			continue
		}
		cls := int(row[5])
		if cls < 0 || cls >= len(classKinds) {
			continue
		}
		dets = append(dets, Detection{
			Kind:       classKinds[cls],
			Confidence: doc.ClampConfidence(score),
			Box: doc.Box{
				X1: float64(row[0]), Y1: float64(row[1]),
				X2: float64(row[2]), Y2: float64(row[3]),
			}.Normalize(),
		})
	}
	return dets
}

// NonMaxSuppression removes detections that overlap a higher-scoring
// detection by more than the IoU threshold.
func NonMaxSuppression(dets []Detection, iouThreshold float64) []Detection {
	if len(dets) <= 1 {
		return dets
	}
	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	suppressed := make([]bool, len(sorted))
	var out []Detection
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		out = append(out, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] {
				continue
			}
			if sorted[i].Box.IoU(sorted[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return out
}

// Package overlay draws color-coded text block rectangles, confidence
// heatmaps and reading-order badges onto rendered page images.
package overlay

import (
	"image"
	"image/color"

	"github.com/dibuix-tech/dibuix/internal/doc"
)

// Mode selects the overlay style.
type Mode string

const (
	ModeOutline Mode = "outline"
	ModeHeatmap Mode = "heatmap"
)

// Blue palette shared with the desktop viewer; tiered by confidence.
var (
	colorHigh     = color.RGBA{0x25, 0x63, 0xeb, 0xff} // > 0.9
	colorMedium   = color.RGBA{0x3b, 0x82, 0xf6, 0xff} // > 0.7
	colorLow      = color.RGBA{0x93, 0xc5, 0xfd, 0xff}
	colorSelected = color.RGBA{0x1d, 0x4e, 0xd8, 0xff}
	colorBadgeBg  = color.RGBA{0xff, 0xff, 0xff, 0xff}

	heatmapAlpha = uint8(80)
)

// Options control overlay rendering for a single page.
type Options struct {
	Mode       Mode
	ShowOrder  bool    // draw reading-order badges
	Zoom       float64 // coordinate scale factor; <=0 means 1.0
	SelectedID string  // block drawn with the selection color
}

// TierColor returns the outline color for a confidence score.
func TierColor(confidence float64) color.RGBA {
	switch {
	case confidence > 0.9:
		return colorHigh
	case confidence > 0.7:
		return colorMedium
	default:
		return colorLow
	}
}

// Render draws the blocks belonging to page over img and returns an
// RGBA copy. The input image is never modified.
func Render(img image.Image, blocks []doc.Block, page int, opts Options) *image.RGBA {
	if img == nil {
		return nil
	}
	zoom := opts.Zoom
	if zoom <= 0 {
		zoom = 1.0
	}

	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x-b.Min.X, y-b.Min.Y, img.At(x, y))
		}
	}

	order := map[int]int{}
	if opts.ShowOrder {
		order = doc.ReadingOrder(blocks, page)
	}

	for i, blk := range blocks {
		if blk.Page != page {
			continue
		}
		rect := blockRect(blk.Box, zoom, b.Dx(), b.Dy())

		switch opts.Mode {
		case ModeHeatmap:
			fill := TierColor(blk.Confidence)
			fill.A = heatmapAlpha
			fillRect(dst, rect, fill)
			drawRect(dst, rect, TierColor(blk.Confidence), 2)
		default:
			col := TierColor(blk.Confidence)
			width := 2
			if opts.SelectedID != "" && blk.ID == opts.SelectedID {
				col = colorSelected
				width = 3
			}
			drawRect(dst, rect, col, width)
		}

		if opts.ShowOrder {
			if n, ok := order[i]; ok {
				drawOrderBadge(dst, rect.Min.X+15, rect.Min.Y+15, n)
			}
		}
	}
	return dst
}

// blockRect converts a block box into a drawable pixel rectangle:
// zoom-scaled, normalized, inflated to a visible minimum and clamped
// to the image bounds.
func blockRect(box doc.Box, zoom float64, w, h int) image.Rectangle {
	scaled := doc.Box{
		X1: box.X1 * zoom, Y1: box.Y1 * zoom,
		X2: box.X2 * zoom, Y2: box.Y2 * zoom,
	}.Normalize()

	if scaled.Width() < 2 {
		scaled.X2 = scaled.X1 + 2
	}
	if scaled.Height() < 2 {
		scaled.Y2 = scaled.Y1 + 2
	}
	scaled = scaled.Clamp(float64(w), float64(h))

	rect := image.Rect(int(scaled.X1+0.5), int(scaled.Y1+0.5), int(scaled.X2+0.5), int(scaled.Y2+0.5))
	if rect.Dx() < 1 {
		rect.Max.X = rect.Min.X + 1
	}
	if rect.Dy() < 1 {
		rect.Max.Y = rect.Min.Y + 1
	}
	return rect
}

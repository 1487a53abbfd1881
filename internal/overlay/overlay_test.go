package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibuix-tech/dibuix/internal/doc"
)

func whitePage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

func TestTierColor(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		want       color.RGBA
	}{
		{name: "high", confidence: 0.95, want: colorHigh},
		{name: "boundary 0.9 is medium", confidence: 0.9, want: colorMedium},
		{name: "medium", confidence: 0.75, want: colorMedium},
		{name: "boundary 0.7 is low", confidence: 0.7, want: colorLow},
		{name: "low", confidence: 0.3, want: colorLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TierColor(tt.confidence))
		})
	}
}

func TestRender_NilImage(t *testing.T) {
	assert.Nil(t, Render(nil, nil, 1, Options{}))
}

func TestRender_OutlineDrawsTierColor(t *testing.T) {
	src := whitePage(200, 100)
	blocks := []doc.Block{
		{ID: "b1", Page: 1, Confidence: 0.95, Box: doc.Box{X1: 20, Y1: 20, X2: 80, Y2: 60}},
	}

	dst := Render(src, blocks, 1, Options{Mode: ModeOutline})
	require.NotNil(t, dst)

	// top-left corner of the outline carries the high-confidence color
	assert.Equal(t, colorHigh, dst.RGBAAt(20, 20))
	// interior stays untouched
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, dst.RGBAAt(50, 40))
	// source image is not modified
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, src.RGBAAt(20, 20))
}

func TestRender_SelectedBlockColor(t *testing.T) {
	src := whitePage(200, 100)
	blocks := []doc.Block{
		{ID: "b1", Page: 1, Confidence: 0.95, Box: doc.Box{X1: 20, Y1: 20, X2: 80, Y2: 60}},
	}

	dst := Render(src, blocks, 1, Options{Mode: ModeOutline, SelectedID: "b1"})
	assert.Equal(t, colorSelected, dst.RGBAAt(20, 20))
}

func TestRender_HeatmapFillsInterior(t *testing.T) {
	src := whitePage(200, 100)
	blocks := []doc.Block{
		{ID: "b1", Page: 1, Confidence: 0.95, Box: doc.Box{X1: 20, Y1: 20, X2: 80, Y2: 60}},
	}

	dst := Render(src, blocks, 1, Options{Mode: ModeHeatmap})

	// interior is tinted by the translucent fill
	inside := dst.RGBAAt(50, 40)
	assert.NotEqual(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, inside)
	// outside the block stays white
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, dst.RGBAAt(150, 80))
}

func TestRender_SkipsOtherPages(t *testing.T) {
	src := whitePage(200, 100)
	blocks := []doc.Block{
		{ID: "b1", Page: 2, Confidence: 0.95, Box: doc.Box{X1: 20, Y1: 20, X2: 80, Y2: 60}},
	}

	dst := Render(src, blocks, 1, Options{Mode: ModeOutline})
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, dst.RGBAAt(20, 20))
}

func TestRender_ZoomScalesCoordinates(t *testing.T) {
	src := whitePage(400, 200)
	blocks := []doc.Block{
		{ID: "b1", Page: 1, Confidence: 0.95, Box: doc.Box{X1: 20, Y1: 20, X2: 80, Y2: 60}},
	}

	dst := Render(src, blocks, 1, Options{Mode: ModeOutline, Zoom: 2})
	assert.Equal(t, colorHigh, dst.RGBAAt(40, 40))
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, dst.RGBAAt(20, 20))
}

func TestBlockRect(t *testing.T) {
	// degenerate box is inflated to a visible minimum
	r := blockRect(doc.Box{X1: 10, Y1: 10, X2: 10, Y2: 10}, 1, 100, 100)
	assert.GreaterOrEqual(t, r.Dx(), 2)
	assert.GreaterOrEqual(t, r.Dy(), 2)

	// out-of-bounds box is clamped to the image
	r = blockRect(doc.Box{X1: -50, Y1: -50, X2: 500, Y2: 500}, 1, 100, 80)
	assert.Equal(t, image.Rect(0, 0, 100, 80), r)
}

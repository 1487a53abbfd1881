package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// drawRect outlines a rectangle with the given edge thickness.
func drawRect(dst *image.RGBA, rect image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	for t := 0; t < thickness; t++ {
		yTop := rect.Min.Y + t
		yBot := rect.Max.Y - 1 - t
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dst.Set(x, yTop, col)
			dst.Set(x, yBot, col)
		}
	}
	for t := 0; t < thickness; t++ {
		xLeft := rect.Min.X + t
		xRight := rect.Max.X - 1 - t
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			dst.Set(xLeft, y, col)
			dst.Set(xRight, y, col)
		}
	}
}

// fillRect composites a translucent fill over the rectangle.
func fillRect(dst *image.RGBA, rect image.Rectangle, col color.RGBA) {
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	src := image.NewUniform(col)
	draw.Draw(dst, rect, src, image.Point{}, draw.Over)
}

// fillCircle paints a filled disc centered at (cx, cy).
func fillCircle(dst *image.RGBA, cx, cy, r int, col color.Color) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r && image.Pt(x, y).In(dst.Bounds()) {
				dst.Set(x, y, col)
			}
		}
	}
}

// drawCircle outlines a circle using the midpoint algorithm.
func drawCircle(dst *image.RGBA, cx, cy, r int, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	outer := r
	inner := r - thickness
	for y := cy - outer; y <= cy+outer; y++ {
		for x := cx - outer; x <= cx+outer; x++ {
			dx, dy := x-cx, y-cy
			d2 := dx*dx + dy*dy
			if d2 <= outer*outer && d2 > inner*inner && image.Pt(x, y).In(dst.Bounds()) {
				dst.Set(x, y, col)
			}
		}
	}
}

const badgeRadius = 12

// drawOrderBadge renders a numbered reading-order badge: white disc,
// blue ring, centered digits.
func drawOrderBadge(dst *image.RGBA, cx, cy, n int) {
	fillCircle(dst, cx, cy, badgeRadius, colorBadgeBg)
	drawCircle(dst, cx, cy, badgeRadius, colorHigh, 2)
	drawText(dst, cx, cy, strconv.Itoa(n), colorHigh)
}

// drawText renders a short label centered on (cx, cy) with the fixed
// 7x13 face; sufficient for badge digits, not general typesetting.
func drawText(dst *image.RGBA, cx, cy int, s string, col color.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, s).Ceil()
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(cx - width/2),
			Y: fixed.I(cy + face.Metrics().Ascent.Ceil()/2 - 1),
		},
	}
	d.DrawString(s)
}

package preview

import (
	"image"
	"image/draw"

	"github.com/golang/freetype"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// drawLine renders text at normal size, one cell high
func (r *Renderer) drawLine(text string) *image.RGBA {
	w := measureString(r.face, text)
	if w < 1 {
		w = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, cellH))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	c := freetype.NewContext()
	c.SetDPI(dpi)
	c.SetFont(r.font)
	c.SetFontSize(r.size)
	c.SetClip(img.Bounds())
	c.SetDst(img)
	c.SetSrc(image.Black)
	c.SetHinting(font.HintingFull)

	metrics := r.face.Metrics()
	baseline := (cellH-metrics.Height.Ceil())/2 + metrics.Ascent.Ceil()
	_, _ = c.DrawString(text, freetype.Pt(0, baseline))
	return img
}

// wrapText splits text into lines that fit within maxWidth, breaking
// anywhere as the printer does when a line overruns the paper.
func wrapText(text string, face font.Face, maxWidth int) []string {
	var lines []string
	var current string

	for _, ch := range text {
		if ch == '\n' {
			lines = append(lines, current)
			current = ""
			continue
		}
		next := current + string(ch)
		if measureString(face, next) > maxWidth && current != "" {
			lines = append(lines, current)
			current = string(ch)
		} else {
			current = next
		}
	}

	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// measureString returns the width of a string in pixels
func measureString(face font.Face, s string) int {
	var width fixed.Int26_6
	for _, r := range s {
		if adv, ok := face.GlyphAdvance(r); ok {
			width += adv
		}
	}
	return width.Ceil()
}

// scale magnifies src by whole factors, nearest neighbour like the print head
func scale(src image.Image, sx, sy int) image.Image {
	if sx == 1 && sy == 1 {
		return src
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*sx, b.Dy()*sy))
	for y := 0; y < dst.Bounds().Dy(); y++ {
		for x := 0; x < dst.Bounds().Dx(); x++ {
			dst.Set(x, y, src.At(b.Min.X+x/sx, b.Min.Y+y/sy))
		}
	}
	return dst
}

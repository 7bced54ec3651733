// Package preview renders receipt jobs the way a thermal printer lays them
// out: a monospace cell grid at 203 DPI, ESC ! magnification, the three
// line feed before the cut.
package preview

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"

	"receipt-print/internal/escpos"
)

// Printable widths in dots
const (
	Width58mm = 384
	Width80mm = 576
)

const (
	dpi   = 203
	cellH = 24 // font A line height in dots
	feed  = 3
	cutH  = 9
)

// Block is one print job: a header or a body
type Block struct {
	Lines       []string
	FontSize    int
	CenterAlign bool
	IsBody      bool
}

// Renderer draws blocks onto a paper strip of fixed width
type Renderer struct {
	width int
	font  *truetype.Font
	face  font.Face
	size  float64
}

// New returns a renderer for paper width dots wide
func New(width int) (*Renderer, error) {
	if width < 2*cellH {
		return nil, errors.New("paper width too small")
	}
	f, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return nil, err
	}
	// 12 dot advance: gomono advances 0.6 em
	size := 20.0 * 72 / dpi
	return &Renderer{
		width: width,
		font:  f,
		face:  truetype.NewFace(f, &truetype.Options{Size: size, DPI: dpi, Hinting: font.HintingFull}),
		size:  size,
	}, nil
}

// Width returns the paper width in dots
func (r *Renderer) Width() int {
	return r.width
}

type row struct {
	img    image.Image
	center bool
	height int
}

// Render lays out blocks top to bottom and returns a 1-bit looking strip.
// Empty lines are skipped as the printer session skips them.
func (r *Renderer) Render(blocks ...Block) *image.Gray {
	var rows []row
	for _, b := range blocks {
		sx, sy := escpos.Magnification(escpos.ModeForPointSize(b.FontSize))
		for _, line := range b.Lines {
			if line == "" {
				continue
			}
			for _, part := range wrapText(line, r.face, r.width/sx) {
				img := scale(r.drawLine(part), sx, sy)
				rows = append(rows, row{img: img, center: b.CenterAlign, height: img.Bounds().Dy()})
			}
		}
		if b.IsBody {
			rows = append(rows, row{height: feed * cellH}, row{img: cutMark(r.width), height: cutH})
		}
	}

	total := 0
	for _, rw := range rows {
		total += rw.height
	}
	if total == 0 {
		total = 1
	}

	canvas := image.NewRGBA(image.Rect(0, 0, r.width, total))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	y := 0
	for _, rw := range rows {
		if rw.img != nil {
			w := rw.img.Bounds().Dx()
			x := 0
			if rw.center && w < r.width {
				x = (r.width - w) / 2
			}
			dst := image.Rect(x, y, x+w, y+rw.height)
			draw.Draw(canvas, dst, rw.img, rw.img.Bounds().Min, draw.Src)
		}
		y += rw.height
	}
	return threshold(canvas, 128)
}

// WritePNG renders blocks and encodes the strip as PNG
func (r *Renderer) WritePNG(w io.Writer, blocks ...Block) error {
	return png.Encode(w, r.Render(blocks...))
}

// cutMark is a dashed line where the cutter will fire
func cutMark(width int) image.Image {
	img := image.NewGray(image.Rect(0, 0, width, cutH))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	for x := 0; x < width; x++ {
		if (x/8)%2 == 0 {
			img.SetGray(x, cutH/2, color.Gray{0})
		}
	}
	return img
}

// Package renderer рисует символьные кадры картинкой или текстом для терминала.
package renderer

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/media2ascii/internal/domain"
)

// MaxPixels - наибольший холст, который принимают энкодеры (4096x2304).
const MaxPixels = 9437184

var (
	Dark  = color.RGBA{R: 40, G: 42, B: 54, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Black = color.RGBA{A: 255}
)

// Rasterizer рисует символьные кадры фиксированной сетки на RGBA-холсте
// шрифтом Go Mono. Не потокобезопасен.
type Rasterizer struct {
	Cols, Rows int
	Width      int
	Height     int
	CellWidth  int
	CellHeight int
	Background color.RGBA
	Foreground color.RGBA

	face   font.Face
	ascent int
	tiles  [256]*image.RGBA
}

// NewRasterizer готовит Rasterizer для сетки cols x rows при размере шрифта
// fontSize пикселей. Размеры холста округляются вверх до чётных ради yuv420p.
func NewRasterizer(cols, rows int, fontSize float64, invert bool) (*Rasterizer, error) {
	if cols <= 0 || rows <= 0 || fontSize <= 0 {
		return nil, domain.NewError(domain.KindEncodeFailed, "invalid canvas %dx%d at font size %g", cols, rows, fontSize)
	}

	f, err := opentype.Parse(gomono.TTF)
	if err != nil {
		return nil, domain.WrapError(domain.KindEncodeFailed, err, "cannot load font")
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, domain.WrapError(domain.KindEncodeFailed, err, "cannot load font face")
	}

	adv, ok := face.GlyphAdvance('M')
	if !ok {
		face.Close()
		return nil, domain.NewError(domain.KindEncodeFailed, "font has no glyph for M")
	}

	// Хинтинг округляет субпиксельную ширину до нуля.
	r := &Rasterizer{
		Cols:       cols,
		Rows:       rows,
		CellWidth:  max(adv.Ceil(), 1),
		CellHeight: int(math.Ceil(fontSize)),
		Background: Dark,
		Foreground: White,
		face:       face,
		ascent:     face.Metrics().Ascent.Ceil(),
	}
	if invert {
		r.Background, r.Foreground = White, Black
	}
	r.Width = even(cols * r.CellWidth)
	r.Height = even(rows * r.CellHeight)

	if r.Width*r.Height > MaxPixels {
		face.Close()
		return nil, domain.NewError(domain.KindEncodeFailed,
			"resolution too large for codec (%dx%d); increase scale_down", r.Width, r.Height)
	}
	return r, nil
}

func even(n int) int {
	return n + n%2
}

// Bounds - прямоугольник холста.
func (r *Rasterizer) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.Width, r.Height)
}

// NewCanvas выделяет холст нужного размера.
func (r *Rasterizer) NewCanvas() *image.RGBA {
	return image.NewRGBA(r.Bounds())
}

// Draw рисует g на dst, размеры dst должны совпадать с Bounds.
func (r *Rasterizer) Draw(g *domain.GlyphFrame, dst *image.RGBA) error {
	if g.Cols != r.Cols || g.Rows != r.Rows {
		return domain.NewError(domain.KindEncodeFailed,
			"glyph frame %d is %dx%d, canvas expects %dx%d", g.Index, g.Cols, g.Rows, r.Cols, r.Rows)
	}
	if dst.Rect != r.Bounds() {
		return domain.NewError(domain.KindEncodeFailed, "canvas is %v, want %v", dst.Rect, r.Bounds())
	}

	// Столбец/строка, добавленные округлением до чётного, остаются фоном.
	draw.Draw(dst, dst.Rect, image.NewUniform(r.Background), image.Point{}, draw.Src)

	rowBytes := r.CellWidth * 4
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			tile := r.tile(g.Cells[row*g.Cols+col])
			x0, y0 := col*r.CellWidth, row*r.CellHeight
			for ty := 0; ty < r.CellHeight; ty++ {
				d := dst.PixOffset(x0, y0+ty)
				s := ty * tile.Stride
				copy(dst.Pix[d:d+rowBytes], tile.Pix[s:s+rowBytes])
			}
		}
	}
	return nil
}

// tile возвращает заранее отрисованную ячейку для c, рисуя её при первом обращении.
func (r *Rasterizer) tile(c byte) *image.RGBA {
	if t := r.tiles[c]; t != nil {
		return t
	}
	t := image.NewRGBA(image.Rect(0, 0, r.CellWidth, r.CellHeight))
	draw.Draw(t, t.Rect, image.NewUniform(r.Background), image.Point{}, draw.Src)
	if c != ' ' {
		d := font.Drawer{
			Dst:  t,
			Src:  image.NewUniform(r.Foreground),
			Face: r.face,
			Dot:  fixed.P(0, r.ascent),
		}
		d.DrawString(string(rune(c)))
	}
	r.tiles[c] = t
	return t
}

// Close освобождает шрифт.
func (r *Rasterizer) Close() error {
	return r.face.Close()
}

// Package sampler сводит кадры к сеткам средней яркости.
package sampler

import (
	"image"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/media2ascii/internal/domain"
)

// Веса яркости Rec.601.
const (
	WeightR = 0.299
	WeightG = 0.587
	WeightB = 0.114
)

// MaxLuminance - максимальное значение ячейки.
const MaxLuminance = 255.0

// Sampler переводит кадры фиксированного размера в фиксированную сетку.
type Sampler struct {
	ScaleDown         float64
	FontSize          float64
	HeightSampleScale float64

	// Workers ограничивает параллелизм по строкам; <= 0 - GOMAXPROCS.
	Workers int
}

// New создаёт Sampler для заданных параметров конвертации.
func New(scaleDown, fontSize, heightSampleScale float64) *Sampler {
	return &Sampler{
		ScaleDown:         scaleDown,
		FontSize:          fontSize,
		HeightSampleScale: heightSampleScale,
	}
}

// CellSize возвращает размер ячейки в пикселях. Ячейка не бывает меньше
// пикселя ни по одной оси, так что сетка не плотнее одной выборки на пиксель.
func (s *Sampler) CellSize() (w, h float64) {
	w = s.FontSize * s.ScaleDown
	h = w * s.HeightSampleScale
	return math.Max(w, 1), math.Max(h, 1)
}

// Dimensions возвращает размер сетки для кадра width x height.
func (s *Sampler) Dimensions(width, height int) (cols, rows int, err error) {
	cw, ch := s.CellSize()
	cols = int(math.Floor(float64(width) / cw))
	rows = int(math.Floor(float64(height) / ch))
	if cols <= 0 || rows <= 0 {
		return 0, 0, domain.NewError(domain.KindConfigTooAggressive,
			"scale_down %.3g with font_size %.3g leaves no samples for a %dx%d frame (grid %dx%d)",
			s.ScaleDown, s.FontSize, width, height, cols, rows)
	}
	return cols, rows, nil
}

// Sample считает сетку яркости кадра. Ячейка - среднее арифметическое яркости
// покрытых ею пикселей. Строки суммируются независимо и в фиксированном
// порядке, поэтому результат не зависит от планировщика.
func (s *Sampler) Sample(frame *domain.Frame) (*domain.SampleGrid, error) {
	img := frame.Image
	b := img.Bounds()
	cols, rows, err := s.Dimensions(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}

	cw, ch := s.CellSize()
	xs := edges(cols, cw, b.Dx())
	ys := edges(rows, ch, b.Dy())

	grid := &domain.SampleGrid{
		Index:  frame.Index,
		Cols:   cols,
		Rows:   rows,
		Values: make([]float64, cols*rows),
	}

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for r := 0; r < rows; r++ {
		r := r
		g.Go(func() error {
			sampleRow(img, xs, ys[r], ys[r+1], grid.Values[r*cols:(r+1)*cols])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return grid, nil
}

// edges возвращает n+1 границу в пределах [0, limit]; ячейка i занимает
// [e[i], e[i+1]). При size >= 1 и n <= limit/size пустых ячеек нет.
func edges(n int, size float64, limit int) []int {
	e := make([]int, n+1)
	for i := 0; i <= n; i++ {
		e[i] = int(math.Floor(float64(i) * size))
		if e[i] > limit {
			e[i] = limit
		}
	}
	return e
}

func sampleRow(img *image.RGBA, xs []int, y0, y1 int, out []float64) {
	b := img.Bounds()
	for c := range out {
		x0, x1 := xs[c], xs[c+1]
		var sum float64
		for y := y0; y < y1; y++ {
			off := img.PixOffset(b.Min.X+x0, b.Min.Y+y)
			row := img.Pix[off : off+(x1-x0)*4]
			for i := 0; i < len(row); i += 4 {
				sum += Luminance(row[i], row[i+1], row[i+2])
			}
		}
		if n := (x1 - x0) * (y1 - y0); n > 0 {
			out[c] = sum / float64(n)
		}
	}
}

// Luminance возвращает воспринимаемую яркость RGB в [0,255].
func Luminance(r, g, b uint8) float64 {
	return WeightR*float64(r) + WeightG*float64(g) + WeightB*float64(b)
}

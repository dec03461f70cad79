package domain

import (
	"image"
	"strings"
	"time"
)

// JobState - этап жизненного цикла задачи.
type JobState string

const (
	StateIdle       JobState = "idle"
	StateValidating JobState = "validating"
	StateRunning    JobState = "running"
	StateCompleted  JobState = "completed"
	StateCancelled  JobState = "cancelled"
	StateFailed     JobState = "failed"
)

// Terminal сообщает, что из s переходов больше нет.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Frame - один декодированный кадр в порядке показа источника.
//
// В каждый момент кадром владеет ровно одна стадия пайплайна. Последняя стадия
// вызывает Release, чтобы буфер пикселей вернулся в пул.
type Frame struct {
	Index   int
	PTS     time.Duration
	Image   *image.RGBA
	release func(*image.RGBA)
}

// NewFrame оборачивает img. release может быть nil.
func NewFrame(index int, pts time.Duration, img *image.RGBA, release func(*image.RGBA)) *Frame {
	return &Frame{Index: index, PTS: pts, Image: img, release: release}
}

// Release возвращает буфер пикселей в пул. После этого кадр использовать нельзя.
func (f *Frame) Release() {
	if f == nil || f.Image == nil {
		return
	}
	if f.release != nil {
		f.release(f.Image)
	}
	f.Image = nil
}

// SampleGrid хранит яркость ячеек в [0,255] построчно.
type SampleGrid struct {
	Index  int
	Cols   int
	Rows   int
	Values []float64
}

// At возвращает яркость ячейки (col,row).
func (g *SampleGrid) At(col, row int) float64 {
	return g.Values[row*g.Cols+col]
}

// GlyphFrame - символьное представление одной SampleGrid, построчно.
type GlyphFrame struct {
	Index int
	Cols  int
	Rows  int
	Cells []byte
}

// Row возвращает строку r.
func (g *GlyphFrame) Row(r int) string {
	return string(g.Cells[r*g.Cols : (r+1)*g.Cols])
}

// String склеивает строки через перевод строки.
func (g *GlyphFrame) String() string {
	var b strings.Builder
	b.Grow((g.Cols + 1) * g.Rows)
	for r := 0; r < g.Rows; r++ {
		b.Write(g.Cells[r*g.Cols : (r+1)*g.Cols])
		b.WriteByte('\n')
	}
	return b.String()
}

// Equal сравнивает размеры и ячейки g и o.
func (g *GlyphFrame) Equal(o *GlyphFrame) bool {
	if g.Cols != o.Cols || g.Rows != o.Rows || len(g.Cells) != len(o.Cells) {
		return false
	}
	for i := range g.Cells {
		if g.Cells[i] != o.Cells[i] {
			return false
		}
	}
	return true
}

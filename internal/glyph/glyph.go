// Package glyph переводит сетки яркости в символы палитры.
package glyph

import (
	"math"

	"github.com/ivlev/media2ascii/internal/domain"
	"github.com/ivlev/media2ascii/internal/sampler"
)

// DefaultRamp идёт от визуально пустых символов к плотным.
const DefaultRamp = " .^:~?7YJ5PG#&B@"

// Mapper переводит яркость в символы. Invert меняет только то, к какому концу
// палитры попадают яркие ячейки, сама палитра не переставляется.
type Mapper struct {
	Ramp   string
	Invert bool
}

// NewMapper возвращает Mapper с палитрой DefaultRamp.
func NewMapper(invert bool) *Mapper {
	return &Mapper{Ramp: DefaultRamp, Invert: invert}
}

func (m *Mapper) ramp() string {
	if m.Ramp == "" {
		return DefaultRamp
	}
	return m.Ramp
}

// Bucket возвращает индекс в палитре для яркости v из [0, MaxLuminance].
func (m *Mapper) Bucket(v float64) int {
	ramp := m.ramp()
	n := v / sampler.MaxLuminance
	if math.IsNaN(n) || n < 0 {
		n = 0
	} else if n > 1 {
		n = 1
	}
	idx := int(math.Floor(n * float64(len(ramp))))
	if idx >= len(ramp) {
		idx = len(ramp) - 1
	}
	if m.Invert {
		idx = len(ramp) - 1 - idx
	}
	return idx
}

// Map превращает сетку в символы.
func (m *Mapper) Map(grid *domain.SampleGrid) *domain.GlyphFrame {
	ramp := m.ramp()
	out := &domain.GlyphFrame{
		Index: grid.Index,
		Cols:  grid.Cols,
		Rows:  grid.Rows,
		Cells: make([]byte, len(grid.Values)),
	}
	for i, v := range grid.Values {
		out.Cells[i] = ramp[m.Bucket(v)]
	}
	return out
}

// Luminance возвращает сетку, в которой каждая ячейка стоит в центре интервала
// своего символа, так что Map(Luminance(g)) даёт g. Символы не из палитры
// дают ноль.
func (m *Mapper) Luminance(g *domain.GlyphFrame) *domain.SampleGrid {
	ramp := m.ramp()
	var pos [256]int
	for i := range pos {
		pos[i] = -1
	}
	for i := 0; i < len(ramp); i++ {
		pos[ramp[i]] = i
	}

	n := float64(len(ramp))
	grid := &domain.SampleGrid{
		Index:  g.Index,
		Cols:   g.Cols,
		Rows:   g.Rows,
		Values: make([]float64, len(g.Cells)),
	}
	for i, c := range g.Cells {
		idx := pos[c]
		if idx < 0 {
			continue
		}
		if m.Invert {
			idx = len(ramp) - 1 - idx
		}
		grid.Values[i] = (float64(idx) + 0.5) / n * sampler.MaxLuminance
	}
	return grid
}

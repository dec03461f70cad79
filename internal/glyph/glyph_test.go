package glyph

import (
	"math/rand"
	"testing"

	"github.com/ivlev/media2ascii/internal/domain"
)

func randomGrid(r *rand.Rand, cols, rows int) *domain.SampleGrid {
	g := &domain.SampleGrid{Cols: cols, Rows: rows, Values: make([]float64, cols*rows)}
	for i := range g.Values {
		g.Values[i] = r.Float64() * 255
	}
	return g
}

func TestBucketEnds(t *testing.T) {
	tests := []struct {
		invert bool
		lum    float64
		want   byte
	}{
		{false, 0, ' '},
		{false, 255, '@'},
		{true, 0, '@'},
		{true, 255, ' '},
		{false, -10, ' '},
		{false, 400, '@'},
	}

	for _, tt := range tests {
		m := NewMapper(tt.invert)
		if got := DefaultRamp[m.Bucket(tt.lum)]; got != tt.want {
			t.Errorf("invert=%v lum=%v: got %q, want %q", tt.invert, tt.lum, got, tt.want)
		}
	}
}

func TestBucketMonotonic(t *testing.T) {
	m := NewMapper(false)
	inv := NewMapper(true)
	prev, prevInv := -1, len(DefaultRamp)
	for v := 0.0; v <= 255; v += 0.25 {
		b := m.Bucket(v)
		if b < prev {
			t.Fatalf("bucket decreased at %v: %d < %d", v, b, prev)
		}
		bi := inv.Bucket(v)
		if bi > prevInv {
			t.Fatalf("inverted bucket increased at %v: %d > %d", v, bi, prevInv)
		}
		prev, prevInv = b, bi
	}
	if prev != len(DefaultRamp)-1 || prevInv != 0 {
		t.Fatalf("ramp not fully covered: last=%d lastInv=%d", prev, prevInv)
	}
}

func TestInvertDoesNotReorderRamp(t *testing.T) {
	m := NewMapper(true)
	m.Map(&domain.SampleGrid{Cols: 1, Rows: 1, Values: []float64{10}})
	if m.Ramp != DefaultRamp {
		t.Fatalf("ramp changed to %q", m.Ramp)
	}
}

func TestMapDeterministicAndSized(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for _, invert := range []bool{false, true} {
		m := NewMapper(invert)
		grid := randomGrid(r, 37, 11)
		a := m.Map(grid)
		b := m.Map(grid)
		if a.Cols != grid.Cols || a.Rows != grid.Rows || len(a.Cells) != len(grid.Values) {
			t.Fatalf("glyph frame %dx%d does not match grid %dx%d", a.Cols, a.Rows, grid.Cols, grid.Rows)
		}
		if !a.Equal(b) {
			t.Fatal("Map is not deterministic")
		}
	}
}

func TestMapLuminanceRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	for _, invert := range []bool{false, true} {
		m := NewMapper(invert)
		for i := 0; i < 50; i++ {
			first := m.Map(randomGrid(r, 1+r.Intn(80), 1+r.Intn(40)))
			again := m.Map(m.Luminance(first))
			if !first.Equal(again) {
				t.Fatalf("invert=%v: round trip changed frame\n%s\nvs\n%s", invert, first, again)
			}
		}
	}
}

package renderer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ivlev/media2ascii/internal/domain"
)

func glyphs(cols, rows int, fill byte) *domain.GlyphFrame {
	return &domain.GlyphFrame{Cols: cols, Rows: rows, Cells: bytes.Repeat([]byte{fill}, cols*rows)}
}

func TestRasterizerCanvasIsEven(t *testing.T) {
	for _, size := range []struct{ cols, rows int }{{1, 1}, {3, 5}, {160, 43}} {
		r, err := NewRasterizer(size.cols, size.rows, 13, false)
		if err != nil {
			t.Fatalf("NewRasterizer(%d,%d) = %v", size.cols, size.rows, err)
		}
		if r.Width%2 != 0 || r.Height%2 != 0 {
			t.Errorf("%dx%d grid gives odd canvas %dx%d", size.cols, size.rows, r.Width, r.Height)
		}
		if r.Width < size.cols*r.CellWidth || r.Width > size.cols*r.CellWidth+1 {
			t.Errorf("width %d for %d cells of %d", r.Width, size.cols, r.CellWidth)
		}
		if r.CellHeight != 13 {
			t.Errorf("cell height = %d, want 13", r.CellHeight)
		}
		r.Close()
	}
}

func TestRasterizerRejectsHugeCanvas(t *testing.T) {
	_, err := NewRasterizer(2000, 1000, 12, false)
	if domain.KindOf(err) != domain.KindEncodeFailed {
		t.Fatalf("kind = %q (%v), want EncodeFailed", domain.KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "increase scale_down") {
		t.Fatalf("message %q does not suggest a fix", err)
	}
}

func TestRasterizerDraw(t *testing.T) {
	r, err := NewRasterizer(4, 2, 12, false)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	canvas := r.NewCanvas()

	if err := r.Draw(glyphs(4, 2, ' '), canvas); err != nil {
		t.Fatalf("Draw() = %v", err)
	}
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			if canvas.RGBAAt(x, y) != Dark {
				t.Fatalf("blank frame has %v at (%d,%d)", canvas.RGBAAt(x, y), x, y)
			}
		}
	}

	g := glyphs(4, 2, ' ')
	g.Cells[5] = '@' // col 1, row 1
	if err := r.Draw(g, canvas); err != nil {
		t.Fatalf("Draw() = %v", err)
	}
	var lit, outside int
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			if canvas.RGBAAt(x, y) == Dark {
				continue
			}
			inCell := x >= r.CellWidth && x < 2*r.CellWidth && y >= r.CellHeight && y < 2*r.CellHeight
			if inCell {
				lit++
			} else {
				outside++
			}
		}
	}
	if lit == 0 {
		t.Fatal("glyph @ left its cell empty")
	}
	if outside != 0 {
		t.Fatalf("%d pixels drawn outside the glyph cell", outside)
	}
}

func TestRasterizerInvertColors(t *testing.T) {
	r, err := NewRasterizer(2, 2, 12, true)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.Background != White || r.Foreground != Black {
		t.Fatalf("inverted colors = %v on %v", r.Foreground, r.Background)
	}
	canvas := r.NewCanvas()
	r.Draw(glyphs(2, 2, ' '), canvas)
	if canvas.RGBAAt(0, 0) != White {
		t.Fatalf("background = %v, want white", canvas.RGBAAt(0, 0))
	}
}

func TestRasterizerRejectsMismatchedFrame(t *testing.T) {
	r, err := NewRasterizer(4, 2, 12, false)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if err := r.Draw(glyphs(3, 2, '@'), r.NewCanvas()); domain.KindOf(err) != domain.KindEncodeFailed {
		t.Fatalf("Draw() = %v, want EncodeFailed", err)
	}
}

func TestTextWriter(t *testing.T) {
	g := &domain.GlyphFrame{Cols: 3, Rows: 2, Cells: []byte("@#. :~")}

	var plain bytes.Buffer
	if err := NewTextWriter(&plain, false).WriteFrame(g); err != nil {
		t.Fatal(err)
	}
	if plain.String() != "@#.\n :~\n" {
		t.Fatalf("plain = %q", plain.String())
	}

	var term bytes.Buffer
	w := NewTextWriter(&term, true)
	w.WriteFrame(g)
	w.WriteFrame(g)
	want := ClearScreen + "@#.\n :~\n"
	if term.String() != want+want {
		t.Fatalf("terminal = %q", term.String())
	}
}

func TestSaveText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "frame.txt")
	g := &domain.GlyphFrame{Cols: 2, Rows: 1, Cells: []byte("@@")}
	if err := SaveText(path, g); err != nil {
		t.Fatalf("SaveText() = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "@@\n" {
		t.Fatalf("file = %q", data)
	}
}

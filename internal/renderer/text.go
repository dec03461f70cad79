package renderer

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ivlev/media2ascii/internal/domain"
)

// ClearScreen сбрасывает терминал и ставит курсор в начало.
const ClearScreen = "\x1bc"

// TextWriter печатает символьные кадры обычным текстом.
type TextWriter struct {
	w     io.Writer
	clear bool
	buf   []byte
}

// NewTextWriter пишет кадры в w. С clear каждый кадр начинается с ClearScreen,
// и в терминале кадры сменяют друг друга.
func NewTextWriter(w io.Writer, clear bool) *TextWriter {
	return &TextWriter{w: w, clear: clear}
}

func (t *TextWriter) WriteFrame(g *domain.GlyphFrame) error {
	t.buf = t.buf[:0]
	if t.clear {
		t.buf = append(t.buf, ClearScreen...)
	}
	for row := 0; row < g.Rows; row++ {
		t.buf = append(t.buf, g.Cells[row*g.Cols:(row+1)*g.Cols]...)
		t.buf = append(t.buf, '\n')
	}
	_, err := t.w.Write(t.buf)
	return errors.WithStack(err)
}

// SaveText сохраняет g в path текстом, создавая недостающие папки.
func SaveText(path string, g *domain.GlyphFrame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(path, []byte(g.String()), 0o644))
}

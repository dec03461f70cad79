package source

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/ivlev/media2ascii/internal/domain"
	"github.com/ivlev/media2ascii/internal/system"
)

// DocumentSource рендерит страницы PDF через MuPDF, по кадру на страницу.
// Страницы масштабируются под размер первой.
type DocumentSource struct {
	doc   *fitz.Document
	dpi   float64
	meta  Metadata
	pool  *system.ImagePool
	first image.Image
	next  int
}

func NewDocumentSource(path string, dpi int, fps float64, pool *system.ImagePool) (*DocumentSource, error) {
	if dpi <= 0 {
		dpi = 96
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, domain.WrapError(domain.KindSourceUnreadable, err, "cannot open document %s", path)
	}
	pages := doc.NumPage()
	if pages == 0 {
		doc.Close()
		return nil, domain.NewError(domain.KindSourceUnreadable, "document %s has no pages", path)
	}

	first, err := doc.ImageDPI(0, float64(dpi))
	if err != nil {
		doc.Close()
		return nil, domain.WrapError(domain.KindSourceUnreadable, err, "cannot render page 1 of %s", path)
	}
	b := first.Bounds()

	return &DocumentSource{
		doc:   doc,
		dpi:   float64(dpi),
		pool:  pool,
		first: first,
		meta: Metadata{
			Width:      b.Dx(),
			Height:     b.Dy(),
			FPS:        fps,
			FrameCount: pages,
			Duration:   time.Duration(pages) * frameDuration(fps),
			Codec:      "pdf",
		},
	}, nil
}

func (s *DocumentSource) Metadata() Metadata { return s.meta }

func (s *DocumentSource) Next(ctx context.Context) (*domain.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= s.meta.FrameCount {
		return nil, io.EOF
	}

	idx := s.next
	var page image.Image
	if idx == 0 {
		page, s.first = s.first, nil
	} else {
		var err error
		page, err = s.doc.ImageDPI(idx, s.dpi)
		if err != nil {
			return nil, domain.WrapError(domain.KindCorruptStream, err, "cannot render page %d", idx+1)
		}
	}
	s.next++

	rgba := toRGBA(page, s.meta.Width, s.meta.Height, s.pool)
	pts := time.Duration(idx) * frameDuration(s.meta.FPS)
	return domain.NewFrame(idx, pts, rgba, s.pool.Put), nil
}

func (s *DocumentSource) Close() error {
	return s.doc.Close()
}

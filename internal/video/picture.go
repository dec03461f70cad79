package video

import (
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/ivlev/media2ascii/internal/domain"
	"github.com/ivlev/media2ascii/internal/renderer"
)

// DefaultJPEGQuality используется, если качество не задано.
const DefaultJPEGQuality = 90

// PictureSink сохраняет один символьный кадр картинкой. Как и FileSink,
// пишет рядом с целевым файлом и переименовывает его в Commit.
type PictureSink struct {
	opts   Options
	tmp    string
	raster *renderer.Rasterizer
	canvas *image.RGBA
	frames int
	closed bool
}

func NewPictureSink(opts Options) *PictureSink {
	return &PictureSink{opts: opts}
}

// Open готовит холст для сетки cols x rows. fps не используется.
func (s *PictureSink) Open(cols, rows int, fps float64) error {
	if err := CheckDestination(s.opts.Path, s.opts.Overwrite); err != nil {
		return err
	}
	raster, err := renderer.NewRasterizer(cols, rows, s.opts.FontSize, s.opts.Invert)
	if err != nil {
		return err
	}
	s.raster = raster
	s.canvas = raster.NewCanvas()

	tmp, err := tempBeside(s.opts.Path)
	if err != nil {
		s.cleanup()
		return err
	}
	s.tmp = tmp
	return nil
}

// Write рисует g. В картинке один кадр, второй - ошибка.
func (s *PictureSink) Write(g *domain.GlyphFrame) error {
	if s.raster == nil || s.closed {
		return domain.NewError(domain.KindEncodeFailed, "sink is not open")
	}
	if s.frames > 0 {
		return domain.NewError(domain.KindEncodeFailed,
			"%s holds a single picture, got frame %d", filepath.Base(s.opts.Path), g.Index)
	}
	if err := s.raster.Draw(g, s.canvas); err != nil {
		return err
	}
	s.frames++
	return nil
}

func (s *PictureSink) Frames() int {
	return s.frames
}

// Commit кодирует картинку и переносит её на место.
func (s *PictureSink) Commit() error {
	if s.raster == nil || s.closed {
		return domain.NewError(domain.KindEncodeFailed, "sink is not open")
	}
	s.closed = true
	defer s.cleanup()

	if s.frames == 0 {
		return domain.NewError(domain.KindEncodeFailed, "no frame to write to %s", s.opts.Path)
	}

	f, err := os.OpenFile(s.tmp, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return domain.WrapError(domain.KindEncodeFailed, err, "open %s", s.tmp)
	}
	err = encodePicture(f, filepath.Ext(s.opts.Path), s.canvas, s.opts.Quality)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return domain.WrapError(domain.KindEncodeFailed, err, "encode %s", s.opts.Path)
	}

	if err := CheckDestination(s.opts.Path, s.opts.Overwrite); err != nil {
		return err
	}
	if err := os.Rename(s.tmp, s.opts.Path); err != nil {
		return domain.WrapError(domain.KindEncodeFailed, err, "move output into place")
	}
	s.tmp = ""
	return nil
}

// Abort удаляет временный файл. Можно вызывать после Commit.
func (s *PictureSink) Abort() error {
	s.closed = true
	return s.cleanup()
}

func (s *PictureSink) cleanup() error {
	if s.raster != nil {
		s.raster.Close()
		s.raster = nil
	}
	err := removeTemp(s.tmp)
	s.tmp = ""
	return err
}

func encodePicture(w io.Writer, ext string, img image.Image, quality int) error {
	switch strings.ToLower(ext) {
	case ".png":
		return errors.WithStack(png.Encode(w, img))
	case ".jpg", ".jpeg":
		if quality <= 0 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		return errors.WithStack(jpeg.Encode(w, img, &jpeg.Options{Quality: quality}))
	case ".bmp":
		return errors.WithStack(bmp.Encode(w, img))
	case ".tif", ".tiff":
		return errors.WithStack(tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate}))
	}
	return errors.Errorf("no picture encoder for %q", ext)
}

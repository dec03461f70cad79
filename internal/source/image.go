package source

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ivlev/media2ascii/internal/domain"
	"github.com/ivlev/media2ascii/internal/system"
)

// ImageSource отдаёт одну картинку или папку картинок, по кадру на файл
// в лексическом порядке. Все кадры имеют размер первой картинки.
type ImageSource struct {
	paths []string
	meta  Metadata
	pool  *system.ImagePool
	next  int
}

func NewImageSource(path string, fps float64, pool *system.ImagePool) (*ImageSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, domain.WrapError(domain.KindSourceUnreadable, err, "cannot open %s", path)
	}

	var paths []string
	if fi.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, domain.WrapError(domain.KindSourceUnreadable, err, "cannot list %s", path)
		}
		for _, entry := range entries {
			if !entry.IsDir() && isImage(strings.ToLower(filepath.Ext(entry.Name()))) {
				paths = append(paths, filepath.Join(path, entry.Name()))
			}
		}
		sort.Strings(paths)
	} else {
		paths = []string{path}
	}
	if len(paths) == 0 {
		return nil, domain.NewError(domain.KindSourceUnreadable, "no images found in %s", path)
	}

	cfg, format, err := decodeConfig(paths[0])
	if err != nil {
		return nil, domain.WrapError(domain.KindSourceUnreadable, err, "cannot decode %s", paths[0])
	}

	return &ImageSource{
		paths: paths,
		pool:  pool,
		meta: Metadata{
			Width:      cfg.Width,
			Height:     cfg.Height,
			FPS:        fps,
			FrameCount: len(paths),
			Duration:   time.Duration(len(paths)) * frameDuration(fps),
			Codec:      format,
		},
	}, nil
}

func (s *ImageSource) Metadata() Metadata { return s.meta }

func (s *ImageSource) Next(ctx context.Context) (*domain.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.paths) {
		return nil, io.EOF
	}

	idx := s.next
	img, err := decodeImage(s.paths[idx])
	if err != nil {
		if idx == 0 {
			return nil, domain.WrapError(domain.KindSourceUnreadable, err, "cannot decode %s", s.paths[idx])
		}
		return nil, domain.WrapError(domain.KindCorruptStream, err, "cannot decode %s", s.paths[idx])
	}
	s.next++

	rgba := toRGBA(img, s.meta.Width, s.meta.Height, s.pool)
	pts := time.Duration(idx) * frameDuration(s.meta.FPS)
	return domain.NewFrame(idx, pts, rgba, s.pool.Put), nil
}

func (s *ImageSource) Close() error {
	return nil
}

func decodeConfig(path string) (image.Config, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer f.Close()
	return image.DecodeConfig(f)
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

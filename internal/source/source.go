// Package source превращает медиафайлы в упорядоченные потоки RGBA-кадров.
package source

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/ivlev/media2ascii/internal/config"
	"github.com/ivlev/media2ascii/internal/domain"
	"github.com/ivlev/media2ascii/internal/system"
)

// Source отдаёт кадры в порядке показа.
type Source interface {
	// Metadata описывает поток на выходе источника, уже после поворота.
	Metadata() Metadata
	// Next возвращает следующий кадр или io.EOF, когда поток закончился.
	Next(ctx context.Context) (*domain.Frame, error)
	Close() error
}

type Metadata struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int // оценка; 0, если неизвестно
	Duration   time.Duration
	Codec      string
}

type Options struct {
	Path        string
	Rotate      int
	StillFPS    float64
	DocumentDPI int
	FFmpegPath  string
	Pool        *system.ImagePool
}

// ImageExtensions декодируются внутри процесса, без ffmpeg.
var ImageExtensions = config.StillExtensions

// Open выбирает реализацию источника для opts.Path.
func Open(ctx context.Context, opts Options) (Source, error) {
	if opts.Pool == nil {
		opts.Pool = system.NewImagePool()
	}
	if opts.StillFPS <= 0 {
		opts.StillFPS = 1
	}

	fi, err := os.Stat(opts.Path)
	if err != nil {
		return nil, domain.WrapError(domain.KindSourceUnreadable, err, "cannot open %s", opts.Path)
	}

	var src Source
	ext := strings.ToLower(filepath.Ext(opts.Path))
	switch {
	case fi.IsDir() || isImage(ext):
		src, err = NewImageSource(opts.Path, opts.StillFPS, opts.Pool)
	case ext == ".pdf":
		src, err = NewDocumentSource(opts.Path, opts.DocumentDPI, opts.StillFPS, opts.Pool)
	default:
		src, err = NewVideoSource(ctx, opts.Path, opts.FFmpegPath, opts.Pool)
	}
	if err != nil {
		return nil, err
	}
	if opts.Rotate != 0 {
		return Rotate(src, opts.Rotate, opts.Pool), nil
	}
	return src, nil
}

func isImage(ext string) bool {
	for _, e := range ImageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// toRGBA копирует img в буфер w x h из пула, масштабируя картинку,
// если размер не совпадает.
func toRGBA(img image.Image, w, h int, pool *system.ImagePool) *image.RGBA {
	dst := pool.Get(image.Rect(0, 0, w, h))
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	} else {
		draw.BiLinear.Scale(dst, dst.Rect, img, b, draw.Src, nil)
	}
	return dst
}

func frameDuration(fps float64) time.Duration {
	return time.Duration(float64(time.Second) / fps)
}

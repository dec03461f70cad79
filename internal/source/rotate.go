package source

import (
	"context"
	"image"

	"github.com/ivlev/media2ascii/internal/domain"
	"github.com/ivlev/media2ascii/internal/system"
)

type rotated struct {
	src     Source
	degrees int
	pool    *system.ImagePool
}

// Rotate поворачивает каждый кадр src по часовой стрелке на degrees (90, 180, 270).
// При любом другом значении src возвращается как есть.
func Rotate(src Source, degrees int, pool *system.ImagePool) Source {
	if degrees != 90 && degrees != 180 && degrees != 270 {
		return src
	}
	return &rotated{src: src, degrees: degrees, pool: pool}
}

func (r *rotated) Metadata() Metadata {
	m := r.src.Metadata()
	if r.degrees != 180 {
		m.Width, m.Height = m.Height, m.Width
	}
	return m
}

func (r *rotated) Next(ctx context.Context) (*domain.Frame, error) {
	f, err := r.src.Next(ctx)
	if err != nil {
		return nil, err
	}
	out := rotateRGBA(f.Image, r.degrees, r.pool)
	idx, pts := f.Index, f.PTS
	f.Release()
	return domain.NewFrame(idx, pts, out, r.pool.Put), nil
}

func (r *rotated) Close() error {
	return r.src.Close()
}

// rotateRGBA поворачивает src по часовой стрелке в буфер из пула
// с началом координат в нуле.
func rotateRGBA(src *image.RGBA, degrees int, pool *system.ImagePool) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := h, w
	if degrees == 180 {
		dw, dh = w, h
	}
	dst := pool.Get(image.Rect(0, 0, dw, dh))

	for y := 0; y < h; y++ {
		so := src.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < w; x++ {
			var dx, dy int
			switch degrees {
			case 90:
				dx, dy = h-1-y, x
			case 180:
				dx, dy = w-1-x, h-1-y
			default: // 270
				dx, dy = y, w-1-x
			}
			do := dy*dst.Stride + dx*4
			copy(dst.Pix[do:do+4], src.Pix[so+x*4:so+x*4+4])
		}
	}
	return dst
}

package source

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ivlev/media2ascii/internal/domain"
	"github.com/ivlev/media2ascii/internal/system"
)

const probeJSON = `{
  "streams": [
    {"codec_type": "audio", "codec_name": "aac"},
    {
      "codec_type": "video",
      "codec_name": "h264",
      "width": 1920,
      "height": 1080,
      "avg_frame_rate": "30000/1001",
      "r_frame_rate": "30/1",
      "nb_frames": "300",
      "duration": "10.010000"
    }
  ],
  "format": {"duration": "10.050000"}
}`

func TestParseProbe(t *testing.T) {
	meta, err := parseProbe([]byte(probeJSON))
	if err != nil {
		t.Fatalf("parseProbe() = %v", err)
	}
	if meta.Width != 1920 || meta.Height != 1080 {
		t.Errorf("size = %dx%d, want 1920x1080", meta.Width, meta.Height)
	}
	if meta.FPS < 29.97 || meta.FPS > 29.98 {
		t.Errorf("fps = %f, want 29.97", meta.FPS)
	}
	if meta.FrameCount != 300 {
		t.Errorf("frames = %d, want 300", meta.FrameCount)
	}
	if meta.Duration != 10010*time.Millisecond {
		t.Errorf("duration = %v", meta.Duration)
	}
	if meta.Codec != "h264" {
		t.Errorf("codec = %s", meta.Codec)
	}
}

func TestParseProbeFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		json   string
		w, h   int
		fps    float64
		frames int
	}{
		{
			name:   "r_frame_rate and format duration",
			json:   `{"streams":[{"codec_type":"video","width":640,"height":480,"avg_frame_rate":"0/0","r_frame_rate":"25/1"}],"format":{"duration":"4.0"}}`,
			w:      640,
			h:      480,
			fps:    25,
			frames: 100,
		},
		{
			name:   "rotate tag swaps size",
			json:   `{"streams":[{"codec_type":"video","width":1920,"height":1080,"avg_frame_rate":"30/1","nb_frames":"3","tags":{"rotate":"90"}}]}`,
			w:      1080,
			h:      1920,
			fps:    30,
			frames: 3,
		},
		{
			name:   "side data rotation",
			json:   `{"streams":[{"codec_type":"video","width":1280,"height":720,"avg_frame_rate":"60/1","nb_frames":"1","side_data_list":[{"rotation":-90}]}]}`,
			w:      720,
			h:      1280,
			fps:    60,
			frames: 1,
		},
		{
			name:   "upside down keeps size",
			json:   `{"streams":[{"codec_type":"video","width":1280,"height":720,"avg_frame_rate":"60/1","nb_frames":"1","tags":{"rotate":"180"}}]}`,
			w:      1280,
			h:      720,
			fps:    60,
			frames: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := parseProbe([]byte(tt.json))
			if err != nil {
				t.Fatalf("parseProbe() = %v", err)
			}
			if meta.Width != tt.w || meta.Height != tt.h || meta.FPS != tt.fps || meta.FrameCount != tt.frames {
				t.Fatalf("got %dx%d@%v n=%d, want %dx%d@%v n=%d",
					meta.Width, meta.Height, meta.FPS, meta.FrameCount, tt.w, tt.h, tt.fps, tt.frames)
			}
		})
	}
}

func TestParseProbeErrors(t *testing.T) {
	inputs := map[string]string{
		"not json":   `ffprobe: error`,
		"no video":   `{"streams":[{"codec_type":"audio"}]}`,
		"no rate":    `{"streams":[{"codec_type":"video","width":2,"height":2,"avg_frame_rate":"0/0","r_frame_rate":"0/0"}]}`,
		"zero sized": `{"streams":[{"codec_type":"video","avg_frame_rate":"30/1"}]}`,
	}
	for name, in := range inputs {
		if _, err := parseProbe([]byte(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFrameReader(t *testing.T) {
	const w, h = 4, 2
	frameSize := w * h * 4
	data := make([]byte, frameSize*2+5) // two frames and a truncated third
	for i := range data {
		data[i] = byte(i)
	}

	fr := newFrameReader(bytes.NewReader(data), w, h, 10, system.NewImagePool())
	for want := 0; want < 2; want++ {
		f, err := fr.read()
		if err != nil {
			t.Fatalf("read frame %d: %v", want, err)
		}
		if f.Index != want || f.PTS != time.Duration(want)*100*time.Millisecond {
			t.Fatalf("frame %d has index %d pts %v", want, f.Index, f.PTS)
		}
		if f.Image.Pix[0] != byte(want*frameSize) {
			t.Fatalf("frame %d starts with %d", want, f.Image.Pix[0])
		}
		f.Release()
	}

	if _, err := fr.read(); err != io.ErrUnexpectedEOF {
		t.Fatalf("truncated frame: err = %v, want io.ErrUnexpectedEOF", err)
	}

	empty := newFrameReader(bytes.NewReader(nil), w, h, 10, system.NewImagePool())
	if _, err := empty.read(); err != io.EOF {
		t.Fatalf("empty stream: err = %v, want io.EOF", err)
	}
}

func TestDecodeArgs(t *testing.T) {
	args := decodeArgs("in.mp4")
	joined := " " + strings.Join(args, " ") + " "
	for _, want := range []string{" -i in.mp4 ", " -f rawvideo ", " -pix_fmt rgba ", " pipe: ", " -nostdin "} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
}

// labelled returns a w x h image whose red channel encodes x and green
// channel encodes y.
func labelled(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	return img
}

func TestRotateRGBA(t *testing.T) {
	src := labelled(3, 2)
	pool := system.NewImagePool()

	tests := []struct {
		degrees int
		w, h    int
		// pixel of the rotated image at (0,0) in source coordinates
		x0, y0 uint8
	}{
		{90, 2, 3, 0, 1},
		{180, 3, 2, 2, 1},
		{270, 2, 3, 2, 0},
	}

	for _, tt := range tests {
		dst := rotateRGBA(src, tt.degrees, pool)
		if dst.Rect.Dx() != tt.w || dst.Rect.Dy() != tt.h {
			t.Fatalf("%d: size %v, want %dx%d", tt.degrees, dst.Rect, tt.w, tt.h)
		}
		c := dst.RGBAAt(0, 0)
		if c.R != tt.x0 || c.G != tt.y0 {
			t.Errorf("%d: (0,0) comes from (%d,%d), want (%d,%d)", tt.degrees, c.R, c.G, tt.x0, tt.y0)
		}
	}
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestOpenImageDirectory(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "002.png"), labelled(8, 4))
	writePNG(t, filepath.Join(dir, "001.png"), labelled(8, 4))
	writePNG(t, filepath.Join(dir, "003.png"), labelled(16, 8)) // rescaled to 8x4
	os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("skip"), 0o644)

	src, err := Open(context.Background(), Options{Path: dir, StillFPS: 2, Rotate: 90})
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer src.Close()

	meta := src.Metadata()
	if meta.Width != 4 || meta.Height != 8 || meta.FrameCount != 3 || meta.FPS != 2 {
		t.Fatalf("metadata = %+v", meta)
	}

	var n int
	for {
		f, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() = %v", err)
		}
		if f.Index != n || f.PTS != time.Duration(n)*500*time.Millisecond {
			t.Fatalf("frame %d: index %d pts %v", n, f.Index, f.PTS)
		}
		if f.Image.Rect.Dx() != 4 || f.Image.Rect.Dy() != 8 {
			t.Fatalf("frame %d size %v", n, f.Image.Rect)
		}
		f.Release()
		n++
	}
	if n != 3 {
		t.Fatalf("read %d frames, want 3", n)
	}
}

func TestOpenSingleImageHonoursCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.png")
	writePNG(t, path, labelled(4, 4))

	src, err := Open(context.Background(), Options{Path: path})
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); err != context.Canceled {
		t.Fatalf("Next() = %v, want context.Canceled", err)
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(context.Background(), Options{Path: filepath.Join(dir, "missing.mp4")})
	if domain.KindOf(err) != domain.KindSourceUnreadable {
		t.Fatalf("missing file: kind %q (%v)", domain.KindOf(err), err)
	}

	_, err = Open(context.Background(), Options{Path: dir})
	if domain.KindOf(err) != domain.KindSourceUnreadable {
		t.Fatalf("empty dir: kind %q (%v)", domain.KindOf(err), err)
	}

	bad := filepath.Join(dir, "bad.png")
	os.WriteFile(bad, []byte("not a png"), 0o644)
	_, err = Open(context.Background(), Options{Path: bad})
	if domain.KindOf(err) != domain.KindSourceUnreadable {
		t.Fatalf("bad image: kind %q (%v)", domain.KindOf(err), err)
	}
}

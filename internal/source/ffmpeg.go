package source

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/ivlev/media2ascii/internal/domain"
	"github.com/ivlev/media2ascii/internal/system"
)

// VideoSource декодирует видео дочерним процессом ffmpeg, который пишет
// сырые RGBA-кадры в stdout.
type VideoSource struct {
	meta   Metadata
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *system.Tail
	frames *frameReader
	err    error
}

func NewVideoSource(ctx context.Context, path, ffmpegPath string, pool *system.ImagePool) (*VideoSource, error) {
	raw, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, domain.WrapError(domain.KindSourceUnreadable, err, "cannot probe %s", path)
	}
	meta, err := parseProbe([]byte(raw))
	if err != nil {
		return nil, domain.WrapError(domain.KindSourceUnreadable, err, "cannot read stream info of %s", path)
	}

	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, ffmpegPath, decodeArgs(path)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, domain.WrapError(domain.KindSourceUnreadable, err, "cannot attach to ffmpeg")
	}
	stderr := &system.Tail{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, domain.WrapError(domain.KindSourceUnreadable, err, "cannot start %s", ffmpegPath)
	}

	return &VideoSource{
		meta:   meta,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		frames: newFrameReader(stdout, meta.Width, meta.Height, meta.FPS, pool),
	}, nil
}

func decodeArgs(path string) []string {
	args := ffmpeg.Input(path).
		Output("pipe:", ffmpeg.KwArgs{"format": "rawvideo", "pix_fmt": "rgba"}).
		GetArgs()
	return append([]string{"-hide_banner", "-loglevel", "error", "-nostdin"}, args...)
}

func (s *VideoSource) Metadata() Metadata { return s.meta }

func (s *VideoSource) Next(ctx context.Context) (*domain.Frame, error) {
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := s.frames.read()
	if err == nil {
		return frame, nil
	}

	s.err = s.finish(err)
	return nil, s.err
}

// finish дожидается ffmpeg и определяет, как закончился поток.
func (s *VideoSource) finish(readErr error) error {
	waitErr := s.wait()
	decoded := s.frames.index

	if readErr == io.EOF && waitErr == nil {
		if decoded == 0 {
			return domain.NewError(domain.KindSourceUnreadable, "no frames decoded")
		}
		return io.EOF
	}

	cause := waitErr
	if readErr != io.EOF {
		cause = readErr
	}
	if msg := s.stderr.String(); msg != "" {
		cause = errors.Wrap(cause, msg)
	}
	if decoded == 0 {
		return domain.WrapError(domain.KindSourceUnreadable, cause, "ffmpeg could not decode the source")
	}
	return domain.WrapError(domain.KindCorruptStream, cause, "stream ended after frame %d", decoded-1)
}

func (s *VideoSource) wait() error {
	if s.cmd == nil {
		return nil
	}
	cmd := s.cmd
	s.cmd = nil
	return cmd.Wait()
}

func (s *VideoSource) Close() error {
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.wait()
	}
	return nil
}

// frameReader режет сырой RGBA-поток на кадры.
type frameReader struct {
	r     io.Reader
	rect  image.Rectangle
	fps   float64
	pool  *system.ImagePool
	index int
}

func newFrameReader(r io.Reader, width, height int, fps float64, pool *system.ImagePool) *frameReader {
	return &frameReader{r: r, rect: image.Rect(0, 0, width, height), fps: fps, pool: pool}
}

// read возвращает io.EOF на границе кадра и io.ErrUnexpectedEOF,
// если поток оборвался посреди кадра.
func (fr *frameReader) read() (*domain.Frame, error) {
	img := fr.pool.Get(fr.rect)
	if _, err := io.ReadFull(fr.r, img.Pix); err != nil {
		fr.pool.Put(img)
		return nil, err
	}
	idx := fr.index
	fr.index++
	pts := time.Duration(float64(idx) * float64(time.Second) / fr.fps)
	return domain.NewFrame(idx, pts, img, fr.pool.Put), nil
}

type probeStream struct {
	CodecType    string            `json:"codec_type"`
	CodecName    string            `json:"codec_name"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	RFrameRate   string            `json:"r_frame_rate"`
	NbFrames     string            `json:"nb_frames"`
	Duration     string            `json:"duration"`
	Tags         map[string]string `json:"tags"`
	SideDataList []struct {
		Rotation float64 `json:"rotation"`
	} `json:"side_data_list"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// parseProbe достаёт первый видеопоток из JSON-вывода ffprobe.
// Размеры возвращаются такими, какими их выдаст ffmpeg, то есть с учётом
// поворота из контейнера.
func parseProbe(data []byte) (Metadata, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Metadata{}, errors.WithStack(err)
	}

	var vs *probeStream
	for i := range out.Streams {
		if out.Streams[i].CodecType == "video" {
			vs = &out.Streams[i]
			break
		}
	}
	if vs == nil {
		return Metadata{}, errors.New("no video stream found")
	}
	if vs.Width <= 0 || vs.Height <= 0 {
		return Metadata{}, errors.Errorf("invalid video size %dx%d", vs.Width, vs.Height)
	}

	fps := parseRate(vs.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(vs.RFrameRate)
	}
	if fps <= 0 {
		return Metadata{}, errors.New("unknown frame rate")
	}

	seconds := parseFloat(vs.Duration)
	if seconds <= 0 {
		seconds = parseFloat(out.Format.Duration)
	}

	count, _ := strconv.Atoi(strings.TrimSpace(vs.NbFrames))
	if count <= 0 && seconds > 0 {
		count = int(math.Round(seconds * fps))
	}

	meta := Metadata{
		Width:      vs.Width,
		Height:     vs.Height,
		FPS:        fps,
		FrameCount: count,
		Duration:   time.Duration(math.Round(seconds * float64(time.Second))),
		Codec:      vs.CodecName,
	}
	if r := displayRotation(vs); r == 90 || r == 270 {
		meta.Width, meta.Height = meta.Height, meta.Width
	}
	return meta, nil
}

func displayRotation(vs *probeStream) int {
	var deg float64
	if tag, ok := vs.Tags["rotate"]; ok {
		deg = parseFloat(tag)
	}
	for _, sd := range vs.SideDataList {
		if sd.Rotation != 0 {
			deg = sd.Rotation
		}
	}
	r := int(math.Round(deg)) % 360
	if r < 0 {
		r += 360
	}
	return r
}

// parseRate разбирает "num/den" или просто число.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	if !found {
		return parseFloat(num)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

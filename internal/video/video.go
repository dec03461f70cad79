// Package video кодирует символьные кадры в видеофайл через ffmpeg.
package video

import (
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/ivlev/media2ascii/internal/config"
	"github.com/ivlev/media2ascii/internal/domain"
	"github.com/ivlev/media2ascii/internal/renderer"
	"github.com/ivlev/media2ascii/internal/system"
)

// Process - запущенный энкодер. Запись идёт в его stdin, Close закрывает вход.
type Process interface {
	io.WriteCloser
	Wait() error
	Kill() error
}

// Starter запускает энкодер.
type Starter func(name string, args []string, stderr io.Writer) (Process, error)

type Options struct {
	Path       string
	Overwrite  bool
	Encoder    string
	Quality    int
	FFmpegPath string
	FontSize   float64
	Invert     bool

	// По умолчанию Start запускает программу через os/exec.
	Start Starter
}

// OptionsFromConfig собирает параметры вывода из конфигурации задачи.
func OptionsFromConfig(cfg config.JobConfig) Options {
	return Options{
		Path:       cfg.OutputVideoPath,
		Overwrite:  cfg.Overwrite,
		Encoder:    cfg.VideoEncoder,
		Quality:    cfg.Quality,
		FFmpegPath: cfg.FFmpegPath,
		FontSize:   cfg.FontSize,
		Invert:     cfg.Invert,
	}
}

// FileSink пишет видео рядом с целевым файлом и переносит его на место только
// в Commit, так что упавшая или отменённая задача не оставляет недописанный файл.
type FileSink struct {
	opts   Options
	tmp    string
	proc   Process
	stderr *system.Tail
	raster *renderer.Rasterizer
	canvas *image.RGBA
	frames int
	closed bool
}

func NewFileSink(opts Options) *FileSink {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = config.DefaultFFmpegPath
	}
	if opts.Start == nil {
		opts.Start = startExec
	}
	return &FileSink{opts: opts, stderr: &system.Tail{}}
}

// CheckDestination возвращает DestinationExists, если path занят,
// а перезапись не разрешена.
func CheckDestination(path string, overwrite bool) error {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return domain.WrapError(domain.KindDestinationExists, err, "cannot inspect %s", path)
	}
	if fi.IsDir() {
		return domain.NewError(domain.KindDestinationExists, "%s is a directory", path)
	}
	if !overwrite {
		return domain.NewError(domain.KindDestinationExists, "%s already exists", path)
	}
	return nil
}

// Open готовит холст и запускает ffmpeg для потока сетки cols x rows
// с частотой fps.
func (s *FileSink) Open(cols, rows int, fps float64) error {
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

	encoder := s.opts.Encoder
	if encoder == "" || encoder == config.EncoderAuto {
		encoder = system.DetectH264Encoder(s.opts.FFmpegPath)
	}

	args := encodeArgs(s.tmp, raster.Width, raster.Height, fps, encoder, s.opts.Quality)
	proc, err := s.opts.Start(s.opts.FFmpegPath, args, s.stderr)
	if err != nil {
		s.cleanup()
		return domain.WrapError(domain.KindEncodeFailed, err, "cannot start %s", s.opts.FFmpegPath)
	}
	s.proc = proc
	return nil
}

// tempBeside создаёт пустой скрытый файл в папке назначения с тем же
// расширением, чтобы переименование осталось в пределах одной файловой системы.
func tempBeside(path string) (string, error) {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(base, ext)+".*"+ext)
	if err != nil {
		return "", domain.WrapError(domain.KindEncodeFailed, err, "cannot create temporary file in %s", filepath.Clean(dir))
	}
	name := tmp.Name()
	tmp.Close()
	return name, nil
}

// removeTemp удаляет временный файл; если его уже нет, это не ошибка.
func removeTemp(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}

func encodeArgs(out string, width, height int, fps float64, encoder string, quality int) []string {
	input := ffmpeg.KwArgs{
		"format":       "rawvideo",
		"pixel_format": "rgba",
		"video_size":   fmt.Sprintf("%dx%d", width, height),
		"framerate":    strconv.FormatFloat(fps, 'f', -1, 64),
	}
	output := ffmpeg.MergeKwArgs([]ffmpeg.KwArgs{
		{"c:v": encoder, "pix_fmt": "yuv420p"},
		system.QualityArgs(encoder, quality),
	})
	if filepath.Ext(out) == "" {
		output["format"] = "mp4"
	}

	args := ffmpeg.Input("pipe:", input).Output(out, output).OverWriteOutput().GetArgs()
	return append([]string{"-hide_banner", "-loglevel", "error"}, args...)
}

// Write растеризует g и передаёт энкодеру.
func (s *FileSink) Write(g *domain.GlyphFrame) error {
	if s.proc == nil || s.closed {
		return domain.NewError(domain.KindEncodeFailed, "sink is not open")
	}
	if err := s.raster.Draw(g, s.canvas); err != nil {
		return err
	}
	if _, err := s.proc.Write(s.canvas.Pix); err != nil {
		return s.failure(err, "write frame %d", g.Index)
	}
	s.frames++
	return nil
}

// Frames - сколько кадров уже передано энкодеру.
func (s *FileSink) Frames() int {
	return s.frames
}

// Commit завершает кодирование и переименовывает результат в целевой файл.
func (s *FileSink) Commit() error {
	if s.proc == nil || s.closed {
		return domain.NewError(domain.KindEncodeFailed, "sink is not open")
	}
	s.closed = true
	defer s.cleanup()

	if err := s.proc.Close(); err != nil {
		s.proc.Kill()
		s.proc.Wait()
		return s.failure(err, "close encoder input")
	}
	if err := s.proc.Wait(); err != nil {
		return s.failure(err, "ffmpeg exited")
	}

	// Целевой файл мог появиться, пока мы кодировали.
	if err := CheckDestination(s.opts.Path, s.opts.Overwrite); err != nil {
		return err
	}
	if err := os.Rename(s.tmp, s.opts.Path); err != nil {
		return domain.WrapError(domain.KindEncodeFailed, err, "move output into place")
	}
	s.tmp = ""
	return nil
}

// Abort останавливает энкодер и удаляет временный файл. Можно вызывать
// когда угодно, в том числе после Commit.
func (s *FileSink) Abort() error {
	if s.proc != nil && !s.closed {
		s.closed = true
		s.proc.Kill()
		s.proc.Close()
		s.proc.Wait()
	}
	return s.cleanup()
}

func (s *FileSink) cleanup() error {
	if s.raster != nil {
		s.raster.Close()
		s.raster = nil
	}
	err := removeTemp(s.tmp)
	s.tmp = ""
	return err
}

func (s *FileSink) failure(err error, format string, args ...interface{}) error {
	if tail := s.stderr.String(); tail != "" {
		err = errors.Wrap(err, tail)
	}
	return domain.WrapError(domain.KindEncodeFailed, err, format, args...)
}

type execProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// startExec запускает энкодер без контекста: при отмене текущий кадр
// должен дописаться, после чего Abort убивает процесс.
func startExec(name string, args []string, stderr io.Writer) (Process, error) {
	cmd := exec.Command(name, args...)
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.WithStack(err)
	}
	return &execProcess{cmd: cmd, stdin: stdin}, nil
}

func (p *execProcess) Write(b []byte) (int, error) { return p.stdin.Write(b) }
func (p *execProcess) Close() error                { return p.stdin.Close() }
func (p *execProcess) Wait() error                 { return p.cmd.Wait() }

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Package engine выполняет задачи конвертации: берёт кадры из источника,
// превращает их в символьные кадры и отдаёт в поток просмотра и, при
// необходимости, в видеофайл.
package engine

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/media2ascii/internal/config"
	"github.com/ivlev/media2ascii/internal/domain"
	"github.com/ivlev/media2ascii/internal/glyph"
	"github.com/ivlev/media2ascii/internal/governor"
	"github.com/ivlev/media2ascii/internal/sampler"
	"github.com/ivlev/media2ascii/internal/source"
	"github.com/ivlev/media2ascii/internal/system"
	"github.com/ivlev/media2ascii/internal/video"
)

// Sink принимает символьные кадры, прошедшие в выходной файл.
type Sink interface {
	Open(cols, rows int, fps float64) error
	Write(g *domain.GlyphFrame) error
	Commit() error
	Abort() error
}

type SourceOpener func(ctx context.Context, opts source.Options) (source.Source, error)

type SinkFactory func(cfg config.JobConfig) Sink

type Option func(*Job)

func WithLogger(l *logrus.Logger) Option {
	return func(j *Job) { j.logger = l }
}

func WithSourceOpener(open SourceOpener) Option {
	return func(j *Job) { j.openSource = open }
}

func WithSinkFactory(f SinkFactory) Option {
	return func(j *Job) { j.newSink = f }
}

// WithEventBuffer задаёт ёмкость канала событий.
func WithEventBuffer(n int) Option {
	return func(j *Job) { j.buffer = n }
}

// Job - одна конвертация. Запускается не более одного раза.
type Job struct {
	ID string

	cfg        config.JobConfig
	logger     *logrus.Logger
	log        *logrus.Entry
	openSource SourceOpener
	newSink    SinkFactory
	buffer     int
	events     chan Event

	mu        sync.Mutex
	state     domain.JobState
	cancel    context.CancelFunc
	cancelled bool
	report    Report
}

// NewJob создаёт задачу в состоянии Idle с копией cfg.
func NewJob(cfg config.JobConfig, opts ...Option) *Job {
	j := &Job{
		ID:         uuid.NewString(),
		cfg:        cfg.WithDefaults(),
		openSource: source.Open,
		newSink:    defaultSink,
		buffer:     64,
		state:      domain.StateIdle,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.logger == nil {
		j.logger = logrus.New()
	}
	j.log = j.logger.WithField("job_id", j.ID)
	j.events = make(chan Event, j.buffer)
	j.report.JobID = j.ID
	return j
}

func defaultSink(cfg config.JobConfig) Sink {
	opts := video.OptionsFromConfig(cfg)
	if cfg.WantsPicture() {
		return video.NewPictureSink(opts)
	}
	return video.NewFileSink(opts)
}

// Config возвращает конфигурацию задачи.
func (j *Job) Config() config.JobConfig {
	return j.cfg
}

// Events отдаёт прогресс, смены состояния и итог. Канал закрывается после
// события done. Если канал никто не читает, задача встаёт.
func (j *Job) Events() <-chan Event {
	return j.events
}

func (j *Job) State() domain.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Report возвращает собранную на текущий момент статистику.
func (j *Job) Report() Report {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.report
}

// Cancel просит задачу остановиться на границе следующего кадра.
func (j *Job) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancelled = true
	if j.cancel != nil {
		j.cancel()
	}
}

// isValidTransition проверяет допустимость перехода между состояниями.
func isValidTransition(from, to domain.JobState) bool {
	switch from {
	case domain.StateIdle:
		return to == domain.StateValidating
	case domain.StateValidating:
		return to == domain.StateRunning || to == domain.StateFailed
	case domain.StateRunning:
		return to == domain.StateCompleted || to == domain.StateCancelled || to == domain.StateFailed
	default:
		return false
	}
}

func (j *Job) transition(to domain.JobState) error {
	j.mu.Lock()
	from := j.state
	if !isValidTransition(from, to) {
		j.mu.Unlock()
		return errors.Errorf("invalid transition: %s -> %s", from, to)
	}
	j.state = to
	j.mu.Unlock()

	j.log.WithField("state", to).Debugf("%s -> %s", from, to)
	j.emitAlways(Event{Type: EventState, State: to})
	return nil
}

// Run выполняет задачу и блокируется до конечного состояния.
// Возвращает nil, если задача завершилась успешно.
func (j *Job) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	j.mu.Lock()
	if j.state != domain.StateIdle {
		state := j.state
		j.mu.Unlock()
		return errors.Errorf("job %s already %s", j.ID, state)
	}
	j.cancel = cancel
	if j.cancelled {
		cancel()
	}
	j.mu.Unlock()

	defer close(j.events)

	start := time.Now()
	err := j.execute(ctx)

	j.mu.Lock()
	j.report.Total = time.Since(start)
	j.mu.Unlock()

	final := domain.StateCompleted
	switch {
	case err == nil:
	case domain.KindOf(err) == domain.KindCancelled:
		final = domain.StateCancelled
	default:
		final = domain.StateFailed
		if domain.KindOf(err) == "" {
			err = domain.WrapError(domain.KindEncodeFailed, err, "internal error")
		}
	}

	if terr := j.transition(final); terr != nil {
		// Сюда попадаем, только если execute упал ещё в Idle.
		j.log.WithError(terr).Error("cannot record final state")
	}

	done := Event{Type: EventDone, State: final}
	fields := logrus.Fields{"state": final, "frames": j.Report().FramesDecoded}
	if final == domain.StateFailed {
		done.Kind = domain.KindOf(err)
		done.Message = domain.MessageOf(err)
		j.log.WithFields(fields).WithField("kind", done.Kind).Error(done.Message)
	} else {
		j.log.WithFields(fields).Info("job finished")
	}
	j.emitAlways(done)
	return err
}

func (j *Job) execute(ctx context.Context) error {
	if err := j.transition(domain.StateValidating); err != nil {
		return err
	}
	if err := j.validate(); err != nil {
		return err
	}
	if err := j.transition(domain.StateRunning); err != nil {
		return err
	}
	return j.run(ctx)
}

// validate проверяет конфигурацию и файловую систему, ничего не создавая.
func (j *Job) validate() error {
	if err := j.cfg.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(j.cfg.VideoPath); err != nil {
		return domain.WrapError(domain.KindSourceUnreadable, err, "cannot open %s", j.cfg.VideoPath)
	}
	if j.cfg.HasOutput() {
		return video.CheckDestination(j.cfg.OutputVideoPath, j.cfg.Overwrite)
	}
	return nil
}

func (j *Job) cancelledError(ctx context.Context, frames int) error {
	return domain.WrapError(domain.KindCancelled, ctx.Err(), "cancelled after %d frames", frames)
}

func (j *Job) run(ctx context.Context) error {
	cfg := j.cfg
	pool := system.NewImagePool()

	src, err := j.openSource(ctx, source.Options{
		Path:        cfg.VideoPath,
		Rotate:      cfg.Rotate,
		StillFPS:    cfg.StillFPS,
		DocumentDPI: cfg.DocumentDPI,
		FFmpegPath:  cfg.FFmpegPath,
		Pool:        pool,
	})
	if err != nil {
		if ctx.Err() != nil {
			return j.cancelledError(ctx, 0)
		}
		return err
	}
	defer src.Close()

	meta := src.Metadata()
	smp := sampler.New(cfg.ScaleDown, cfg.FontSize, cfg.HeightSampleScale)
	cols, rows, err := smp.Dimensions(meta.Width, meta.Height)
	if err != nil {
		return err
	}
	mapper := glyph.NewMapper(cfg.Invert)

	preview := governor.New(meta.FPS, float64(cfg.MaxFPS))
	output := governor.Passthrough(meta.FPS)
	if cfg.UseMaxFPSForOutputVideo {
		output = governor.New(meta.FPS, float64(cfg.MaxFPS))
	}

	j.mu.Lock()
	j.report.Source = meta
	j.report.Cols, j.report.Rows = cols, rows
	j.mu.Unlock()

	j.log.WithFields(logrus.Fields{
		"source": cfg.VideoPath,
		"size":   [2]int{meta.Width, meta.Height},
		"fps":    meta.FPS,
		"grid":   [2]int{cols, rows},
	}).Info("conversion started")

	var sink Sink
	if cfg.HasOutput() {
		sink = j.newSink(cfg)
		if err := sink.Open(cols, rows, output.Rate()); err != nil {
			sink.Abort()
			return err
		}
	}

	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = system.QueueDepth(int64(meta.Width) * int64(meta.Height) * 4)
	}

	st := &stages{
		job:     j,
		src:     src,
		meta:    meta,
		sampler: smp,
		mapper:  mapper,
		preview: preview,
		output:  output,
		sink:    sink,
		frames:  make(chan *domain.Frame, depth),
		glyphs:  make(chan *domain.GlyphFrame, depth),
	}
	err = st.run(ctx)

	j.mu.Lock()
	j.report.FramesDecoded = st.decoded
	j.report.FramesPreviewed = st.previewed
	j.report.FramesEncoded = st.encoded
	j.report.Decode, j.report.Convert, j.report.Deliver = st.decodeTime, st.convertTime, st.deliverTime
	j.mu.Unlock()

	if err == nil && ctx.Err() != nil {
		// Отмена пришла после последнего кадра, результат полный.
		j.log.Debug("cancel arrived after the stream ended")
	}
	if err != nil && domain.KindOf(err) != domain.KindCancelled && ctx.Err() != nil {
		err = j.cancelledError(ctx, st.decoded)
	}

	if sink != nil {
		err = j.finishSink(sink, err, st.encoded)
	}

	if snap, serr := system.Snapshot(); serr == nil {
		j.mu.Lock()
		j.report.Resources = snap
		j.mu.Unlock()
	}
	return err
}

// finishSink фиксирует или отменяет запись файла в зависимости от того, как
// закончился поток. Ошибки очистки только логируются и не подменяют err.
func (j *Job) finishSink(sink Sink, err error, encoded int) error {
	keep := err != nil && j.cfg.KeepPartialOutput &&
		domain.KindOf(err) == domain.KindCorruptStream && encoded > 0

	if err == nil || keep {
		if cerr := sink.Commit(); cerr != nil {
			if err != nil {
				j.log.WithError(cerr).Warn("cannot keep partial output")
				return err
			}
			return cerr
		}
		if keep {
			j.log.WithField("frames", encoded).Warn("kept partial output")
		}
		return err
	}

	if aerr := sink.Abort(); aerr != nil {
		j.log.WithError(aerr).Warn("cannot clean up output")
	}
	return err
}

// stages хранит общее состояние горутин decode, convert и deliver одного
// запуска. Каждый счётчик пишет только одна стадия.
type stages struct {
	job     *Job
	src     source.Source
	meta    source.Metadata
	sampler *sampler.Sampler
	mapper  *glyph.Mapper
	preview *governor.Governor
	output  *governor.Governor
	sink    Sink

	frames chan *domain.Frame
	glyphs chan *domain.GlyphFrame

	// streamErr завершает поток после доставки всех целых кадров.
	streamErr error

	decoded, previewed, encoded          int
	decodeTime, convertTime, deliverTime time.Duration
}

func (s *stages) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.decode(ctx, gctx) })
	g.Go(func() error { return s.convert(gctx) })
	g.Go(func() error { return s.deliver(ctx, gctx) })

	if err := g.Wait(); err != nil {
		return err
	}
	return s.streamErr
}

func (s *stages) decode(jobCtx, ctx context.Context) error {
	defer close(s.frames)
	for {
		if jobCtx.Err() != nil {
			return s.job.cancelledError(jobCtx, s.decoded)
		}

		start := time.Now()
		f, err := s.src.Next(ctx)
		s.decodeTime += time.Since(start)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if jobCtx.Err() != nil {
				return s.job.cancelledError(jobCtx, s.decoded)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.streamErr = err
			return nil
		}

		if b := f.Image.Bounds(); b.Dx() != s.meta.Width || b.Dy() != s.meta.Height {
			f.Release()
			s.streamErr = domain.NewError(domain.KindCorruptStream,
				"frame %d is %dx%d, stream is %dx%d", f.Index, b.Dx(), b.Dy(), s.meta.Width, s.meta.Height)
			return nil
		}
		s.decoded++

		select {
		case s.frames <- f:
		case <-ctx.Done():
			f.Release()
			return ctx.Err()
		}
	}
}

func (s *stages) convert(ctx context.Context) error {
	defer close(s.glyphs)
	for f := range s.frames {
		start := time.Now()
		grid, err := s.sampler.Sample(f)
		f.Release()
		if err != nil {
			return err
		}
		gf := s.mapper.Map(grid)
		s.convertTime += time.Since(start)

		select {
		case s.glyphs <- gf:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *stages) deliver(jobCtx, ctx context.Context) error {
	for gf := range s.glyphs {
		if jobCtx.Err() != nil {
			return s.job.cancelledError(jobCtx, gf.Index)
		}
		start := time.Now()

		ev := Event{Type: EventProgress, State: domain.StateRunning, Index: gf.Index}
		ev.Total, ev.Percent = progress(gf.Index, s.meta.FrameCount)
		if s.preview.Admit(gf.Index) {
			ev.Frame = gf
			s.previewed++
		}

		if s.sink != nil && s.output.Admit(gf.Index) {
			if err := s.sink.Write(gf); err != nil {
				return err
			}
			s.encoded++
		}
		s.deliverTime += time.Since(start)

		if err := s.job.emit(ctx, ev); err != nil {
			if jobCtx.Err() != nil {
				return s.job.cancelledError(jobCtx, gf.Index+1)
			}
			return err
		}
	}
	return nil
}

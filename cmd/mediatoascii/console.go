package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/ivlev/media2ascii/internal/domain"
	"github.com/ivlev/media2ascii/internal/engine"
	"github.com/ivlev/media2ascii/internal/governor"
	"github.com/ivlev/media2ascii/internal/renderer"
)

var (
	base         = lipgloss.NewStyle()
	titleStyle   = base.Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	faintStyle   = base.Faint(true)
	successStyle = base.Foreground(lipgloss.Color("#22C55E"))
	errorStyle   = base.Foreground(lipgloss.Color("#EF4444"))
	warningStyle = base.Foreground(lipgloss.Color("#F59E0B"))
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// console выводит ход задачи: кадры в stdout, статусные строки в stderr.
type console struct {
	stdout  io.Writer
	stderr  io.Writer
	preview previewMode
	textOut string
	bar     progress.Model
	showBar bool
}

func newConsole(stdout, stderr io.Writer) *console {
	return &console{
		stdout:  stdout,
		stderr:  stderr,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		showBar: stderr == io.Writer(os.Stderr) && isTerminal(os.Stderr),
	}
}

func (c *console) info(format string, args ...interface{}) {
	fmt.Fprintln(c.stderr, faintStyle.Render("[*] "+fmt.Sprintf(format, args...)))
}

func (c *console) warn(format string, args ...interface{}) {
	fmt.Fprintln(c.stderr, warningStyle.Render("[!] "+fmt.Sprintf(format, args...)))
}

func (c *console) success(format string, args ...interface{}) {
	fmt.Fprintln(c.stderr, successStyle.Render("[+++] "+fmt.Sprintf(format, args...)))
}

func (c *console) header(job *engine.Job) {
	cfg := job.Config()
	fmt.Fprintln(c.stderr, titleStyle.Render("--- [MEDIA TO ASCII] ---"))
	c.info("Источник: %s", cfg.VideoPath)
	c.info("Масштаб: %.2f | Шрифт: %.1f | Макс. FPS: %d | Инверсия: %v", cfg.ScaleDown, cfg.FontSize, cfg.MaxFPS, cfg.Invert)
	if cfg.HasOutput() {
		c.info("Результат: %s", cfg.OutputVideoPath)
	}
}

// consume вычитывает события задачи до закрытия канала и возвращает
// последний показанный кадр.
func (c *console) consume(ctx context.Context, job *engine.Job) *domain.GlyphFrame {
	var (
		last    *domain.GlyphFrame
		writer  *renderer.TextWriter
		pacer   *governor.Pacer
		checked bool
		drawBar = c.showBar && c.preview != previewTerminal
	)
	switch c.preview {
	case previewTerminal:
		writer = renderer.NewTextWriter(c.stdout, true)
	case previewPlain:
		writer = renderer.NewTextWriter(c.stdout, false)
	}

	for ev := range job.Events() {
		switch ev.Type {
		case engine.EventProgress:
			if drawBar {
				fmt.Fprintf(c.stderr, "\r%s %5.1f%% (%d/%d)", c.bar.ViewAs(ev.Percent/100), ev.Percent, ev.Index+1, ev.Total)
			}
			if ev.Frame == nil {
				continue
			}
			last = ev.Frame
			if writer == nil {
				continue
			}
			if !checked {
				checked = true
				c.checkWidth(ev.Frame)
				if c.preview == previewTerminal {
					pacer = governor.NewPacer(previewRate(job.Report().Source.FPS, job.Config().MaxFPS))
				}
			}
			if pacer != nil {
				// Отмена контекста прерывает ожидание, задача заметит её сама.
				_ = pacer.Wait(ctx)
			}
			if err := writer.WriteFrame(ev.Frame); err != nil {
				c.warn("Просмотр: %v", err)
				writer = nil
			}

		case engine.EventDone:
			if drawBar {
				fmt.Fprintln(c.stderr)
			}
			switch ev.State {
			case domain.StateCancelled:
				c.warn("Отменено")
			case domain.StateFailed:
				c.warn("%s: %s", ev.Kind, ev.Message)
			}
		}
	}
	return last
}

func previewRate(sourceFPS float64, maxFPS int) float64 {
	if sourceFPS <= 0 || float64(maxFPS) < sourceFPS {
		return float64(maxFPS)
	}
	return sourceFPS
}

// checkWidth предупреждает, если сетка символов шире терминала.
func (c *console) checkWidth(g *domain.GlyphFrame) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return
	}
	if g.Cols > w || g.Rows > h {
		c.warn("Кадр %dx%d символов, а терминал %dx%d; увеличьте --scale-down", g.Cols, g.Rows, w, h)
	}
}

func saveText(path string, g *domain.GlyphFrame) error {
	return renderer.SaveText(path, g)
}

package governor

import (
	"context"
	"time"
)

// Pacer выдерживает интервалы между кадрами в реальном времени для воспроизведения.
type Pacer struct {
	interval time.Duration
	last     time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPacer выдерживает fps кадров в секунду. При fps <= 0 не ждёт.
func NewPacer(fps float64) *Pacer {
	p := &Pacer{now: time.Now, sleep: sleepContext}
	if fps > 0 {
		p.interval = time.Duration(float64(time.Second) / fps)
	}
	return p
}

// Interval - целевой интервал между кадрами.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Wait ждёт, пока с прошлого вызова не пройдёт один интервал.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.interval <= 0 {
		return ctx.Err()
	}
	now := p.now()
	if !p.last.IsZero() {
		if remaining := p.interval - now.Sub(p.last); remaining > 0 {
			if err := p.sleep(ctx, remaining); err != nil {
				return err
			}
			now = p.now()
		}
	}
	p.last = now
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package engine

import (
	"context"

	"github.com/ivlev/media2ascii/internal/domain"
)

type EventType string

const (
	EventProgress EventType = "progress"
	EventState    EventType = "state"
	EventDone     EventType = "done"
)

// Event - уведомление от выполняющейся задачи. Progress приходит на каждый
// кадр источника, Frame заполнен только для кадров, попавших в просмотр.
// Поток завершается ровно одним событием done.
type Event struct {
	Type  EventType
	JobID string
	State domain.JobState

	Index   int
	Total   int
	Percent float64
	Frame   *domain.GlyphFrame

	Kind    domain.Kind
	Message string
}

// emit доставляет ev, если ctx не завершится раньше.
func (j *Job) emit(ctx context.Context, ev Event) error {
	ev.JobID = j.ID
	select {
	case j.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// emitAlways доставляет события жизненного цикла, они не теряются.
func (j *Job) emitAlways(ev Event) {
	ev.JobID = j.ID
	j.events <- ev
}

func progress(index, total int) (int, float64) {
	if total <= index {
		total = index + 1
	}
	return total, 100 * float64(index+1) / float64(total)
}

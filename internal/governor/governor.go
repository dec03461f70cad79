// Package governor ограничивает частоту кадров на выходе пайплайна.
package governor

import "math"

// Governor пропускает равномерную выборку потока с частотой SourceFPS так,
// чтобы осталось не больше MaxFPS кадров в секунду. Для каждого выходного слота
// берётся ближайший кадр источника, кадры не буферизуются и не перетаймируются.
type Governor struct {
	SourceFPS float64
	MaxFPS    float64

	next int // следующий выходной слот
}

// New создаёт Governor. При maxFPS <= 0 ограничения нет.
func New(sourceFPS, maxFPS float64) *Governor {
	return &Governor{SourceFPS: sourceFPS, MaxFPS: maxFPS}
}

// Passthrough возвращает Governor, который пропускает все кадры.
func Passthrough(sourceFPS float64) *Governor {
	return &Governor{SourceFPS: sourceFPS}
}

// Throttling сообщает, будут ли отбрасываться кадры.
func (g *Governor) Throttling() bool {
	return g.MaxFPS > 0 && g.SourceFPS > g.MaxFPS
}

// Rate - итоговая частота на выходе.
func (g *Governor) Rate() float64 {
	if g.Throttling() {
		return g.MaxFPS
	}
	return g.SourceFPS
}

// Admit решает, пропускать ли кадр с индексом index. Индексы должны
// идти по возрастанию.
func (g *Governor) Admit(index int) bool {
	if !g.Throttling() {
		return true
	}
	step := g.SourceFPS / g.MaxFPS
	admitted := false
	for {
		target := int(math.Round(float64(g.next) * step))
		if target > index {
			break
		}
		if target == index {
			admitted = true
		}
		g.next++
	}
	return admitted
}

// Reset возвращает Governor к нулевому слоту.
func (g *Governor) Reset() {
	g.next = 0
}

package engine

import (
	"fmt"
	"time"

	"github.com/ivlev/media2ascii/internal/source"
	"github.com/ivlev/media2ascii/internal/system"
)

// Report - сводка по завершённой задаче.
type Report struct {
	JobID  string
	Source source.Metadata
	Cols   int
	Rows   int

	FramesDecoded   int
	FramesPreviewed int
	FramesEncoded   int

	Total   time.Duration
	Decode  time.Duration
	Convert time.Duration
	Deliver time.Duration

	Resources system.ResourceSnapshot
}

// EffectiveFPS - число обработанных кадров источника в секунду реального времени.
func (r Report) EffectiveFPS() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.FramesDecoded) / r.Total.Seconds()
}

func (r Report) String() string {
	return fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Job: %s\n"+
			"Source: %dx%d @ %.2f FPS (%s)\n"+
			"Grid: %dx%d\n"+
			"Frames: %d decoded | %d previewed | %d encoded\n"+
			"Total Time: %.2fs\n"+
			"Decode: %.2fs\n"+
			"Convert: %.2fs\n"+
			"Deliver: %.2fs\n"+
			"Effective FPS: %.2f\n"+
			"Memory (RSS): %.1f MB | CPU: %.1f%% of %d cores\n"+
			"----------------------------\n",
		r.JobID,
		r.Source.Width, r.Source.Height, r.Source.FPS, r.Source.Codec,
		r.Cols, r.Rows,
		r.FramesDecoded, r.FramesPreviewed, r.FramesEncoded,
		r.Total.Seconds(), r.Decode.Seconds(), r.Convert.Seconds(), r.Deliver.Seconds(),
		r.EffectiveFPS(),
		float64(r.Resources.RSS)/(1<<20), r.Resources.CPUPercent, r.Resources.LogicalCPU,
	)
}

package app

import (
	"time"

	"github.com/vkngwrapper/quad/internal/frame"
)

type statsReport struct {
	FPS         float64
	Average     time.Duration
	Max         time.Duration
	Skipped     uint64
	Recreations uint64
}

// frameStats aggregates CPU frame times over an interval. Times come from
// hrtime so the reports stay meaningful at high frame rates.
type frameStats struct {
	interval time.Duration
	since    time.Duration

	frames uint64
	total  time.Duration
	max    time.Duration

	last frame.Stats
}

func newFrameStats(interval, now time.Duration) *frameStats {
	return &frameStats{interval: interval, since: now}
}

// add records one frame. Once per interval it returns a report covering the
// frames since the previous one.
func (s *frameStats) add(elapsed, now time.Duration, engine frame.Stats) (statsReport, bool) {
	if s.interval <= 0 {
		return statsReport{}, false
	}

	s.frames++
	s.total += elapsed
	s.max = max(s.max, elapsed)

	window := now - s.since
	if window < s.interval {
		return statsReport{}, false
	}

	report := statsReport{
		FPS:         float64(s.frames) / window.Seconds(),
		Average:     s.total / time.Duration(s.frames),
		Max:         s.max,
		Skipped:     engine.Skipped - s.last.Skipped,
		Recreations: engine.Recreations - s.last.Recreations,
	}

	s.since = now
	s.frames = 0
	s.total = 0
	s.max = 0
	s.last = engine
	return report, true
}

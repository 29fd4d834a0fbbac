package app

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/common"

	"github.com/vkngwrapper/quad/internal/window"
)

// idleWait is how long the loop sleeps between polls while nothing can be
// drawn.
const idleWait = 10 * time.Millisecond

func (a *App) loop(ctx context.Context) error {
	interval := a.cfg.FrameInterval()
	stats := newFrameStats(a.cfg.StatsInterval, hrtime.Now())

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("shutting down", slog.String("reason", context.Cause(ctx).Error()))
			return nil
		default:
		}

		for _, event := range a.window.Poll() {
			switch event.Kind {
			case window.Close:
				return nil
			case window.Minimized:
				a.engine.Resize(0, 0)
			case window.Resized, window.Restored:
				a.engine.Resize(event.Width, event.Height)
			}
		}

		if a.engine.Minimized() {
			// Only counts the skipped frame.
			if err := a.engine.Draw(); err != nil {
				return errors.Wrap(err, "draw frame")
			}
			time.Sleep(idleWait)
			continue
		}

		frameStart := hrtime.Now()
		if a.cfg.Spin {
			var err error
			a.scene.PushConstants, err = encodeMatrix(spin(hrtime.Since(a.start)))
			if err != nil {
				return err
			}
		}

		if err := a.engine.Draw(); err != nil {
			return errors.Wrap(err, "draw frame")
		}

		elapsed := hrtime.Since(frameStart)
		if report, ok := stats.add(elapsed, hrtime.Now(), a.engine.Stats()); ok {
			a.logger.Info("frame stats",
				slog.Float64("fps", report.FPS),
				slog.Duration("avg", report.Average),
				slog.Duration("max", report.Max),
				slog.Uint64("skipped", report.Skipped),
				slog.Uint64("recreations", report.Recreations))
		}

		if wait := remaining(interval, elapsed); wait > 0 {
			time.Sleep(wait)
		}
	}
}

// remaining is how long to sleep after a frame that took elapsed to keep at
// most one frame per interval.
func remaining(interval, elapsed time.Duration) time.Duration {
	if interval <= 0 || elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

// spin is a rotation about Z by a quarter turn per second.
func spin(t time.Duration) mgl32.Mat4 {
	angle := math.Mod(t.Seconds(), 4.0) * math.Pi / 2.0
	return mgl32.HomogRotate3DZ(float32(angle))
}

func encodeMatrix(m mgl32.Mat4) ([]byte, error) {
	b, err := binary.Append(make([]byte, 0, pushConstantSize), common.ByteOrder, m)
	if err != nil {
		return nil, errors.Wrap(err, "encode push constants")
	}
	return b, nil
}

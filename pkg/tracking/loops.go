package tracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensky-to/agent-sub001/pkg/sim"
)

// runLoop drains one telemetry queue completely, then sleeps for the
// configured loop interval. Pairs are processed in arrival order; a panic in
// rule code skips the pair instead of killing the loop.
func runLoop[T any](ctx context.Context, t *Tracker, name string, q *pairQueue[T], fn func(p sim.Pair[T])) {
	defer t.wg.Done()

	interval := t.cfg.Tracking.LoopInterval.Std()
	if interval <= 0 {
		interval = sim.DefaultSampleInterval
	}

	for !t.closing.Load() {
		for {
			p, ok := q.TryDequeue()
			if !ok {
				break
			}
			processPair(name, p, fn)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func processPair[T any](name string, p sim.Pair[T], fn func(p sim.Pair[T])) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("telemetry processing panic", "stream", name, "panic", r)
		}
	}()

	if p.Sentinel() {
		// First fill after (re)connect, nothing to compare against yet.
		return
	}
	if !p.Valid() {
		slog.Warn("dropping malformed telemetry pair", "stream", name)
		return
	}
	fn(p)
}

package engine

import "time"

type perfState struct {
	ema    float64 // seconds
	primed bool
	pinned bool
}

// autoPerf smooths the frame time and, when a budget is set, toggles reduced
// mode with hysteresis.
func (e *Engine) autoPerf(dt time.Duration) {
	cfg := e.cfg.Perf
	if dt <= 0 {
		return
	}

	x := dt.Seconds()
	if !e.perf.primed {
		e.perf.ema, e.perf.primed = x, true
	} else {
		alpha := cfg.Smoothing
		if alpha <= 0 || alpha > 1 {
			alpha = 0.1
		}
		e.perf.ema += alpha * (x - e.perf.ema)
	}

	if cfg.AutoBudget <= 0 || e.perf.pinned {
		return
	}
	budget := cfg.AutoBudget.Seconds()
	switch {
	case !e.sched.Reduced() && e.perf.ema > budget:
		e.setReduced(true)
	case e.sched.Reduced() && e.perf.ema < budget*cfg.Recover:
		e.setReduced(false)
	}
}

// FrameTimeAverage returns the smoothed frame time as of the last publish.
// Safe from any goroutine.
func (e *Engine) FrameTimeAverage() time.Duration {
	return e.Snapshot().FrameTime
}

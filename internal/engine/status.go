package engine

import (
	"time"

	"github.com/lootquest/arengine/pkg/core"
)

// Status is a point-in-time view of the engine, published at the end of every
// call so other goroutines can read it without touching engine state.
type Status struct {
	Frame            uint64               `json:"frame"`
	Elapsed          time.Duration        `json:"elapsed"`
	FrameTime        time.Duration        `json:"frameTime"`
	Reduced          bool                 `json:"reduced"`
	Entities         int                  `json:"entities"`
	Collected        int                  `json:"collected"`
	Focused          string               `json:"focused,omitempty"`
	Summoning        string               `json:"summoning,omitempty"`
	SummonProgress   float64              `json:"summonProgress,omitempty"`
	SummonInput      bool                 `json:"summonInput"`
	PlacementPending bool                 `json:"placementPending"`
	Placement        core.PlacementReport `json:"placement"`
	Reference        *core.GeoCoord       `json:"reference,omitempty"`
}

func (e *Engine) publish() {
	s := Status{
		Frame:            e.sched.Frame(),
		Elapsed:          e.elapsed,
		FrameTime:        time.Duration(e.perf.ema * float64(time.Second)),
		Reduced:          e.sched.Reduced(),
		Entities:         e.reg.Len(),
		Collected:        e.collected,
		SummonInput:      e.summonInput,
		PlacementPending: e.planner.Pending(),
		Placement:        e.planner.LastReport(),
	}
	if h, ok := e.focus.Current(); ok {
		if ent, ok := e.reg.Get(h); ok {
			s.Focused = ent.PinID
		}
	}
	if sess, ok := e.summon.Session(); ok {
		s.Summoning = sess.PinID
		s.SummonProgress = sess.Progress
	}
	if ref, ok := e.planner.Reference(); ok {
		s.Reference = &ref
	}
	// skipped entries are shared with the planner; copy before handing out
	if len(s.Placement.Skipped) > 0 {
		s.Placement.Skipped = append([]core.SkippedLoot(nil), s.Placement.Skipped...)
	}

	e.entities.Store(int64(s.Entities))
	e.statusMu.Lock()
	e.status = s
	e.statusMu.Unlock()
}

// Snapshot returns the last published status. Safe from any goroutine.
func (e *Engine) Snapshot() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

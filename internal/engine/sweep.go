package engine

import (
	"math"

	"github.com/lootquest/arengine/internal/registry"
	"github.com/lootquest/arengine/pkg/core"
)

type nearestState struct {
	ok       bool
	distance float64
	bearing  float64
}

// sweepNearest finds the closest loot in the ground plane and reports its distance
// and bearing clockwise from the camera's flattened forward.
func (e *Engine) sweepNearest() {
	var (
		best  *registry.Entity
		bestD float64
	)
	e.reg.Each(func(_ registry.Handle, ent *registry.Entity) bool {
		d := core.PlanarDistance(ent.Position, e.player)
		if best == nil || d < bestD {
			best, bestD = ent, d
		}
		return true
	})

	if best == nil {
		if e.nearest.ok {
			e.nearest = nearestState{}
			e.host.OnNearestChanged(0, 0, false)
		}
		return
	}

	to := best.Position.Sub(e.player).Flat()
	var ref float64
	if fwd := e.forward.Flat(); fwd.LenSq() > 0 {
		ref = core.Heading(fwd)
	}
	bearing := core.NormalizeAngle(core.Heading(to) - ref)

	n := e.nearest
	if n.ok &&
		math.Abs(bestD-n.distance) <= e.cfg.Nearest.DistanceEpsilon &&
		angleDiff(bearing, n.bearing) <= e.cfg.Nearest.BearingEpsilon {
		return
	}
	e.nearest = nearestState{ok: true, distance: bestD, bearing: bearing}
	e.host.OnNearestChanged(bestD, bearing, true)
}

// angleDiff is the smallest absolute difference between two angles.
func angleDiff(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}

// sparkle asks the host to sparkle a few nearby idle entities, rotating through
// the registry across calls.
func (e *Engine) sparkle() {
	if e.sparkler == nil || e.cfg.Decor.MaxPerTick <= 0 {
		return
	}
	n := e.reg.Len()
	if n == 0 {
		return
	}
	if e.decorCursor >= n {
		e.decorCursor = 0
	}

	sent, i := 0, 0
	for ; i < n && sent < e.cfg.Decor.MaxPerTick; i++ {
		_, ent := e.reg.At((e.decorCursor + i) % n)
		if ent.Summoned {
			continue
		}
		if e.cfg.Decor.Range > 0 && core.PlanarDistance(ent.Position, e.player) > e.cfg.Decor.Range {
			continue
		}
		e.sparkler.Sparkle(ent.Node)
		sent++
	}
	e.decorCursor = (e.decorCursor + i) % n
}

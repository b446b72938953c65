// Package focus picks the loot the player is looking at.
package focus

import (
	"math"
	"time"

	"github.com/lootquest/arengine/internal/registry"
	"github.com/lootquest/arengine/pkg/core"
)

// Config tunes focus selection.
type Config struct {
	// Range is the maximum distance of a focus candidate.
	Range float64
	// HalfAngle is the cone half-angle around forward, in radians.
	HalfAngle float64
	// TieAngle is the angular window in which the nearer candidate wins, in radians.
	TieAngle float64
	// Flatten ignores height for both forward and candidate directions.
	Flatten bool
	// MinInterval is the minimum time between evaluations.
	MinInterval time.Duration
	// DistanceEpsilon re-notifies an unchanged target when its distance moves this much.
	DistanceEpsilon float64
}

func DefaultConfig() Config {
	return Config{
		Range:           5,
		HalfAngle:       8 * math.Pi / 180,
		TieAngle:        0.5 * math.Pi / 180,
		MinInterval:     100 * time.Millisecond,
		DistanceEpsilon: 0.05,
	}
}

// intervalSlack absorbs frame-time rounding so a 6-frame cadence at 60 fps is not throttled.
const intervalSlack = time.Millisecond

// Detector tracks the current focus. At most one entity is focused at a time.
type Detector struct {
	cfg       Config
	reg       *registry.Registry
	host      core.Host
	highlight core.FocusHighlighter

	current  registry.Handle
	has      bool
	distance float64

	evaluated bool
	last      time.Duration
}

func New(cfg Config, reg *registry.Registry, host core.Host) *Detector {
	d := &Detector{cfg: cfg, reg: reg, host: host}
	if hl, ok := host.(core.FocusHighlighter); ok {
		d.highlight = hl
	}
	return d
}

// Current returns the focused entity, if it is still live.
func (d *Detector) Current() (registry.Handle, bool) {
	if !d.has || !d.reg.Contains(d.current) {
		return registry.Handle{}, false
	}
	return d.current, true
}

// Update re-evaluates focus at time now. Calls closer together than MinInterval
// are ignored. Returns true if an evaluation ran.
func (d *Detector) Update(now time.Duration, player, forward core.Vec3) bool {
	if d.evaluated && now-d.last+intervalSlack < d.cfg.MinInterval {
		return false
	}
	d.evaluated = true
	d.last = now

	best, dist, found := d.selectCandidate(player, forward)
	d.apply(best, dist, found)
	return true
}

func (d *Detector) selectCandidate(player, forward core.Vec3) (registry.Handle, float64, bool) {
	fwd := forward
	if d.cfg.Flatten {
		fwd = fwd.Flat()
	}
	if fwd.LenSq() == 0 {
		return registry.Handle{}, 0, false
	}

	type candidate struct {
		h     registry.Handle
		angle float64
		dist  float64
	}
	var (
		cands    []candidate
		minAngle = math.Inf(1)
	)
	d.reg.Each(func(h registry.Handle, e *registry.Entity) bool {
		if e.Collected {
			return true
		}
		to := e.Position.Sub(player)
		if d.cfg.Flatten {
			to = to.Flat()
		}
		dist := to.Len()
		if dist > d.cfg.Range {
			return true
		}
		angle := core.AngleBetween(fwd, to)
		if angle > d.cfg.HalfAngle {
			return true
		}
		cands = append(cands, candidate{h, angle, dist})
		minAngle = math.Min(minAngle, angle)
		return true
	})

	// nearest among everything within TieAngle of the smallest deviation;
	// exact distance ties go to the smaller angle
	var best candidate
	found := false
	for _, c := range cands {
		if c.angle > minAngle+d.cfg.TieAngle {
			continue
		}
		if !found || c.dist < best.dist || (c.dist == best.dist && c.angle < best.angle) {
			best, found = c, true
		}
	}
	return best.h, best.dist, found
}

func (d *Detector) apply(next registry.Handle, dist float64, found bool) {
	prev, hadPrev := d.current, d.has
	prevLive := hadPrev && d.reg.Contains(prev)

	if found && prevLive && prev == next {
		if math.Abs(dist-d.distance) > d.cfg.DistanceEpsilon {
			d.notify(next, dist)
		}
		return
	}
	if !found && !hadPrev {
		return
	}

	// clear the previous visual before marking the new one
	if prevLive {
		if e, ok := d.reg.Get(prev); ok {
			e.Focused = false
			if d.highlight != nil {
				d.highlight.SetHighlight(e.Node, false)
			}
		}
	}

	if !found {
		d.current, d.has, d.distance = registry.Handle{}, false, 0
		d.host.OnFocusChanged("", 0, false)
		return
	}

	e, _ := d.reg.Get(next)
	e.Focused = true
	if d.highlight != nil {
		d.highlight.SetHighlight(e.Node, true)
	}
	d.current, d.has = next, true
	d.notify(next, dist)
}

func (d *Detector) notify(h registry.Handle, dist float64) {
	e, ok := d.reg.Get(h)
	if !ok {
		return
	}
	d.distance = dist
	d.host.OnFocusChanged(e.PinID, dist, true)
}

// Reset drops the current focus before every entity is removed and tells the host
// focus cleared. Highlights are not touched. The next Update runs immediately.
func (d *Detector) Reset() {
	d.evaluated = false
	if d.has {
		d.has = false
		d.current = registry.Handle{}
		d.host.OnFocusChanged("", 0, false)
	}
}

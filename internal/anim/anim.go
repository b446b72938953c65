// Package anim drives the idle bob and spin of placed loot.
package anim

import (
	"math"
	"time"

	"github.com/lootquest/arengine/internal/registry"
	"github.com/lootquest/arengine/pkg/core"
)

// Config tunes the idle animation.
type Config struct {
	// Amplitude is the vertical bob amplitude.
	Amplitude float64
	// Period is the length of one bob cycle.
	Period time.Duration
	// SpinPerPeriod is the yaw turned per bob cycle, in radians.
	SpinPerPeriod float64
	// Stagger offsets the phase per entity order so loot does not bob in lockstep.
	Stagger float64
}

func DefaultConfig() Config {
	return Config{
		Amplitude:     0.15,
		Period:        2 * time.Second,
		SpinPerPeriod: math.Pi,
	}
}

// Driver computes transforms from elapsed time only, never from the previous
// transform, so the same elapsed time always yields the same pose.
type Driver struct {
	cfg  Config
	reg  *registry.Registry
	host core.Host
}

func New(cfg Config, reg *registry.Registry, host core.Host) *Driver {
	if cfg.Period <= 0 {
		cfg.Period = 2 * time.Second
	}
	return &Driver{cfg: cfg, reg: reg, host: host}
}

// Pose returns the animated transform of e at elapsed time t.
func (d *Driver) Pose(e *registry.Entity, t time.Duration) (core.Vec3, core.Quat) {
	cycles := t.Seconds() / d.cfg.Period.Seconds()
	phase := 2*math.Pi*cycles + float64(e.Order)*d.cfg.Stagger

	pos := e.RestPosition
	pos.Y += d.cfg.Amplitude * math.Sin(phase)

	// spin about world up, applied after the baseline orientation
	spin := math.Mod(d.cfg.SpinPerPeriod*cycles, 2*math.Pi)
	rot := core.QuatYaw(spin).Mul(e.BaseOrientation)
	return pos, rot
}

// Apply poses every idle entity at elapsed time t. Summoned entities are skipped.
func (d *Driver) Apply(t time.Duration) int {
	n := 0
	d.reg.Each(func(_ registry.Handle, e *registry.Entity) bool {
		if e.Collected || e.Summoned {
			return true
		}
		pos, rot := d.Pose(e, t)
		e.Position = pos
		e.Rotation = rot
		e.Scale = e.BaseScale
		d.host.SetTransform(e.Node, pos, rot, e.Scale)
		n++
		return true
	})
	return n
}

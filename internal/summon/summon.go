// Package summon pulls the focused loot toward the player and collects it on arrival.
package summon

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lootquest/arengine/internal/collect"
	"github.com/lootquest/arengine/internal/registry"
	"github.com/lootquest/arengine/pkg/core"
)

// CancelPolicy decides where a summoned entity ends up when the input ends early.
type CancelPolicy uint8

const (
	// SnapBack restores the position and scale captured at summon start.
	SnapBack CancelPolicy = iota
	// StayInPlace leaves the entity at its in-flight transform, which becomes its new rest pose.
	StayInPlace
)

func (p CancelPolicy) String() string {
	switch p {
	case SnapBack:
		return "snap_back"
	case StayInPlace:
		return "stay_in_place"
	}
	return "unknown"
}

// ParseCancelPolicy accepts "snap_back"/"snapback" and "stay_in_place"/"stay".
func ParseCancelPolicy(s string) (CancelPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "snap_back", "snapback", "snap-back", "":
		return SnapBack, nil
	case "stay_in_place", "stayinplace", "stay-in-place", "stay":
		return StayInPlace, nil
	}
	return SnapBack, fmt.Errorf("unknown cancel policy %q", s)
}

// Config tunes summon motion.
type Config struct {
	MinSpeed float64 // units/sec at the start of the flight
	MaxSpeed float64 // units/sec on arrival
	// MaxScale is the scale multiplier reached on arrival.
	MaxScale float64
	// CollectThreshold is the arrival distance. Larger than the ambient threshold.
	CollectThreshold float64
}

// DefaultConfig returns the standard summon feel.
func DefaultConfig() Config {
	return Config{
		MinSpeed:         0.3,
		MaxSpeed:         4.0,
		MaxScale:         3.0,
		CollectThreshold: 0.6,
	}
}

// Session is one active summon.
type Session struct {
	Target           registry.Handle
	PinID            string
	OriginalPosition core.Vec3
	OriginalRotation core.Quat
	OriginalScale    float64
	OriginalDistance float64
	Started          time.Duration
	Progress         float64
}

// Controller runs the Idle -> Summoning -> Collected|Idle state machine.
// At most one session exists at a time.
type Controller struct {
	cfg  Config
	reg  *registry.Registry
	host core.Host
	coll *collect.Collector
	log  *slog.Logger

	session *Session
}

func New(cfg Config, reg *registry.Registry, host core.Host, coll *collect.Collector, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{cfg: cfg, reg: reg, host: host, coll: coll, log: log}
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	return c.session != nil
}

// Target returns the handle being summoned.
func (c *Controller) Target() (registry.Handle, bool) {
	if c.session == nil {
		return registry.Handle{}, false
	}
	return c.session.Target, true
}

// Session returns a copy of the active session.
func (c *Controller) Session() (Session, bool) {
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Start begins summoning target. Starting the entity already in flight is a no-op;
// a different target first ends the running session with policy.
func (c *Controller) Start(target registry.Handle, player core.Vec3, now time.Duration, policy CancelPolicy) bool {
	if c.session != nil {
		if c.session.Target == target {
			return false
		}
		c.Stop(policy)
	}

	e, ok := c.reg.Get(target)
	if !ok {
		return false
	}

	e.Summoned = true
	c.session = &Session{
		Target:           target,
		PinID:            e.PinID,
		OriginalPosition: e.Position,
		OriginalRotation: e.Rotation,
		OriginalScale:    e.Scale,
		OriginalDistance: core.Distance(e.Position, player),
		Started:          now,
	}
	c.log.Debug("summon started", "pin", e.PinID, "distance", c.session.OriginalDistance)
	return true
}

// Stop cancels the running session. Safe to call at any time; returns false if idle.
func (c *Controller) Stop(policy CancelPolicy) bool {
	s := c.session
	if s == nil {
		return false
	}
	c.session = nil

	e, ok := c.reg.Get(s.Target)
	if !ok {
		return true
	}
	e.Summoned = false

	switch policy {
	case StayInPlace:
		e.RestPosition = e.Position
		e.BaseScale = e.Scale
	default:
		e.Position = s.OriginalPosition
		e.Rotation = s.OriginalRotation
		e.Scale = s.OriginalScale
		c.host.SetTransform(e.Node, e.Position, e.Rotation, e.Scale)
	}
	c.log.Debug("summon cancelled", "pin", s.PinID, "policy", policy.String(), "progress", s.Progress)
	return true
}

// Abandon drops the session without touching the entity, for when the entity is
// about to be removed anyway.
func (c *Controller) Abandon() {
	c.session = nil
}

// Tick advances the flight by dt. Returns true if the entity was collected.
func (c *Controller) Tick(player core.Vec3, dt time.Duration) bool {
	s := c.session
	if s == nil {
		return false
	}
	e, ok := c.reg.Get(s.Target)
	if !ok {
		c.session = nil
		return false
	}

	toPlayer := player.Sub(e.Position)
	remaining := toPlayer.Len()
	if remaining < c.cfg.CollectThreshold {
		return c.arrive()
	}

	eased := c.progress(remaining)
	eased = eased * eased * eased

	speed := lerp(c.cfg.MinSpeed, c.cfg.MaxSpeed, eased)
	step := speed * dt.Seconds()
	if step > remaining {
		step = remaining
	}

	e.Position = e.Position.Add(toPlayer.Scale(step / remaining))
	e.Scale = s.OriginalScale * lerp(1, c.cfg.MaxScale, eased)
	c.host.SetTransform(e.Node, e.Position, e.Rotation, e.Scale)

	remaining = core.Distance(e.Position, player)
	s.Progress = c.progress(remaining)
	if remaining < c.cfg.CollectThreshold {
		return c.arrive()
	}
	return false
}

// progress is how far along the flight the entity is, in [0,1].
func (c *Controller) progress(remaining float64) float64 {
	span := c.session.OriginalDistance - c.cfg.CollectThreshold
	if span <= 0 {
		return 1
	}
	p := 1 - remaining/span
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func (c *Controller) arrive() bool {
	s := c.session
	c.session = nil
	if _, ok := c.coll.Collect(s.Target, collect.SourceSummon); !ok {
		return false
	}
	return true
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Package engine wires the placement, focus, summon, collection and animation
// subsystems behind the host-facing frame callback.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lootquest/arengine/internal/anim"
	"github.com/lootquest/arengine/internal/cache"
	"github.com/lootquest/arengine/internal/collect"
	"github.com/lootquest/arengine/internal/focus"
	"github.com/lootquest/arengine/internal/geo"
	"github.com/lootquest/arengine/internal/placement"
	"github.com/lootquest/arengine/internal/registry"
	"github.com/lootquest/arengine/internal/scheduler"
	"github.com/lootquest/arengine/internal/summon"
	"github.com/lootquest/arengine/pkg/core"
	"go.opentelemetry.io/otel/metric"
)

// ErrNoHost is returned by New without a scene host.
var ErrNoHost = errors.New("engine needs a host")

// Assets is the asset-cache service the engine drives.
type Assets interface {
	placement.Assets
	Drain() []core.LootKind
	MarkReady(kind core.LootKind, model cache.Model) bool
	MarkFailed(kind core.LootKind, cause error)
}

// Dependencies holds the engine's collaborators
type Dependencies struct {
	Host core.Host
	// Assets defaults to a host-driven cache fed by OnAssetReady/OnAssetFailed.
	Assets    Assets
	Projector geo.Projector
	Logger    *slog.Logger
}

// Engine is driven by the host frame callback. Every method except Snapshot,
// Frame and Reduced must be called from that single simulation context.
type Engine struct {
	cfg      Config
	host     core.Host
	log      *slog.Logger
	sparkler core.Sparkler

	reg     *registry.Registry
	assets  Assets
	planner *placement.Planner
	coll    *collect.Collector
	scan    *collect.Monitor
	focus   *focus.Detector
	summon  *summon.Controller
	anim    *anim.Driver
	sched   *scheduler.Scheduler

	elapsed     time.Duration
	player      core.Vec3
	forward     core.Vec3
	summonInput bool
	collected   int

	nearest     nearestState
	decorCursor int
	perf        perfState

	// read from other goroutines
	frame    atomic.Uint64
	reduced  atomic.Bool
	entities atomic.Int64

	statusMu sync.RWMutex
	status   Status

	frames metric.Int64Counter
}

func New(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Host == nil {
		return nil, ErrNoHost
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Assets == nil {
		deps.Assets = cache.NewAssetCache(context.Background(), nil, cache.Options{}, deps.Logger)
	}

	e := &Engine{
		cfg:    cfg,
		host:   deps.Host,
		log:    deps.Logger,
		reg:    registry.New(),
		assets: deps.Assets,
	}
	if sp, ok := deps.Host.(core.Sparkler); ok {
		e.sparkler = sp
	}

	var err error
	e.coll, err = collect.NewCollector(e.host, e.reg, e.log)
	if err != nil {
		return nil, err
	}
	e.coll.OnCollect(func(registry.Entity, collect.Source) {
		e.collected++
	})

	e.sched, err = scheduler.New(cfg.Intervals)
	if err != nil {
		return nil, err
	}
	e.sched.SetReduced(cfg.Reduced)
	e.reduced.Store(cfg.Reduced)

	e.scan = collect.NewMonitor(cfg.Collect, e.reg, e.coll)
	e.focus = focus.New(cfg.Focus, e.reg, e.host)
	e.summon = summon.New(cfg.Summon, e.reg, e.host, e.coll, e.log)
	// the flight owns its target until arrival
	e.scan.Exclude = func(h registry.Handle) bool {
		t, ok := e.summon.Target()
		return ok && t == h
	}
	e.anim = anim.New(cfg.Anim, e.reg, e.host)
	e.planner = placement.New(cfg.Placement, placement.Dependencies{
		Host:        e.host,
		Registry:    e.reg,
		Assets:      e.assets,
		Projector:   deps.Projector,
		Logger:      e.log,
		BeforeClear: e.beforeClear,
	})

	if err := e.initMetrics(); err != nil {
		return nil, err
	}
	e.publish()
	return e, nil
}

func (e *Engine) initMetrics() error {
	m := meter()

	var err error
	e.frames, err = m.Int64Counter(
		"engine.frames",
		metric.WithDescription("Total frames ticked"),
	)
	if err != nil {
		return fmt.Errorf("creating frames counter: %w", err)
	}

	entities, err := m.Int64ObservableGauge(
		"engine.entities",
		metric.WithDescription("Current number of placed loot entities"),
	)
	if err != nil {
		return fmt.Errorf("creating entities gauge: %w", err)
	}
	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(entities, e.entities.Load())
			return nil
		},
		entities,
	)
	if err != nil {
		return fmt.Errorf("registering entities callback: %w", err)
	}
	return nil
}

// OnTick runs one frame. forward is the camera's forward direction, dt the time
// since the previous frame.
func (e *Engine) OnTick(camera, forward core.Vec3, dt time.Duration) {
	if dt < 0 {
		dt = 0
	}
	e.elapsed += dt
	e.player = camera
	e.forward = forward

	if settled := e.assets.Drain(); len(settled) > 0 {
		e.log.Debug("assets settled", "kinds", len(settled))
	}
	if e.planner.Pending() {
		e.planner.Retry()
	}

	e.autoPerf(dt)
	due := e.sched.Advance()
	e.frame.Store(e.sched.Frame())

	if e.cfg.SustainedSummon && e.summonInput && !e.summon.Active() {
		e.startSummon()
	}
	if due.Has(scheduler.TaskSummon) {
		e.summon.Tick(camera, dt)
	}
	if due.Has(scheduler.TaskAnim) {
		e.anim.Apply(e.elapsed)
	}
	if due.Has(scheduler.TaskFocus) {
		e.focus.Update(e.elapsed, camera, forward)
	}
	if due.Has(scheduler.TaskCollect) {
		e.scan.Scan(camera)
	}
	if due.Has(scheduler.TaskNearest) {
		e.sweepNearest()
	}
	if due.Has(scheduler.TaskDecor) {
		e.sparkle()
	}

	// an active summon moves fast; check collection every frame while it runs
	e.sched.Force(scheduler.TaskCollect, e.summon.Active())
	e.frames.Add(context.Background(), 1)
	e.publish()
}

// OnSummonInputChanged starts a summon on the current focus when input becomes
// active, and cancels the running session with the configured policy when it ends.
func (e *Engine) OnSummonInputChanged(active bool) {
	e.summonInput = active
	if active {
		e.startSummon()
	} else {
		e.summon.Stop(e.cfg.CancelPolicy)
	}
	e.sched.Force(scheduler.TaskCollect, e.summon.Active())
	e.publish()
}

// StopSummon cancels the running session with an explicit policy.
func (e *Engine) StopSummon(policy summon.CancelPolicy) bool {
	stopped := e.summon.Stop(policy)
	e.sched.Force(scheduler.TaskCollect, e.summon.Active())
	e.publish()
	return stopped
}

func (e *Engine) startSummon() bool {
	h, ok := e.focus.Current()
	if !ok {
		return false
	}
	return e.summon.Start(h, e.player, e.elapsed, e.cfg.CancelPolicy)
}

// OnHuntDataChanged places a new descriptor set. Identical sets are ignored.
func (e *Engine) OnHuntDataChanged(huntType core.HuntType, descriptors []core.LootDescriptor, reference *core.GeoCoord) placement.Outcome {
	out := e.planner.Place(placement.Request{
		HuntType:    huntType,
		Descriptors: descriptors,
		Reference:   reference,
	})
	e.publish()
	return out
}

// SetReference sets the session reference point for geolocation hunts.
func (e *Engine) SetReference(ref core.GeoCoord) {
	e.planner.SetReference(ref)
	if e.planner.Pending() {
		e.planner.Retry()
	}
	e.publish()
}

// OnAssetReady records a host-loaded model for kind and retries pending placement.
func (e *Engine) OnAssetReady(kind core.LootKind, model cache.Model) {
	if e.assets.MarkReady(kind, model) {
		e.log.Debug("asset ready", "kind", kind.String())
	}
	if e.planner.Pending() {
		e.planner.Retry()
	}
	e.publish()
}

// OnAssetFailed records a terminal asset failure reported by the host.
func (e *Engine) OnAssetFailed(kind core.LootKind, cause error) {
	e.assets.MarkFailed(kind, cause)
	e.log.Warn("asset failed", "kind", kind.String(), "error", cause)
	if e.planner.Pending() {
		e.planner.Retry()
	}
	e.publish()
}

// ClearHunt removes every placed entity and forgets the current descriptor set.
func (e *Engine) ClearHunt() {
	e.planner.Clear()
	e.publish()
}

// SetReducedPerformance switches reduced-performance mode explicitly. It also
// turns off automatic switching for the rest of the session.
func (e *Engine) SetReducedPerformance(on bool) {
	e.perf.pinned = true
	e.setReduced(on)
	e.publish()
}

func (e *Engine) setReduced(on bool) {
	if e.sched.Reduced() == on {
		return
	}
	e.sched.SetReduced(on)
	e.reduced.Store(on)
	e.log.Info("performance mode changed", "reduced", on)
}

// OnCollect registers a hook run after every collection, on the simulation context.
func (e *Engine) OnCollect(h collect.Hook) {
	e.coll.OnCollect(h)
}

// Frame returns the current frame number. Safe from any goroutine.
func (e *Engine) Frame() uint64 {
	return e.frame.Load()
}

// Reduced reports reduced-performance mode. Safe from any goroutine.
func (e *Engine) Reduced() bool {
	return e.reduced.Load()
}

// beforeClear releases per-entity state ahead of a clear-and-replace.
func (e *Engine) beforeClear() {
	e.summon.Abandon()
	e.focus.Reset()
	e.scan.Reset()
	e.sched.Force(scheduler.TaskCollect, false)
	e.decorCursor = 0
	if e.nearest.ok {
		e.host.OnNearestChanged(0, 0, false)
	}
	e.nearest = nearestState{}
}

// Package bridge maps string commands from the host onto engine calls.
// Every command that touches engine state runs on one dispatcher lane, so the
// engine only ever sees a single simulation context.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lootquest/arengine/internal/cache"
	"github.com/lootquest/arengine/internal/dispatcher"
	"github.com/lootquest/arengine/internal/parser"
	"github.com/lootquest/arengine/internal/placement"
	"github.com/lootquest/arengine/internal/session"
	"github.com/lootquest/arengine/internal/summon"
	"github.com/lootquest/arengine/pkg/core"
)

// Command names understood by the bridge.
const (
	CmdTick        = ":TICK:"
	CmdSummon      = ":SUMMON:"
	CmdHunt        = ":HUNT:"
	CmdHuntClear   = ":HUNT:CLEAR:"
	CmdReference   = ":REFERENCE:"
	CmdAssetReady  = ":ASSET:READY:"
	CmdAssetFailed = ":ASSET:FAILED:"
	CmdPerf        = ":PERF:"
	CmdStatus      = ":STATUS:"
)

// SimLane is the dispatcher lane engine commands share.
const SimLane = "sim"

// ErrAssetFailed wraps the host-reported cause of a failed asset load.
var ErrAssetFailed = errors.New("asset load failed")

// Engine is the inbound engine surface the bridge drives.
type Engine interface {
	OnTick(camera, forward core.Vec3, dt time.Duration)
	OnSummonInputChanged(active bool)
	StopSummon(policy summon.CancelPolicy) bool
	OnHuntDataChanged(huntType core.HuntType, descriptors []core.LootDescriptor, reference *core.GeoCoord) placement.Outcome
	SetReference(ref core.GeoCoord)
	OnAssetReady(kind core.LootKind, model cache.Model)
	OnAssetFailed(kind core.LootKind, cause error)
	ClearHunt()
	SetReducedPerformance(on bool)
}

// StatusProvider renders the status report.
type StatusProvider interface {
	GetStatus() (string, error)
}

// Dependencies holds all dependencies for the bridge
type Dependencies struct {
	Engine  Engine
	Parser  *parser.Parser
	Session *session.Context
	Status  StatusProvider
	Logger  *slog.Logger
	// QueueSize bounds the sim lane; 0 picks a default.
	QueueSize int
}

// Manager owns the command handlers.
type Manager struct {
	deps Dependencies
}

// NewManager creates a new bridge manager
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(deps.Logger)
	}
	if deps.QueueSize <= 0 {
		deps.QueueSize = 1024
	}
	return &Manager{deps: deps}
}

// RegisterHandlers registers all command handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	sim := []dispatcher.Option{
		dispatcher.Buffered(m.deps.QueueSize),
		dispatcher.Lane(SimLane),
		dispatcher.Blocking(),
	}
	logged := append(append([]dispatcher.Option(nil), sim...), dispatcher.Logged())

	// Frame callback - high volume, not logged
	d.Register(CmdTick, m.handleTick, sim...)

	d.Register(CmdSummon, m.handleSummon, logged...)
	d.Register(CmdHunt, m.handleHunt, logged...)
	d.Register(CmdHuntClear, m.handleHuntClear, logged...)
	d.Register(CmdReference, m.handleReference, logged...)
	d.Register(CmdAssetReady, m.handleAssetReady, logged...)
	d.Register(CmdAssetFailed, m.handleAssetFailed, logged...)
	d.Register(CmdPerf, m.handlePerf, logged...)

	// Status reads the published snapshot - sync
	if m.deps.Status != nil {
		d.Register(CmdStatus, m.handleStatus)
	}
}

func (m *Manager) handleTick(e dispatcher.Event) (any, error) {
	tick, err := m.deps.Parser.ParseTick(e.Args)
	if err != nil {
		return nil, err
	}
	m.deps.Engine.OnTick(tick.Camera, tick.Forward, tick.DT)
	return nil, nil
}

func (m *Manager) handleSummon(e dispatcher.Event) (any, error) {
	s, err := m.deps.Parser.ParseSummon(e.Args)
	if err != nil {
		return nil, err
	}
	if s.Stop {
		return m.deps.Engine.StopSummon(s.Policy), nil
	}
	m.deps.Engine.OnSummonInputChanged(s.Active)
	return nil, nil
}

func (m *Manager) handleHunt(e dispatcher.Event) (any, error) {
	h, err := m.deps.Parser.ParseHunt(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to apply hunt data: %w", err)
	}

	outcome := m.deps.Engine.OnHuntDataChanged(h.Type, h.Descriptors, h.Reference)
	if m.deps.Session != nil {
		if h.Reference != nil {
			m.deps.Session.SetReference(*h.Reference)
		}
		if outcome != placement.OutcomeUnchanged {
			m.deps.Session.SetHunt(session.Hunt{
				Key:         placement.Key(h.Type, h.Descriptors),
				Type:        h.Type,
				Descriptors: len(h.Descriptors),
				Applied:     e.Timestamp,
			})
		}
	}
	m.deps.Logger.Debug("hunt data applied", "type", h.Type, "outcome", outcome)
	return outcome.String(), nil
}

func (m *Manager) handleHuntClear(e dispatcher.Event) (any, error) {
	m.deps.Engine.ClearHunt()
	if m.deps.Session != nil {
		m.deps.Session.ClearHunt()
	}
	return nil, nil
}

func (m *Manager) handleReference(e dispatcher.Event) (any, error) {
	ref, err := m.deps.Parser.ParseReference(e.Args)
	if err != nil {
		return nil, err
	}
	m.deps.Engine.SetReference(ref)
	if m.deps.Session != nil {
		m.deps.Session.SetReference(ref)
	}
	return nil, nil
}

func (m *Manager) handleAssetReady(e dispatcher.Event) (any, error) {
	a, err := m.deps.Parser.ParseAsset(e.Args)
	if err != nil {
		return nil, err
	}
	var model cache.Model = a.Detail
	if a.Detail == "" {
		model = a.Kind.String()
	}
	m.deps.Engine.OnAssetReady(a.Kind, model)
	return nil, nil
}

func (m *Manager) handleAssetFailed(e dispatcher.Event) (any, error) {
	a, err := m.deps.Parser.ParseAsset(e.Args)
	if err != nil {
		return nil, err
	}
	cause := ErrAssetFailed
	if a.Detail != "" {
		cause = fmt.Errorf("%w: %s", ErrAssetFailed, a.Detail)
	}
	m.deps.Engine.OnAssetFailed(a.Kind, cause)
	return nil, nil
}

func (m *Manager) handlePerf(e dispatcher.Event) (any, error) {
	on, err := m.deps.Parser.ParseToggle(e.Args)
	if err != nil {
		return nil, err
	}
	m.deps.Engine.SetReducedPerformance(on)
	return nil, nil
}

func (m *Manager) handleStatus(e dispatcher.Event) (any, error) {
	return m.deps.Status.GetStatus()
}

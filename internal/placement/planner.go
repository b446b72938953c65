// Package placement turns hunt descriptors into scene nodes in the local frame.
package placement

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/lootquest/arengine/internal/bearing"
	"github.com/lootquest/arengine/internal/cache"
	"github.com/lootquest/arengine/internal/geo"
	"github.com/lootquest/arengine/internal/registry"
	"github.com/lootquest/arengine/pkg/core"
)

// ErrMissingReference means a geolocation hunt arrived before the session reference point.
var ErrMissingReference = errors.New("missing reference coordinate")

// Assets is the asset-cache capability the planner needs.
type Assets interface {
	State(kind core.LootKind) cache.AssetState
	Load(kind core.LootKind)
}

// Outcome reports what a Place or Retry call did.
type Outcome uint8

const (
	OutcomeUnchanged        Outcome = iota // same descriptor set already placed
	OutcomePlaced                          // nodes were (re)created
	OutcomeDeferred                        // waiting for assets to load
	OutcomeWaitingReference                // geolocation hunt without a reference point
	OutcomeIdle                            // nothing pending
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomePlaced:
		return "placed"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeWaitingReference:
		return "waiting_reference"
	case OutcomeIdle:
		return "idle"
	}
	return "unknown"
}

// Config holds placement tunables.
type Config struct {
	// Elevation is the fixed Y of placed loot in the local frame.
	Elevation float64
	// FallbackKind supplies the visual for kinds whose asset failed.
	FallbackKind core.LootKind
	// KindScale is the base scale per kind; zero entries mean 1.
	KindScale [core.KindCount]float64
	// FaceOrigin turns each object to face the session origin.
	FaceOrigin bool
}

// Request is one hunt data delivery.
type Request struct {
	HuntType    core.HuntType
	Descriptors []core.LootDescriptor
	Reference   *core.GeoCoord
}

type pending struct {
	req   Request
	key   uint64
	kinds []core.LootKind
	// logged once per pending request
	warnedReference bool
}

// Planner places loot for the current descriptor set. Not safe for concurrent use.
type Planner struct {
	cfg       Config
	host      core.Host
	reg       *registry.Registry
	assets    Assets
	projector geo.Projector
	log       *slog.Logger

	beforeClear func()

	reference *core.GeoCoord
	placed    bool
	placedKey uint64
	pending   *pending
	report    core.PlacementReport
}

// Dependencies holds collaborators for the planner
type Dependencies struct {
	Host      core.Host
	Registry  *registry.Registry
	Assets    Assets
	Projector geo.Projector
	Logger    *slog.Logger
	// BeforeClear runs before existing entities are removed for a replacement.
	BeforeClear func()
}

func New(cfg Config, deps Dependencies) *Planner {
	if deps.Projector == nil {
		deps.Projector = geo.Equirectangular{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Planner{
		cfg:         cfg,
		host:        deps.Host,
		reg:         deps.Registry,
		assets:      deps.Assets,
		projector:   deps.Projector,
		log:         deps.Logger,
		beforeClear: deps.BeforeClear,
	}
}

// SetReference records the session reference point used for geolocation hunts.
func (p *Planner) SetReference(ref core.GeoCoord) {
	r := ref
	p.reference = &r
}

// Reference returns the session reference point, if set.
func (p *Planner) Reference() (core.GeoCoord, bool) {
	if p.reference == nil {
		return core.GeoCoord{}, false
	}
	return *p.reference, true
}

// Pending reports whether a placement is waiting on assets or the reference point.
func (p *Planner) Pending() bool {
	return p.pending != nil
}

// LastReport returns the outcome of the most recent completed placement.
func (p *Planner) LastReport() core.PlacementReport {
	return p.report
}

// Place requests placement of a descriptor set. An identical set that is already
// placed is a no-op; a changed set replaces the previous nodes once it can be placed.
func (p *Planner) Place(req Request) Outcome {
	if req.Reference != nil {
		p.SetReference(*req.Reference)
	}

	key := Key(req.HuntType, req.Descriptors)
	if p.placed && p.placedKey == key {
		// an older, different request may still be waiting; the current set wins
		p.pending = nil
		return OutcomeUnchanged
	}

	if p.pending == nil || p.pending.key != key {
		p.pending = &pending{
			req:   req,
			key:   key,
			kinds: requiredKinds(req.Descriptors),
		}
		p.log.Debug("placement requested",
			"huntType", req.HuntType.String(),
			"descriptors", len(req.Descriptors),
			"key", fmt.Sprintf("%016x", key))
	}
	return p.attempt()
}

// Retry re-attempts a pending placement. Cheap when still blocked: it only checks
// the reference point and per-kind asset state.
func (p *Planner) Retry() Outcome {
	if p.pending == nil {
		return OutcomeIdle
	}
	return p.attempt()
}

func requiredKinds(descriptors []core.LootDescriptor) []core.LootKind {
	var seen [core.KindCount]bool
	var kinds []core.LootKind
	for _, d := range descriptors {
		if d.Kind.Valid() && !seen[d.Kind] {
			seen[d.Kind] = true
			kinds = append(kinds, d.Kind)
		}
	}
	return kinds
}

// resolveVisuals maps each required kind to the kind whose asset will be shown.
// Returns loading=true if anything is still in flight.
func (p *Planner) resolveVisuals(kinds []core.LootKind) (visual [core.KindCount]core.LootKind, usable [core.KindCount]bool, loading bool) {
	for _, k := range kinds {
		switch p.assets.State(k) {
		case cache.AssetReady:
			visual[k], usable[k] = k, true
		case cache.AssetUnloaded:
			p.assets.Load(k)
			loading = true
		case cache.AssetLoading:
			loading = true
		case cache.AssetFailed:
			fb := p.cfg.FallbackKind
			if fb == k || !fb.Valid() {
				continue
			}
			switch p.assets.State(fb) {
			case cache.AssetReady:
				visual[k], usable[k] = fb, true
			case cache.AssetUnloaded:
				p.assets.Load(fb)
				loading = true
			case cache.AssetLoading:
				loading = true
			}
		}
	}
	return visual, usable, loading
}

func (p *Planner) attempt() Outcome {
	pend := p.pending
	req := pend.req

	if req.HuntType == core.HuntGeolocation && p.reference == nil && len(req.Descriptors) > 0 {
		if !pend.warnedReference {
			pend.warnedReference = true
			p.log.Info("geolocation placement waiting for reference point", "error", ErrMissingReference)
		}
		return OutcomeWaitingReference
	}

	visual, usable, loading := p.resolveVisuals(pend.kinds)
	if loading {
		return OutcomeDeferred
	}

	p.clear()

	report := core.PlacementReport{
		Key:       pend.key,
		HuntType:  req.HuntType,
		Requested: len(req.Descriptors),
	}
	skip := func(id, reason string) {
		report.Skipped = append(report.Skipped, core.SkippedLoot{ID: id, Reason: reason})
		p.log.Warn("loot skipped", "pin", id, "reason", reason)
	}

	ordered := make([]core.LootDescriptor, len(req.Descriptors))
	copy(ordered, req.Descriptors)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	for _, d := range ordered {
		if d.ID == "" {
			skip(d.ID, "empty id")
			continue
		}
		if !d.Kind.Valid() {
			skip(d.ID, fmt.Sprintf("unknown kind %d", uint8(d.Kind)))
			continue
		}
		if !usable[d.Kind] {
			skip(d.ID, cache.ErrAssetUnavailable.Error())
			continue
		}

		pos, err := p.localPosition(req.HuntType, d)
		if err != nil {
			skip(d.ID, err.Error())
			continue
		}

		node, err := p.host.AddNode(visual[d.Kind], pos)
		if err != nil {
			skip(d.ID, fmt.Sprintf("add node: %v", err))
			continue
		}
		if owner, taken := p.reg.ByNode(node); taken {
			// the node belongs to a live entity; removing it would orphan that entity
			skip(d.ID, fmt.Sprintf("%v: %d already held by %s", registry.ErrDuplicateNode, node, owner))
			continue
		}

		rot := core.IdentityQuat
		if p.cfg.FaceOrigin {
			rot = faceOrigin(pos)
		}
		scale := p.cfg.KindScale[d.Kind]
		if scale <= 0 {
			scale = 1
		}

		_, err = p.reg.Add(registry.Entity{
			Node:            node,
			PinID:           d.ID,
			Kind:            d.Kind,
			Order:           d.Order,
			RestPosition:    pos,
			BaseOrientation: rot,
			BaseScale:       scale,
			Position:        pos,
			Rotation:        rot,
			Scale:           scale,
		})
		if err != nil {
			if !errors.Is(err, registry.ErrDuplicateNode) {
				p.host.RemoveNode(node)
			}
			skip(d.ID, err.Error())
			continue
		}
		p.host.SetTransform(node, pos, rot, scale)
		report.Placed++
	}

	p.placed = true
	p.placedKey = pend.key
	p.pending = nil
	p.report = report

	p.log.Info("loot placed",
		"huntType", req.HuntType.String(),
		"requested", report.Requested,
		"placed", report.Placed,
		"skipped", len(report.Skipped))

	if obs, ok := p.host.(core.PlacementObserver); ok {
		obs.OnPlacement(report)
	}
	return OutcomePlaced
}

func (p *Planner) localPosition(huntType core.HuntType, d core.LootDescriptor) (core.Vec3, error) {
	switch huntType {
	case core.HuntGeolocation:
		if d.Position == nil {
			return core.Vec3{}, errors.New("geolocation loot without position")
		}
		if err := geo.Validate(*d.Position); err != nil {
			return core.Vec3{}, err
		}
		off := p.projector.Project(*p.reference, *d.Position)
		if !geo.WithinAccurateRange(off) {
			p.log.Warn("loot beyond accurate projection range",
				"pin", d.ID, "range", geo.Range(off), "max", geo.MaxAccurateRange)
		}
		return geo.ToLocal(off, p.cfg.Elevation), nil

	case core.HuntProximity:
		if d.Bearing == nil {
			return core.Vec3{}, errors.New("proximity loot without bearing")
		}
		dist := d.Bearing.Distance
		if math.IsNaN(dist) || math.IsInf(dist, 0) || dist < 0 {
			return core.Vec3{}, fmt.Errorf("invalid distance %v", dist)
		}
		az, err := bearing.Parse(d.Bearing.Bearing)
		if err != nil {
			return core.Vec3{}, err
		}
		return core.Vec3{
			X: dist * math.Sin(az),
			Y: p.cfg.Elevation,
			Z: -dist * math.Cos(az),
		}, nil
	}
	return core.Vec3{}, fmt.Errorf("unknown hunt type %d", uint8(huntType))
}

// faceOrigin yaws the object's +Z front toward the local origin.
func faceOrigin(pos core.Vec3) core.Quat {
	dx, dz := -pos.X, -pos.Z
	if dx == 0 && dz == 0 {
		return core.IdentityQuat
	}
	return core.QuatYaw(math.Atan2(dx, dz))
}

// Clear removes every placed node and forgets the placed key.
func (p *Planner) Clear() {
	p.clear()
	p.placed = false
	p.pending = nil
}

func (p *Planner) clear() {
	if p.reg.Len() == 0 {
		return
	}
	if p.beforeClear != nil {
		p.beforeClear()
	}
	for _, e := range p.reg.Clear() {
		p.host.RemoveNode(e.Node)
	}
}

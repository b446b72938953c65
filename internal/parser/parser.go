// Package parser converts raw bridge arguments into engine inputs.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lootquest/arengine/internal/geo"
	"github.com/lootquest/arengine/internal/summon"
	"github.com/lootquest/arengine/internal/util"
	"github.com/lootquest/arengine/pkg/core"
)

// ErrArgCount is returned when a command carries too few arguments.
var ErrArgCount = errors.New("wrong number of arguments")

// maxFrameTime caps a single tick so a stalled host cannot teleport a summon.
const maxFrameTime = time.Second

// parseFloat parses a finite float, tolerating surrounding quotes and spaces.
func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(util.TrimQuotes(strings.TrimSpace(s)), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("parseFloat: %q is not finite", s)
	}
	return f, nil
}

// parseBool accepts the numeric and word forms hosts send.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(util.TrimQuotes(strings.TrimSpace(s))) {
	case "1", "true", "on", "yes":
		return true, nil
	case "0", "false", "off", "no", "":
		return false, nil
	}
	return false, fmt.Errorf("parseBool: %q is not a boolean", s)
}

// parseVec3 reads "x,y,z" or "[x,y,z]".
func parseVec3(s string) (core.Vec3, error) {
	parts := util.SplitArray(s)
	if len(parts) != 3 {
		return core.Vec3{}, fmt.Errorf("parseVec3: %q needs 3 components", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := parseFloat(p)
		if err != nil {
			return core.Vec3{}, fmt.Errorf("parseVec3: component %d: %w", i, err)
		}
		v[i] = f
	}
	return core.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

// Tick is a decoded :TICK: command.
type Tick struct {
	Camera  core.Vec3
	Forward core.Vec3
	DT      time.Duration
}

// Summon is a decoded :SUMMON: command. Stop requests an explicit cancel with
// Policy; otherwise Active is the new input state.
type Summon struct {
	Active bool
	Stop   bool
	Policy summon.CancelPolicy
}

// Hunt is a decoded :HUNT: command.
type Hunt struct {
	Type        core.HuntType
	Descriptors []core.LootDescriptor
	Reference   *core.GeoCoord
}

// Asset is a decoded :ASSET:READY: or :ASSET:FAILED: command.
type Asset struct {
	Kind   core.LootKind
	Detail string
}

// Parser provides pure []string -> engine input conversion.
// It has zero external dependencies beyond a logger.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// ParseTick reads [camera, forward, dtSeconds]. A negative frame time is an
// error; one above a second is clamped.
func (p *Parser) ParseTick(args []string) (Tick, error) {
	if len(args) < 3 {
		return Tick{}, fmt.Errorf("tick: %w: got %d, want 3", ErrArgCount, len(args))
	}
	camera, err := parseVec3(args[0])
	if err != nil {
		return Tick{}, fmt.Errorf("tick camera: %w", err)
	}
	forward, err := parseVec3(args[1])
	if err != nil {
		return Tick{}, fmt.Errorf("tick forward: %w", err)
	}
	secs, err := parseFloat(args[2])
	if err != nil {
		return Tick{}, fmt.Errorf("tick dt: %w", err)
	}
	if secs < 0 {
		return Tick{}, fmt.Errorf("tick dt: negative frame time %f", secs)
	}
	dt := time.Duration(secs * float64(time.Second))
	if dt > maxFrameTime {
		p.logger.Debug("clamping frame time", "dt", dt)
		dt = maxFrameTime
	}
	return Tick{Camera: camera, Forward: forward, DT: dt}, nil
}

// ParseSummon reads [active] or ["stop", policy?].
func (p *Parser) ParseSummon(args []string) (Summon, error) {
	if len(args) < 1 {
		return Summon{}, fmt.Errorf("summon: %w: got 0, want 1", ErrArgCount)
	}
	if strings.EqualFold(util.TrimQuotes(strings.TrimSpace(args[0])), "stop") {
		var raw string
		if len(args) > 1 {
			raw = util.Unquote(args[1])
		}
		policy, err := summon.ParseCancelPolicy(raw)
		if err != nil {
			return Summon{}, fmt.Errorf("summon: %w", err)
		}
		return Summon{Stop: true, Policy: policy}, nil
	}
	active, err := parseBool(args[0])
	if err != nil {
		return Summon{}, fmt.Errorf("summon: %w", err)
	}
	return Summon{Active: active}, nil
}

// ParseHunt reads [huntType, descriptorsJSON, reference?]. The descriptor list
// is JSON with kinds by name; the optional reference is "long,lat".
func (p *Parser) ParseHunt(args []string) (Hunt, error) {
	if len(args) < 2 {
		return Hunt{}, fmt.Errorf("hunt: %w: got %d, want 2", ErrArgCount, len(args))
	}
	huntType, err := core.ParseHuntType(util.Unquote(args[0]))
	if err != nil {
		return Hunt{}, fmt.Errorf("hunt: %w", err)
	}

	var descriptors []core.LootDescriptor
	if err := json.Unmarshal([]byte(util.Unquote(args[1])), &descriptors); err != nil {
		return Hunt{}, fmt.Errorf("hunt descriptors: %w", err)
	}

	out := Hunt{Type: huntType, Descriptors: descriptors}
	if len(args) > 2 && strings.TrimSpace(util.Unquote(args[2])) != "" {
		ref, err := p.ParseReference(args[2:])
		if err != nil {
			return Hunt{}, fmt.Errorf("hunt: %w", err)
		}
		out.Reference = &ref
	}
	p.logger.Debug("parsed hunt", "type", huntType, "descriptors", len(descriptors), "reference", out.Reference != nil)
	return out, nil
}

// ParseReference reads ["long,lat"].
func (p *Parser) ParseReference(args []string) (core.GeoCoord, error) {
	if len(args) < 1 {
		return core.GeoCoord{}, fmt.Errorf("reference: %w: got 0, want 1", ErrArgCount)
	}
	c, err := geo.CoordFromString(util.Unquote(strings.Trim(strings.TrimSpace(args[0]), "[]")))
	if err != nil {
		return core.GeoCoord{}, fmt.Errorf("reference: %w", err)
	}
	return c, nil
}

// ParseAsset reads [kind, detail?]. Detail is the model reference on READY and the cause on FAILED.
func (p *Parser) ParseAsset(args []string) (Asset, error) {
	if len(args) < 1 {
		return Asset{}, fmt.Errorf("asset: %w: got 0, want 1", ErrArgCount)
	}
	kind, err := core.ParseLootKind(util.Unquote(args[0]))
	if err != nil {
		return Asset{}, fmt.Errorf("asset: %w", err)
	}
	a := Asset{Kind: kind}
	if len(args) > 1 {
		a.Detail = util.Unquote(strings.Join(args[1:], ","))
	}
	return a, nil
}

// ParseToggle reads a single boolean argument.
func (p *Parser) ParseToggle(args []string) (bool, error) {
	if len(args) < 1 {
		return false, fmt.Errorf("toggle: %w: got 0, want 1", ErrArgCount)
	}
	return parseBool(args[0])
}

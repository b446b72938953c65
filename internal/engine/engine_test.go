package engine

import (
	"math"
	"testing"
	"time"

	"github.com/lootquest/arengine/internal/collect"
	"github.com/lootquest/arengine/internal/placement"
	"github.com/lootquest/arengine/internal/registry"
	"github.com/lootquest/arengine/internal/scene"
	"github.com/lootquest/arengine/internal/summon"
	"github.com/lootquest/arengine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frame = time.Second / 60

var (
	origin = core.Vec3{}
	north  = core.Vec3{Z: -1}
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Placement.Elevation = 0
	return cfg
}

func newEngine(t *testing.T, cfg Config) (*Engine, *scene.Host) {
	t.Helper()
	host := scene.New(0)
	e, err := New(cfg, Dependencies{Host: host})
	require.NoError(t, err)
	for k := core.LootKind(0); k < core.KindCount; k++ {
		e.OnAssetReady(k, k.String()+".glb")
	}
	return e, host
}

func tick(e *Engine, pos, fwd core.Vec3, frames int) {
	for i := 0; i < frames; i++ {
		e.OnTick(pos, fwd, frame)
	}
}

func loot(id string, dist float64, bearing string) core.LootDescriptor {
	return core.LootDescriptor{
		ID:      id,
		Kind:    core.KindCoin,
		Bearing: &core.BearingPlacement{Distance: dist, Bearing: bearing},
	}
}

func TestNew_RequiresHost(t *testing.T) {
	_, err := New(DefaultConfig(), Dependencies{})
	assert.ErrorIs(t, err, ErrNoHost)
}

func TestEngine_AmbientCollection(t *testing.T) {
	e, host := newEngine(t, testConfig())

	out := e.OnHuntDataChanged(core.HuntProximity, []core.LootDescriptor{
		loot("a", 3, "N"),
		loot("b", 3, "S"),
	}, nil)
	require.Equal(t, placement.OutcomePlaced, out)
	assert.Equal(t, 2, host.NodeCount())

	var hooked []string
	e.OnCollect(func(ent registry.Entity, src collect.Source) {
		assert.Equal(t, collect.SourceAmbient, src)
		hooked = append(hooked, ent.PinID)
	})

	tick(e, core.Vec3{Y: 1.6, Z: -3}, north, 3)
	tick(e, core.Vec3{Y: 1.6, Z: -3}, north, 30)

	assert.Equal(t, []string{"a"}, host.Collected())
	assert.Equal(t, []string{"a"}, hooked)
	assert.Equal(t, 1, host.NodeCount())

	s := e.Snapshot()
	assert.Equal(t, 1, s.Entities)
	assert.Equal(t, 1, s.Collected)
	assert.Equal(t, uint64(33), s.Frame)
}

func TestEngine_IdenticalHuntDataIsNoop(t *testing.T) {
	e, host := newEngine(t, testConfig())
	descs := []core.LootDescriptor{loot("a", 3, "N")}

	e.OnHuntDataChanged(core.HuntProximity, descs, nil)
	tick(e, origin, north, 10)
	out := e.OnHuntDataChanged(core.HuntProximity, descs, nil)

	assert.Equal(t, placement.OutcomeUnchanged, out)
	assert.Equal(t, 1, host.NodeCount())
	assert.Empty(t, host.Removed())
}

func TestEngine_SummonCollects(t *testing.T) {
	e, host := newEngine(t, testConfig())
	e.OnHuntDataChanged(core.HuntProximity, []core.LootDescriptor{loot("a", 4, "N")}, nil)

	tick(e, origin, north, 6)
	require.Equal(t, "a", e.Snapshot().Focused)

	var sources []collect.Source
	e.OnCollect(func(_ registry.Entity, src collect.Source) {
		sources = append(sources, src)
	})

	e.OnSummonInputChanged(true)
	require.Equal(t, "a", e.Snapshot().Summoning)

	for i := 0; i < 60*30 && len(host.Collected()) == 0; i++ {
		e.OnTick(origin, north, frame)
	}
	assert.Equal(t, []string{"a"}, host.Collected())
	// the ambient scan never takes the target mid-flight
	assert.Equal(t, []collect.Source{collect.SourceSummon}, sources)

	tick(e, origin, north, 30)
	s := e.Snapshot()
	assert.Equal(t, 1, s.Collected)
	assert.Empty(t, s.Summoning)
	assert.Equal(t, 0, s.Entities)
	assert.Equal(t, 0, host.OrphanTransforms())
}

func TestEngine_SummonWithoutFocusDoesNothing(t *testing.T) {
	e, _ := newEngine(t, testConfig())
	e.OnHuntDataChanged(core.HuntProximity, []core.LootDescriptor{loot("a", 4, "S")}, nil)

	tick(e, origin, north, 6)
	e.OnSummonInputChanged(true)
	assert.Empty(t, e.Snapshot().Summoning)
	assert.True(t, e.Snapshot().SummonInput)
}

func TestEngine_SustainedInputStartsOnLaterFocus(t *testing.T) {
	e, _ := newEngine(t, testConfig())
	e.OnHuntDataChanged(core.HuntProximity, []core.LootDescriptor{loot("a", 4, "E")}, nil)

	e.OnSummonInputChanged(true)
	tick(e, origin, north, 6)
	assert.Empty(t, e.Snapshot().Summoning)

	// turn toward the loot while still holding the input
	tick(e, origin, core.Vec3{X: 1}, 7)
	assert.Equal(t, "a", e.Snapshot().Summoning)
}

func TestEngine_CancelPolicy(t *testing.T) {
	tests := []struct {
		policy summon.CancelPolicy
		check  func(t *testing.T, z float64)
	}{
		{summon.SnapBack, func(t *testing.T, z float64) { assert.InDelta(t, -4, z, 1e-9) }},
		{summon.StayInPlace, func(t *testing.T, z float64) { assert.Greater(t, z, -3.99) }},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			cfg := testConfig()
			cfg.CancelPolicy = tt.policy
			e, host := newEngine(t, cfg)
			e.OnHuntDataChanged(core.HuntProximity, []core.LootDescriptor{loot("a", 4, "N")}, nil)

			tick(e, origin, north, 6)
			e.OnSummonInputChanged(true)
			tick(e, origin, north, 60)
			e.OnSummonInputChanged(false)
			assert.Empty(t, e.Snapshot().Summoning)

			tick(e, origin, north, 1)
			nodes := host.Nodes()
			require.Len(t, nodes, 1)
			tt.check(t, nodes[0].Position.Z)
			assert.InDelta(t, 1, nodes[0].Scale, 1e-9, "idle scale after cancel")
			assert.Empty(t, host.Collected())
		})
	}
}

func TestEngine_StopSummonExplicitPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.CancelPolicy = summon.StayInPlace
	e, host := newEngine(t, cfg)
	e.OnHuntDataChanged(core.HuntProximity, []core.LootDescriptor{loot("a", 4, "N")}, nil)

	tick(e, origin, north, 6)
	e.OnSummonInputChanged(true)
	tick(e, origin, north, 60)
	assert.True(t, e.StopSummon(summon.SnapBack))
	assert.False(t, e.StopSummon(summon.SnapBack))

	nodes := host.Nodes()
	require.Len(t, nodes, 1)
	assert.InDelta(t, -4, nodes[0].Position.Z, 1e-9)
}

func TestEngine_DefersUntilAssetReady(t *testing.T) {
	host := scene.New(0)
	e, err := New(testConfig(), Dependencies{Host: host})
	require.NoError(t, err)

	out := e.OnHuntDataChanged(core.HuntProximity, []core.LootDescriptor{loot("a", 4, "N")}, nil)
	assert.Equal(t, placement.OutcomeDeferred, out)
	tick(e, origin, north, 5)
	assert.Equal(t, 0, host.NodeCount())
	assert.True(t, e.Snapshot().PlacementPending)

	e.OnAssetReady(core.KindCoin, "coin.glb")
	assert.Equal(t, 1, host.NodeCount())
	assert.False(t, e.Snapshot().PlacementPending)
}

func TestEngine_FailedAssetFallsBack(t *testing.T) {
	host := scene.New(0)
	e, err := New(testConfig(), Dependencies{Host: host})
	require.NoError(t, err)

	gift := core.LootDescriptor{
		ID:      "g",
		Kind:    core.KindGiftCard,
		Bearing: &core.BearingPlacement{Distance: 2, Bearing: "W"},
	}
	e.OnHuntDataChanged(core.HuntProximity, []core.LootDescriptor{gift}, nil)
	e.OnAssetFailed(core.KindGiftCard, assert.AnError)
	assert.Equal(t, 0, host.NodeCount(), "waits for the fallback visual")

	e.OnAssetReady(core.KindCoin, "coin.glb")
	nodes := host.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, core.KindCoin, nodes[0].Kind)
}

func TestEngine_GeolocationWaitsForReference(t *testing.T) {
	e, host := newEngine(t, testConfig())
	target := core.GeoCoord{Latitude: 51.5 + 3.0/111250.0, Longitude: -0.12}

	out := e.OnHuntDataChanged(core.HuntGeolocation, []core.LootDescriptor{
		{ID: "geo", Kind: core.KindCoin, Position: &target},
	}, nil)
	assert.Equal(t, placement.OutcomeWaitingReference, out)
	tick(e, origin, north, 10)
	assert.Equal(t, 0, host.NodeCount())

	e.SetReference(core.GeoCoord{Latitude: 51.5, Longitude: -0.12})
	nodes := host.Nodes()
	require.Len(t, nodes, 1)
	assert.InDelta(t, -3, nodes[0].Position.Z, 0.05)

	s := e.Snapshot()
	require.NotNil(t, s.Reference)
	assert.Equal(t, 51.5, s.Reference.Latitude)
}

func TestEngine_ReplaceDuringSummon(t *testing.T) {
	e, host := newEngine(t, testConfig())
	e.OnHuntDataChanged(core.HuntProximity, []core.LootDescriptor{loot("a", 4, "N")}, nil)

	tick(e, origin, north, 6)
	e.OnSummonInputChanged(true)
	tick(e, origin, north, 10)
	require.Equal(t, "a", e.Snapshot().Summoning)

	e.OnHuntDataChanged(core.HuntProximity, []core.LootDescriptor{loot("b", 2, "S")}, nil)
	assert.Empty(t, e.Snapshot().Summoning)
	assert.Empty(t, e.Snapshot().Focused)

	tick(e, origin, north, 60)
	assert.Equal(t, 0, host.OrphanTransforms())
	assert.Empty(t, host.Collected())
	assert.Equal(t, 1, host.NodeCount())

	events := host.FocusEvents()
	require.NotEmpty(t, events)
	assert.False(t, events[len(events)-1].OK)
}

func TestEngine_ReducedModeHalvesFocusRate(t *testing.T) {
	e, host := newEngine(t, testConfig())
	e.SetReducedPerformance(true)
	e.OnHuntDataChanged(core.HuntProximity, []core.LootDescriptor{loot("a", 4, "N")}, nil)

	tick(e, origin, north, 11)
	assert.Empty(t, host.FocusEvents())
	tick(e, origin, north, 1)
	assert.Len(t, host.FocusEvents(), 1)
	assert.True(t, e.Reduced())
}

func TestEngine_AutoPerf(t *testing.T) {
	cfg := testConfig()
	cfg.Perf.AutoBudget = 33 * time.Millisecond
	e, _ := newEngine(t, cfg)

	for i := 0; i < 5; i++ {
		e.OnTick(origin, north, 50*time.Millisecond)
	}
	assert.True(t, e.Reduced())

	tick(e, origin, north, 30)
	assert.False(t, e.Reduced())
	assert.Less(t, e.FrameTimeAverage(), 26*time.Millisecond)

	e.SetReducedPerformance(false)
	for i := 0; i < 5; i++ {
		e.OnTick(origin, north, 50*time.Millisecond)
	}
	assert.False(t, e.Reduced(), "explicit setting disables automatic switching")
}

func TestEngine_NearestSweep(t *testing.T) {
	e, host := newEngine(t, testConfig())
	e.OnHuntDataChanged(core.HuntProximity, []core.LootDescriptor{
		loot("east", 4, "E"),
		loot("far", 8, "N"),
	}, nil)

	tick(e, origin, north, 9)
	events := host.NearestEvents()
	require.Len(t, events, 1)
	assert.True(t, events[0].OK)
	assert.InDelta(t, 4, events[0].Distance, 1e-9)
	assert.InDelta(t, math.Pi/2, events[0].Bearing, 1e-9)

	// unchanged pose, no new event
	tick(e, origin, north, 9)
	assert.Len(t, host.NearestEvents(), 1)

	// facing east the loot is dead ahead
	tick(e, origin, core.Vec3{X: 1}, 9)
	events = host.NearestEvents()
	require.Len(t, events, 2)
	assert.InDelta(t, 0, events[1].Bearing, 1e-9)

	e.ClearHunt()
	tick(e, origin, north, 9)
	events = host.NearestEvents()
	assert.False(t, events[len(events)-1].OK)
}

func TestEngine_Sparkle(t *testing.T) {
	e, host := newEngine(t, testConfig())
	e.OnHuntDataChanged(core.HuntProximity, []core.LootDescriptor{
		loot("a", 2, "E"),
		loot("b", 3, "W"),
		loot("far", 30, "N"),
	}, nil)

	tick(e, origin, north, 15)
	sparkled := 0
	for _, n := range host.Nodes() {
		if n.Sparkles > 0 {
			sparkled++
		}
	}
	assert.Equal(t, 2, sparkled, "only loot within decor range sparkles")
}

func TestEngine_FocusHighlight(t *testing.T) {
	e, host := newEngine(t, testConfig())
	e.OnHuntDataChanged(core.HuntProximity, []core.LootDescriptor{
		loot("a", 3, "N"),
		loot("b", 3, "E"),
	}, nil)

	tick(e, origin, north, 6)
	highlighted := func() []core.LootKind {
		var out []core.LootKind
		for _, n := range host.Nodes() {
			if n.Highlight {
				out = append(out, n.Kind)
			}
		}
		return out
	}
	assert.Len(t, highlighted(), 1)

	tick(e, origin, core.Vec3{X: 1}, 6)
	assert.Len(t, highlighted(), 1)
	assert.Equal(t, "b", e.Snapshot().Focused)
}

package placement

import (
	"fmt"
	"math"
	"testing"

	"github.com/lootquest/arengine/internal/cache"
	"github.com/lootquest/arengine/internal/registry"
	"github.com/lootquest/arengine/internal/scene"
	"github.com/lootquest/arengine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAssets lets tests drive asset state directly
type fakeAssets struct {
	states [core.KindCount]cache.AssetState
	loads  []core.LootKind
}

func (f *fakeAssets) State(kind core.LootKind) cache.AssetState {
	return f.states[kind]
}

func (f *fakeAssets) Load(kind core.LootKind) {
	f.loads = append(f.loads, kind)
	if f.states[kind] == cache.AssetUnloaded {
		f.states[kind] = cache.AssetLoading
	}
}

func readyAssets() *fakeAssets {
	a := &fakeAssets{}
	for k := range a.states {
		a.states[k] = cache.AssetReady
	}
	return a
}

// callLog records the order of node creation and removal
type callLog struct {
	*scene.Host
	calls []string
}

func (h *callLog) AddNode(kind core.LootKind, position core.Vec3) (core.NodeHandle, error) {
	n, err := h.Host.AddNode(kind, position)
	h.calls = append(h.calls, fmt.Sprintf("add %d", n))
	return n, err
}

func (h *callLog) RemoveNode(n core.NodeHandle) {
	h.calls = append(h.calls, fmt.Sprintf("remove %d", n))
	h.Host.RemoveNode(n)
}

// reusingHost hands out the same node for every AddNode after the first
type reusingHost struct {
	*scene.Host
	first core.NodeHandle
}

func (h *reusingHost) AddNode(kind core.LootKind, position core.Vec3) (core.NodeHandle, error) {
	if h.first != 0 {
		return h.first, nil
	}
	n, err := h.Host.AddNode(kind, position)
	h.first = n
	return n, err
}

func newPlanner(t *testing.T, assets Assets) (*Planner, *scene.Host, *registry.Registry) {
	t.Helper()
	host := scene.New(0)
	reg := registry.New()
	p := New(Config{FallbackKind: core.KindCoin, Elevation: -0.5}, Dependencies{
		Host:     host,
		Registry: reg,
		Assets:   assets,
	})
	return p, host, reg
}

func proximity(id string, order int, kind core.LootKind, dist float64, bearing string) core.LootDescriptor {
	return core.LootDescriptor{
		ID:      id,
		Order:   order,
		Kind:    kind,
		Bearing: &core.BearingPlacement{Distance: dist, Bearing: bearing},
	}
}

func TestPlace_Proximity(t *testing.T) {
	p, host, reg := newPlanner(t, readyAssets())

	descriptors := []core.LootDescriptor{
		proximity("a", 0, core.KindCoin, 10, "N"),
		proximity("b", 1, core.KindGiftCard, 4, "E"),
	}
	out := p.Place(Request{HuntType: core.HuntProximity, Descriptors: descriptors})
	require.Equal(t, OutcomePlaced, out)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, 2, host.NodeCount())

	h, ok := reg.ByPin("a")
	require.True(t, ok)
	a, _ := reg.Get(h)
	assert.InDelta(t, 0, a.Position.X, 1e-9)
	assert.InDelta(t, -10, a.Position.Z, 1e-9)
	assert.InDelta(t, -0.5, a.Position.Y, 1e-9)

	h, ok = reg.ByPin("b")
	require.True(t, ok)
	b, _ := reg.Get(h)
	assert.InDelta(t, 4, b.Position.X, 1e-9)
	assert.InDelta(t, 0, b.Position.Z, 1e-9)

	reports := host.Placements()
	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].Placed)
	assert.Equal(t, Key(core.HuntProximity, descriptors), reports[0].Key)
}

func TestPlace_SameSetIsNoop(t *testing.T) {
	p, host, _ := newPlanner(t, readyAssets())
	req := Request{
		HuntType:    core.HuntProximity,
		Descriptors: []core.LootDescriptor{proximity("a", 0, core.KindCoin, 3, "S")},
	}

	require.Equal(t, OutcomePlaced, p.Place(req))
	assert.Equal(t, OutcomeUnchanged, p.Place(req))
	assert.Equal(t, 1, host.NodeCount())
	assert.Empty(t, host.Removed())
}

func TestPlace_ChangedSetReplaces(t *testing.T) {
	p, host, reg := newPlanner(t, readyAssets())

	p.Place(Request{
		HuntType: core.HuntProximity,
		Descriptors: []core.LootDescriptor{
			proximity("a", 0, core.KindCoin, 3, "S"),
			proximity("b", 1, core.KindCoin, 5, "W"),
		},
	})
	before := host.Nodes()
	require.Len(t, before, 2)

	out := p.Place(Request{
		HuntType:    core.HuntProximity,
		Descriptors: []core.LootDescriptor{proximity("c", 0, core.KindDollarSign, 2, "N")},
	})
	require.Equal(t, OutcomePlaced, out)
	assert.Len(t, host.Removed(), 2)
	assert.Equal(t, 1, reg.Len())
	_, ok := reg.ByPin("a")
	assert.False(t, ok)
	_, ok = reg.ByPin("c")
	assert.True(t, ok)
}

func TestPlace_ChangedSetRemovesBeforeAdding(t *testing.T) {
	host := &callLog{Host: scene.New(0)}
	p := New(Config{FallbackKind: core.KindCoin}, Dependencies{
		Host:     host,
		Registry: registry.New(),
		Assets:   readyAssets(),
	})

	p.Place(Request{
		HuntType: core.HuntProximity,
		Descriptors: []core.LootDescriptor{
			proximity("a", 0, core.KindCoin, 3, "S"),
			proximity("b", 1, core.KindCoin, 5, "W"),
		},
	})
	host.calls = nil

	p.Place(Request{
		HuntType: core.HuntProximity,
		Descriptors: []core.LootDescriptor{
			proximity("c", 0, core.KindCoin, 2, "N"),
			proximity("d", 1, core.KindCoin, 4, "E"),
		},
	})
	require.Len(t, host.calls, 4)
	assert.ElementsMatch(t, []string{"remove 1", "remove 2"}, host.calls[:2])
	assert.Equal(t, []string{"add 3", "add 4"}, host.calls[2:])
}

func TestPlace_DefersUntilAssetsReady(t *testing.T) {
	assets := &fakeAssets{}
	assets.states[core.KindCoin] = cache.AssetReady
	p, host, _ := newPlanner(t, assets)

	out := p.Place(Request{
		HuntType: core.HuntProximity,
		Descriptors: []core.LootDescriptor{
			proximity("a", 0, core.KindCoin, 3, "N"),
			proximity("b", 1, core.KindGiftCard, 3, "S"),
		},
	})
	assert.Equal(t, OutcomeDeferred, out)
	assert.True(t, p.Pending())
	assert.Equal(t, 0, host.NodeCount(), "no partial placement while a kind is loading")
	assert.Equal(t, []core.LootKind{core.KindGiftCard}, assets.loads)

	assert.Equal(t, OutcomeDeferred, p.Retry())
	assert.Len(t, assets.loads, 1, "loading kinds are not requested again")

	assets.states[core.KindGiftCard] = cache.AssetReady
	assert.Equal(t, OutcomePlaced, p.Retry())
	assert.False(t, p.Pending())
	assert.Equal(t, 2, host.NodeCount())
	assert.Equal(t, OutcomeIdle, p.Retry())
}

func TestPlace_FailedKindUsesFallback(t *testing.T) {
	assets := readyAssets()
	assets.states[core.KindGiftCard] = cache.AssetFailed
	p, host, reg := newPlanner(t, assets)

	out := p.Place(Request{
		HuntType:    core.HuntProximity,
		Descriptors: []core.LootDescriptor{proximity("g", 0, core.KindGiftCard, 3, "N")},
	})
	require.Equal(t, OutcomePlaced, out)

	nodes := host.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, core.KindCoin, nodes[0].Kind, "visual falls back")

	h, _ := reg.ByPin("g")
	e, _ := reg.Get(h)
	assert.Equal(t, core.KindGiftCard, e.Kind, "entity keeps its own kind")
}

func TestPlace_FallbackAlsoFailedSkips(t *testing.T) {
	assets := readyAssets()
	assets.states[core.KindGiftCard] = cache.AssetFailed
	assets.states[core.KindCoin] = cache.AssetFailed
	p, host, _ := newPlanner(t, assets)

	out := p.Place(Request{
		HuntType: core.HuntProximity,
		Descriptors: []core.LootDescriptor{
			proximity("g", 0, core.KindGiftCard, 3, "N"),
			proximity("d", 1, core.KindDollarSign, 3, "E"),
		},
	})
	require.Equal(t, OutcomePlaced, out)
	assert.Equal(t, 1, host.NodeCount())

	report := p.LastReport()
	assert.Equal(t, 1, report.Placed)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "g", report.Skipped[0].ID)
}

func TestPlace_BadBearingSkipsOnlyThatDescriptor(t *testing.T) {
	p, host, _ := newPlanner(t, readyAssets())

	p.Place(Request{
		HuntType: core.HuntProximity,
		Descriptors: []core.LootDescriptor{
			proximity("ok", 0, core.KindCoin, 3, "N45E"),
			proximity("bad", 1, core.KindCoin, 3, "NS"),
			proximity("neg", 2, core.KindCoin, -1, "N"),
			{ID: "nobearing", Order: 3, Kind: core.KindCoin},
		},
	})
	assert.Equal(t, 1, host.NodeCount())
	report := p.LastReport()
	assert.Equal(t, 4, report.Requested)
	assert.Len(t, report.Skipped, 3)
}

func TestPlace_DuplicatePinSkipped(t *testing.T) {
	p, host, _ := newPlanner(t, readyAssets())

	p.Place(Request{
		HuntType: core.HuntProximity,
		Descriptors: []core.LootDescriptor{
			proximity("a", 0, core.KindCoin, 3, "N"),
			proximity("a", 1, core.KindCoin, 5, "S"),
		},
	})
	assert.Equal(t, 1, host.NodeCount())
	assert.Len(t, host.Removed(), 1, "node created for the duplicate is removed again")
}

func TestPlace_ReusedNodeKeepsLiveEntity(t *testing.T) {
	host := &reusingHost{Host: scene.New(0)}
	reg := registry.New()
	p := New(Config{FallbackKind: core.KindCoin}, Dependencies{
		Host:     host,
		Registry: reg,
		Assets:   readyAssets(),
	})

	p.Place(Request{
		HuntType: core.HuntProximity,
		Descriptors: []core.LootDescriptor{
			proximity("a", 0, core.KindCoin, 3, "N"),
			proximity("b", 1, core.KindCoin, 5, "S"),
		},
	})

	report := p.LastReport()
	assert.Equal(t, 1, report.Placed)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "b", report.Skipped[0].ID)
	assert.Contains(t, report.Skipped[0].Reason, registry.ErrDuplicateNode.Error())

	assert.Empty(t, host.Removed())
	h, ok := reg.ByPin("a")
	require.True(t, ok)
	e, _ := reg.Get(h)
	_, live := host.Node(e.Node)
	assert.True(t, live)
}

func TestPlace_GeolocationWaitsForReference(t *testing.T) {
	p, host, reg := newPlanner(t, readyAssets())

	ref := core.GeoCoord{Latitude: 47.6, Longitude: -122.3}
	north := core.GeoCoord{Latitude: 47.6 + 20.0/111320.0, Longitude: -122.3}
	req := Request{
		HuntType: core.HuntGeolocation,
		Descriptors: []core.LootDescriptor{
			{ID: "n", Kind: core.KindCoin, Position: &north},
		},
	}

	assert.Equal(t, OutcomeWaitingReference, p.Place(req))
	assert.Equal(t, 0, host.NodeCount())

	p.SetReference(ref)
	assert.Equal(t, OutcomePlaced, p.Retry())

	h, ok := reg.ByPin("n")
	require.True(t, ok)
	e, _ := reg.Get(h)
	assert.InDelta(t, 0, e.Position.X, 0.05)
	assert.InDelta(t, -20, e.Position.Z, 0.5)
}

func TestPlace_GeolocationInvalidCoordinateSkipped(t *testing.T) {
	p, host, _ := newPlanner(t, readyAssets())
	ref := core.GeoCoord{Latitude: 10, Longitude: 10}
	bad := core.GeoCoord{Latitude: 95, Longitude: 10}

	p.Place(Request{
		HuntType:  core.HuntGeolocation,
		Reference: &ref,
		Descriptors: []core.LootDescriptor{
			{ID: "bad", Kind: core.KindCoin, Position: &bad},
			{ID: "nopos", Kind: core.KindCoin},
		},
	})
	assert.Equal(t, 0, host.NodeCount())
	assert.Len(t, p.LastReport().Skipped, 2)
}

func TestPlace_FaceOrigin(t *testing.T) {
	host := scene.New(0)
	reg := registry.New()
	p := New(Config{FaceOrigin: true}, Dependencies{Host: host, Registry: reg, Assets: readyAssets()})

	p.Place(Request{
		HuntType:    core.HuntProximity,
		Descriptors: []core.LootDescriptor{proximity("e", 0, core.KindCoin, 5, "E")},
	})
	h, _ := reg.ByPin("e")
	e, _ := reg.Get(h)

	front := e.BaseOrientation.Rotate(core.Vec3{Z: 1})
	assert.InDelta(t, -1, front.X, 1e-9)
	assert.InDelta(t, 0, front.Z, 1e-9)
}

func TestPlace_BeforeClearRuns(t *testing.T) {
	host := scene.New(0)
	reg := registry.New()
	calls := 0
	p := New(Config{}, Dependencies{
		Host:        host,
		Registry:    reg,
		Assets:      readyAssets(),
		BeforeClear: func() { calls++ },
	})

	p.Place(Request{HuntType: core.HuntProximity, Descriptors: []core.LootDescriptor{proximity("a", 0, core.KindCoin, 1, "N")}})
	assert.Equal(t, 0, calls, "nothing to clear on first placement")
	p.Place(Request{HuntType: core.HuntProximity, Descriptors: []core.LootDescriptor{proximity("b", 0, core.KindCoin, 1, "N")}})
	assert.Equal(t, 1, calls)
}

func TestKey(t *testing.T) {
	a := []core.LootDescriptor{proximity("a", 0, core.KindCoin, 3, "N")}
	b := []core.LootDescriptor{proximity("a", 0, core.KindCoin, 3, "N")}
	c := []core.LootDescriptor{proximity("a", 0, core.KindCoin, 3.0000001, "N")}

	assert.Equal(t, Key(core.HuntProximity, a), Key(core.HuntProximity, b))
	assert.NotEqual(t, Key(core.HuntProximity, a), Key(core.HuntProximity, c))
	assert.NotEqual(t, Key(core.HuntProximity, a), Key(core.HuntGeolocation, a))
	assert.NotEqual(t, Key(core.HuntProximity, nil), Key(core.HuntProximity, a))
}

func TestFaceOrigin_AtOrigin(t *testing.T) {
	q := faceOrigin(core.Vec3{})
	assert.Equal(t, core.IdentityQuat, q)
	q = faceOrigin(core.Vec3{Z: -3})
	front := q.Rotate(core.Vec3{Z: 1})
	assert.InDelta(t, 1, front.Z, 1e-9)
	assert.False(t, math.IsNaN(front.X))
}

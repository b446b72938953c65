// Package registry owns placed loot entities and their per-object state.
// Entities live in an arena addressed by generation-checked handles; host node
// handles and pin ids are side tables into the arena.
package registry

import (
	"errors"
	"fmt"

	"github.com/lootquest/arengine/pkg/core"
)

var (
	// ErrDuplicateNode is returned when a node handle is already registered
	ErrDuplicateNode = errors.New("node handle already registered")
	// ErrDuplicatePin is returned when a pin id is already registered
	ErrDuplicatePin = errors.New("pin id already registered")
)

// Handle addresses an entity slot. The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// Valid reports whether h was issued by a registry.
func (h Handle) Valid() bool {
	return h.gen != 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.index, h.gen)
}

// Entity is the engine-side state of one placed loot object.
type Entity struct {
	Node  core.NodeHandle
	PinID string
	Kind  core.LootKind
	Order int

	// rest pose the animation driver bobs and spins around
	RestPosition    core.Vec3
	BaseOrientation core.Quat
	BaseScale       float64

	// last transform pushed to the host
	Position core.Vec3
	Rotation core.Quat
	Scale    float64

	Collected bool
	Focused   bool
	Summoned  bool
}

type slot struct {
	entity Entity
	gen    uint32
	live   bool
	dense  int // index into Registry.dense while live
}

// Registry is not safe for concurrent use; it belongs to the simulation context.
type Registry struct {
	slots []slot
	free  []uint32
	dense []Handle

	byNode map[core.NodeHandle]Handle
	byPin  map[string]Handle
}

func New() *Registry {
	return &Registry{
		byNode: make(map[core.NodeHandle]Handle),
		byPin:  make(map[string]Handle),
	}
}

// Add registers e and returns its handle.
func (r *Registry) Add(e Entity) (Handle, error) {
	if _, ok := r.byNode[e.Node]; ok {
		return Handle{}, fmt.Errorf("%w: %d", ErrDuplicateNode, e.Node)
	}
	if _, ok := r.byPin[e.PinID]; ok {
		return Handle{}, fmt.Errorf("%w: %s", ErrDuplicatePin, e.PinID)
	}

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}

	s := &r.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	e.Collected = false
	s.entity = e
	s.live = true
	s.dense = len(r.dense)

	h := Handle{index: idx, gen: s.gen}
	r.dense = append(r.dense, h)
	r.byNode[e.Node] = h
	r.byPin[e.PinID] = h
	return h, nil
}

// Get returns a pointer to the live entity for h. The pointer is valid until the
// next Add or Remove.
func (r *Registry) Get(h Handle) (*Entity, bool) {
	if !h.Valid() || int(h.index) >= len(r.slots) {
		return nil, false
	}
	s := &r.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil, false
	}
	return &s.entity, true
}

// Contains reports whether h refers to a live entity.
func (r *Registry) Contains(h Handle) bool {
	_, ok := r.Get(h)
	return ok
}

// ByNode looks up an entity by host node handle.
func (r *Registry) ByNode(n core.NodeHandle) (Handle, bool) {
	h, ok := r.byNode[n]
	return h, ok
}

// ByPin looks up an entity by pin id.
func (r *Registry) ByPin(pin string) (Handle, bool) {
	h, ok := r.byPin[pin]
	return h, ok
}

// Remove erases the entity and returns a copy of its final state marked collected.
// Removing moves the last dense entry into the removed position.
func (r *Registry) Remove(h Handle) (Entity, bool) {
	e, ok := r.Get(h)
	if !ok {
		return Entity{}, false
	}
	out := *e
	out.Collected = true

	s := &r.slots[h.index]
	last := len(r.dense) - 1
	moved := r.dense[last]
	r.dense[s.dense] = moved
	r.slots[moved.index].dense = s.dense
	r.dense = r.dense[:last]

	delete(r.byNode, out.Node)
	delete(r.byPin, out.PinID)

	s.live = false
	s.entity = Entity{}
	r.free = append(r.free, h.index)
	return out, true
}

// Len is the number of live entities.
func (r *Registry) Len() int {
	return len(r.dense)
}

// At returns the i-th live entity in dense order, 0 <= i < Len().
func (r *Registry) At(i int) (Handle, *Entity) {
	h := r.dense[i]
	return h, &r.slots[h.index].entity
}

// Each visits live entities in dense order until fn returns false.
// fn must not add or remove entities.
func (r *Registry) Each(fn func(Handle, *Entity) bool) {
	for _, h := range r.dense {
		if !fn(h, &r.slots[h.index].entity) {
			return
		}
	}
}

// Clear removes every entity and returns their final states.
func (r *Registry) Clear() []Entity {
	out := make([]Entity, 0, len(r.dense))
	for len(r.dense) > 0 {
		e, _ := r.Remove(r.dense[len(r.dense)-1])
		out = append(out, e)
	}
	return out
}

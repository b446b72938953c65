// Package scene is an in-memory core.Host. It backs the simulator and records
// every command and notification so callers can inspect what the engine did.
package scene

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lootquest/arengine/pkg/core"
)

// ErrSceneFull is returned by AddNode once the node limit is reached.
var ErrSceneFull = errors.New("scene node limit reached")

// Node is a live scene node.
type Node struct {
	Handle   core.NodeHandle
	Kind     core.LootKind
	Position core.Vec3
	Rotation core.Quat
	Scale    float64
	// Transforms counts SetTransform calls for this node.
	Transforms int
	Highlight  bool
	Sparkles   int
}

// FocusEvent is one OnFocusChanged notification.
type FocusEvent struct {
	PinID    string
	Distance float64
	OK       bool
}

// NearestEvent is one OnNearestChanged notification.
type NearestEvent struct {
	Distance float64
	Bearing  float64
	OK       bool
}

// Host records engine output. Safe for concurrent reads while the engine ticks.
type Host struct {
	mu       sync.Mutex
	next     core.NodeHandle
	maxNodes int

	nodes   map[core.NodeHandle]*Node
	removed []core.NodeHandle

	collected  []string
	focus      []FocusEvent
	nearest    []NearestEvent
	placements []core.PlacementReport

	// stale transforms sent to removed nodes
	orphanTransforms int

	// FailAdd makes AddNode fail for the listed kinds.
	FailAdd map[core.LootKind]bool

	// OnCollectedHook, when set, runs after each collected notification.
	OnCollectedHook func(pinID string)
}

// New creates an empty scene. maxNodes <= 0 means unlimited.
func New(maxNodes int) *Host {
	return &Host{
		maxNodes: maxNodes,
		nodes:    make(map[core.NodeHandle]*Node),
		FailAdd:  make(map[core.LootKind]bool),
	}
}

func (h *Host) AddNode(kind core.LootKind, position core.Vec3) (core.NodeHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.FailAdd[kind] {
		return 0, fmt.Errorf("add %s: rejected", kind)
	}
	if h.maxNodes > 0 && len(h.nodes) >= h.maxNodes {
		return 0, ErrSceneFull
	}
	h.next++
	h.nodes[h.next] = &Node{
		Handle:   h.next,
		Kind:     kind,
		Position: position,
		Rotation: core.IdentityQuat,
		Scale:    1,
	}
	return h.next, nil
}

func (h *Host) RemoveNode(n core.NodeHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.nodes[n]; !ok {
		return
	}
	delete(h.nodes, n)
	h.removed = append(h.removed, n)
}

func (h *Host) SetTransform(n core.NodeHandle, position core.Vec3, rotation core.Quat, scale float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	node, ok := h.nodes[n]
	if !ok {
		h.orphanTransforms++
		return
	}
	node.Position = position
	node.Rotation = rotation
	node.Scale = scale
	node.Transforms++
}

func (h *Host) OnCollected(pinID string) {
	h.mu.Lock()
	h.collected = append(h.collected, pinID)
	hook := h.OnCollectedHook
	h.mu.Unlock()
	if hook != nil {
		hook(pinID)
	}
}

func (h *Host) OnFocusChanged(pinID string, distance float64, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.focus = append(h.focus, FocusEvent{PinID: pinID, Distance: distance, OK: ok})
}

func (h *Host) OnNearestChanged(distance, bearing float64, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nearest = append(h.nearest, NearestEvent{Distance: distance, Bearing: bearing, OK: ok})
}

func (h *Host) SetHighlight(n core.NodeHandle, on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if node, ok := h.nodes[n]; ok {
		node.Highlight = on
	}
}

func (h *Host) Sparkle(n core.NodeHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if node, ok := h.nodes[n]; ok {
		node.Sparkles++
	}
}

func (h *Host) OnPlacement(report core.PlacementReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.placements = append(h.placements, report)
}

// Node returns a copy of a live node.
func (h *Host) Node(n core.NodeHandle) (Node, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	node, ok := h.nodes[n]
	if !ok {
		return Node{}, false
	}
	return *node, true
}

// Nodes returns copies of all live nodes.
func (h *Host) Nodes() []Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Node, 0, len(h.nodes))
	for _, n := range h.nodes {
		out = append(out, *n)
	}
	return out
}

// NodeCount is the number of live nodes.
func (h *Host) NodeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.nodes)
}

// Removed returns the handles removed so far, in order.
func (h *Host) Removed() []core.NodeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]core.NodeHandle(nil), h.removed...)
}

// Collected returns collected pin ids in notification order.
func (h *Host) Collected() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.collected...)
}

// FocusEvents returns focus notifications in order.
func (h *Host) FocusEvents() []FocusEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]FocusEvent(nil), h.focus...)
}

// NearestEvents returns nearest notifications in order.
func (h *Host) NearestEvents() []NearestEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]NearestEvent(nil), h.nearest...)
}

// Placements returns placement reports in order.
func (h *Host) Placements() []core.PlacementReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]core.PlacementReport(nil), h.placements...)
}

// OrphanTransforms counts SetTransform calls for nodes that no longer exist.
func (h *Host) OrphanTransforms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.orphanTransforms
}

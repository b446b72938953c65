// pkg/core/host.go
package core

// NodeHandle is the host's opaque identifier for a scene node
type NodeHandle uint64

// Host is the rendering/scene side of the engine boundary.
// All calls are made from the simulation context (the host's frame callback).
type Host interface {
	// Scene commands
	AddNode(kind LootKind, position Vec3) (NodeHandle, error)
	RemoveNode(h NodeHandle)
	SetTransform(h NodeHandle, position Vec3, rotation Quat, scale float64)

	// Notifications
	OnCollected(pinID string)
	OnFocusChanged(pinID string, distance float64, ok bool)
	OnNearestChanged(distance, bearing float64, ok bool)
}

// FocusHighlighter is an optional interface for hosts that draw a focus visual.
type FocusHighlighter interface {
	SetHighlight(h NodeHandle, on bool)
}

// Sparkler is an optional interface for hosts that play the decorative sparkle.
type Sparkler interface {
	Sparkle(h NodeHandle)
}

// PlacementObserver is an optional interface for hosts that want placement outcomes.
type PlacementObserver interface {
	OnPlacement(report PlacementReport)
}

// SkippedLoot records why a descriptor produced no scene node.
type SkippedLoot struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// PlacementReport summarizes one completed placement pass.
type PlacementReport struct {
	// Key is the content key of the descriptor set that was placed.
	Key       uint64        `json:"key"`
	HuntType  HuntType      `json:"huntType"`
	Requested int           `json:"requested"`
	Placed    int           `json:"placed"`
	Skipped   []SkippedLoot `json:"skipped,omitempty"`
}

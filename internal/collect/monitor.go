package collect

import (
	"github.com/lootquest/arengine/internal/registry"
	"github.com/lootquest/arengine/pkg/core"
)

// MonitorConfig tunes the ambient scan.
type MonitorConfig struct {
	// Threshold is the distance below which an entity is collected.
	Threshold float64
	// Planar measures distance in the ground plane, ignoring height.
	Planar bool
	// MaxChecks caps distance checks per Scan. Zero means no cap.
	MaxChecks int
}

// Monitor scans entities in reverse dense order, resuming where the previous
// scan stopped, so a capped scan still visits every entity within a bounded
// number of calls.
type Monitor struct {
	cfg  MonitorConfig
	reg  *registry.Registry
	coll *Collector

	// Exclude reports entities owned by another path, such as an active summon.
	Exclude func(registry.Handle) bool

	cursor int
}

func NewMonitor(cfg MonitorConfig, reg *registry.Registry, coll *Collector) *Monitor {
	return &Monitor{cfg: cfg, reg: reg, coll: coll, cursor: -1}
}

// Scan checks up to MaxChecks entities against the player position and collects
// those inside the threshold. Returns the number collected.
func (m *Monitor) Scan(player core.Vec3) int {
	n := m.reg.Len()
	if n == 0 {
		m.cursor = -1
		return 0
	}

	checks := n
	if m.cfg.MaxChecks > 0 && m.cfg.MaxChecks < checks {
		checks = m.cfg.MaxChecks
	}

	collected := 0
	for ; checks > 0; checks-- {
		n = m.reg.Len()
		if n == 0 {
			m.cursor = -1
			break
		}
		if m.cursor < 0 || m.cursor >= n {
			m.cursor = n - 1
		}

		i := m.cursor
		m.cursor--

		h, e := m.reg.At(i)
		if e.Summoned || (m.Exclude != nil && m.Exclude(h)) {
			continue
		}

		var d float64
		if m.cfg.Planar {
			d = core.PlanarDistance(e.Position, player)
		} else {
			d = core.Distance(e.Position, player)
		}
		if d < m.cfg.Threshold {
			// swap-remove pulls the last entry into i; it is revisited on a later pass
			if _, ok := m.coll.Collect(h, SourceAmbient); ok {
				collected++
			}
		}
	}
	return collected
}

// Reset restarts the round-robin from the end of the registry.
func (m *Monitor) Reset() {
	m.cursor = -1
}

// Package collect owns the collected side effects and the ambient proximity scan.
package collect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lootquest/arengine/internal/registry"
	"github.com/lootquest/arengine/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Source tells which path collected an entity.
type Source string

const (
	SourceAmbient Source = "ambient"
	SourceSummon  Source = "summon"
)

// Hook observes a finished collection. The entity is already out of the registry.
type Hook func(e registry.Entity, src Source)

// Collector performs the collection side effects: remove the node, erase the
// registry entry, emit OnCollected. Each entity goes through it at most once.
type Collector struct {
	host core.Host
	reg  *registry.Registry
	log  *slog.Logger

	hooks []Hook

	collected metric.Int64Counter
}

func NewCollector(host core.Host, reg *registry.Registry, log *slog.Logger) (*Collector, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Collector{host: host, reg: reg, log: log}

	var err error
	c.collected, err = meter().Int64Counter(
		"collect.entities.collected",
		metric.WithDescription("Total loot entities collected"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating collected counter: %w", err)
	}
	return c, nil
}

// OnCollect registers a hook run after every collection.
func (c *Collector) OnCollect(h Hook) {
	c.hooks = append(c.hooks, h)
}

// Collect collects the entity at h. Returns false if h is no longer live, which
// makes a second collection of the same entity a no-op.
func (c *Collector) Collect(h registry.Handle, src Source) (registry.Entity, bool) {
	e, ok := c.reg.Remove(h)
	if !ok {
		return registry.Entity{}, false
	}

	c.host.RemoveNode(e.Node)
	c.host.OnCollected(e.PinID)
	c.collected.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("source", string(src)),
		attribute.String("kind", e.Kind.String()),
	))
	c.log.Info("loot collected", "pin", e.PinID, "kind", e.Kind.String(), "source", string(src))

	for _, hook := range c.hooks {
		hook(e, src)
	}
	return e, true
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lootquest/arengine/internal/queue"
	"github.com/lootquest/arengine/pkg/core"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrAssetUnavailable is returned when a model failed to load. Failure is terminal.
var ErrAssetUnavailable = errors.New("asset unavailable")

// AssetState is the per-kind load future: Unloaded -> Loading -> Ready | Failed
type AssetState uint8

const (
	AssetUnloaded AssetState = iota
	AssetLoading
	AssetReady
	AssetFailed
)

func (s AssetState) String() string {
	switch s {
	case AssetUnloaded:
		return "unloaded"
	case AssetLoading:
		return "loading"
	case AssetReady:
		return "ready"
	case AssetFailed:
		return "failed"
	}
	return "unknown"
}

// Model is the host's loaded 3D asset, opaque to the engine.
type Model any

// Loader fetches the model for a kind. It runs off the simulation context.
type Loader func(ctx context.Context, kind core.LootKind) (Model, error)

// Options tunes the asset cache.
type Options struct {
	// MaxConcurrentLoads caps in-flight loader calls. Zero means one.
	MaxConcurrentLoads int64
}

type entry struct {
	state AssetState
	model Model
	err   error
}

type completion struct {
	kind  core.LootKind
	model Model
	err   error
}

// AssetCache tracks model readiness per loot kind.
//
// Load starts a background fetch; its result is posted to a mailbox and only becomes
// visible after Drain runs on the simulation context. With a nil Loader the host
// drives readiness itself through MarkReady and MarkFailed.
type AssetCache struct {
	ctx    context.Context
	loader Loader
	sem    *semaphore.Weighted
	log    *slog.Logger

	mu      sync.RWMutex
	entries [core.KindCount]entry

	done *queue.Queue[completion]
	wg   sync.WaitGroup
}

// NewAssetCache creates a cache whose background loads are bound to ctx.
func NewAssetCache(ctx context.Context, loader Loader, opts Options, log *slog.Logger) *AssetCache {
	if opts.MaxConcurrentLoads <= 0 {
		opts.MaxConcurrentLoads = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &AssetCache{
		ctx:    ctx,
		loader: loader,
		sem:    semaphore.NewWeighted(opts.MaxConcurrentLoads),
		log:    log,
		done:   queue.New[completion](),
	}
}

// State returns the current load state for kind.
func (c *AssetCache) State(kind core.LootKind) AssetState {
	if !kind.Valid() {
		return AssetFailed
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[kind].state
}

// Model returns the loaded model for kind.
func (c *AssetCache) Model(kind core.LootKind) (Model, bool) {
	if !kind.Valid() {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.entries[kind]
	return e.model, e.state == AssetReady
}

// Err returns the terminal load error for kind, if any.
func (c *AssetCache) Err(kind core.LootKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %s", ErrAssetUnavailable, kind)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[kind].err
}

// Load starts fetching kind if it has never been requested.
// Loading, ready and failed kinds are left alone.
func (c *AssetCache) Load(kind core.LootKind) {
	if !kind.Valid() {
		return
	}
	c.mu.Lock()
	if c.entries[kind].state != AssetUnloaded {
		c.mu.Unlock()
		return
	}
	c.entries[kind].state = AssetLoading
	c.mu.Unlock()

	if c.loader == nil {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		model, err := c.fetch(c.ctx, kind)
		c.done.Push(completion{kind: kind, model: model, err: err})
	}()
}

func (c *AssetCache) fetch(ctx context.Context, kind core.LootKind) (Model, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)
	return c.loader(ctx, kind)
}

// Drain applies finished background loads and returns the kinds that settled.
// Call from the simulation context.
func (c *AssetCache) Drain() []core.LootKind {
	results := c.done.Drain()
	if len(results) == 0 {
		return nil
	}

	settled := make([]core.LootKind, 0, len(results))
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range results {
		e := &c.entries[r.kind]
		if e.state != AssetLoading {
			continue
		}
		if r.err != nil {
			e.state = AssetFailed
			e.err = fmt.Errorf("%w: %s: %v", ErrAssetUnavailable, r.kind, r.err)
			c.log.Warn("asset load failed", "kind", r.kind.String(), "error", r.err)
		} else {
			e.state = AssetReady
			e.model = r.model
			c.log.Debug("asset ready", "kind", r.kind.String())
		}
		settled = append(settled, r.kind)
	}
	return settled
}

// MarkReady records a host-loaded model. Returns false if kind was already ready.
func (c *AssetCache) MarkReady(kind core.LootKind, model Model) bool {
	if !kind.Valid() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := &c.entries[kind]
	if e.state == AssetReady {
		return false
	}
	e.state = AssetReady
	e.model = model
	e.err = nil
	return true
}

// MarkFailed records a terminal failure reported by the host.
func (c *AssetCache) MarkFailed(kind core.LootKind, cause error) {
	if !kind.Valid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := &c.entries[kind]
	if e.state == AssetReady {
		return
	}
	e.state = AssetFailed
	e.err = fmt.Errorf("%w: %s: %v", ErrAssetUnavailable, kind, cause)
}

// Preload fetches every unloaded kind concurrently and blocks until they settle.
// Meant for startup before the first frame, never from the frame callback.
func (c *AssetCache) Preload(ctx context.Context, kinds ...core.LootKind) error {
	if c.loader == nil {
		return errors.New("preload needs a loader")
	}

	// one failing kind must not cancel the others, so no shared context
	var g errgroup.Group
	for _, kind := range kinds {
		if !kind.Valid() {
			continue
		}
		c.mu.Lock()
		if c.entries[kind].state != AssetUnloaded {
			c.mu.Unlock()
			continue
		}
		c.entries[kind].state = AssetLoading
		c.mu.Unlock()

		kind := kind // per-iteration copy (go < 1.22 loop semantics)
		g.Go(func() error {
			model, err := c.fetch(ctx, kind)
			c.mu.Lock()
			defer c.mu.Unlock()
			e := &c.entries[kind]
			if err != nil {
				e.state = AssetFailed
				e.err = fmt.Errorf("%w: %s: %v", ErrAssetUnavailable, kind, err)
				return e.err
			}
			e.state = AssetReady
			e.model = model
			return nil
		})
	}
	return g.Wait()
}

// Wait blocks until every background load started by Load has posted its result.
func (c *AssetCache) Wait() {
	c.wg.Wait()
}

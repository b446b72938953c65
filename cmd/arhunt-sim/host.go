package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lootquest/arengine/internal/cache"
	"github.com/lootquest/arengine/internal/journal"
	"github.com/lootquest/arengine/internal/scene"
	"github.com/lootquest/arengine/pkg/core"
)

// ModelExt is the file extension the asset loader looks for.
const ModelExt = ".glb"

// journaledHost is the in-memory scene that also journals placement passes.
type journaledHost struct {
	*scene.Host
	journal *journal.Manager
	frame   func() uint64
}

func (h *journaledHost) OnPlacement(report core.PlacementReport) {
	h.Host.OnPlacement(report)
	if h.journal != nil {
		h.journal.RecordPlacement(h.frame(), report)
	}
}

// fileLoader resolves a kind to <dir>/<kind>.glb. The model is the file path;
// the simulator has nothing to render, so only existence is checked.
func fileLoader(dir string) cache.Loader {
	return func(ctx context.Context, kind core.LootKind) (cache.Model, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, kind.String()+ModelExt)
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", path)
		}
		return path, nil
	}
}

package engine

import (
	"math"
	"time"

	"github.com/lootquest/arengine/internal/anim"
	"github.com/lootquest/arengine/internal/collect"
	"github.com/lootquest/arengine/internal/focus"
	"github.com/lootquest/arengine/internal/placement"
	"github.com/lootquest/arengine/internal/scheduler"
	"github.com/lootquest/arengine/internal/summon"
	"github.com/lootquest/arengine/pkg/core"
)

// NearestConfig tunes the nearest-loot sweep.
type NearestConfig struct {
	// DistanceEpsilon and BearingEpsilon (radians) suppress repeat notifications.
	DistanceEpsilon float64
	BearingEpsilon  float64
}

// DecorConfig tunes the decorative sparkle.
type DecorConfig struct {
	Range      float64
	MaxPerTick int
}

// PerfConfig tunes automatic reduced-performance switching.
type PerfConfig struct {
	// AutoBudget is the smoothed frame time above which reduced mode turns on.
	// Zero disables automatic switching.
	AutoBudget time.Duration
	// Smoothing is the EMA weight of the newest frame, in (0,1].
	Smoothing float64
	// Recover is the fraction of AutoBudget the average must fall under to leave reduced mode.
	Recover float64
}

// Config is the full engine tuning.
type Config struct {
	Placement placement.Config
	Focus     focus.Config
	Summon    summon.Config
	Collect   collect.MonitorConfig
	Anim      anim.Config
	Intervals scheduler.Intervals
	Nearest   NearestConfig
	Decor     DecorConfig
	Perf      PerfConfig

	// CancelPolicy applies when summon input ends or a new target replaces the old one.
	CancelPolicy summon.CancelPolicy
	// SustainedSummon starts a new session on the current focus while input stays active.
	SustainedSummon bool
	// Reduced starts the engine in reduced-performance mode.
	Reduced bool
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		Placement: placement.Config{
			Elevation:    -0.5,
			FallbackKind: core.KindCoin,
			FaceOrigin:   true,
		},
		Focus:  focus.DefaultConfig(),
		Summon: summon.DefaultConfig(),
		Collect: collect.MonitorConfig{
			Threshold: 0.25,
			Planar:    true,
			MaxChecks: 64,
		},
		Anim:      anim.DefaultConfig(),
		Intervals: scheduler.DefaultIntervals(),
		Nearest: NearestConfig{
			DistanceEpsilon: 0.1,
			BearingEpsilon:  2 * math.Pi / 180,
		},
		Decor: DecorConfig{
			Range:      10,
			MaxPerTick: 3,
		},
		Perf: PerfConfig{
			Smoothing: 0.1,
			Recover:   0.8,
		},
		CancelPolicy:    summon.SnapBack,
		SustainedSummon: true,
	}
}

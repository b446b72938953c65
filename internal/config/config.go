package config

import (
	"fmt"
	"math"
	"time"

	"github.com/lootquest/arengine/internal/engine"
	"github.com/lootquest/arengine/internal/geo"
	"github.com/lootquest/arengine/internal/scheduler"
	"github.com/lootquest/arengine/internal/summon"
	"github.com/lootquest/arengine/pkg/core"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "arhunt.cfg.json"

// JournalConfig holds collection journal settings
type JournalConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Driver     string `json:"driver" mapstructure:"driver"`
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlitePath"`

	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
}

// TelemetryConfig holds InfluxDB frame telemetry settings
type TelemetryConfig struct {
	Enabled       bool
	Host          string
	Port          string
	Protocol      string
	Token         string
	Org           string
	Bucket        string
	BackupDir     string
	FlushInterval time.Duration
}

// AssetConfig holds asset cache settings
type AssetConfig struct {
	Dir                string
	MaxConcurrentLoads int64
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./arhuntlogs")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "arhunt")

	viper.SetDefault("journal.enabled", true)
	viper.SetDefault("journal.driver", "sqlite")
	viper.SetDefault("journal.sqlitePath", "arhunt_journal.db")
	viper.SetDefault("journal.flushInterval", "500ms")

	viper.SetDefault("status.interval", "1s")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "arhunt-metrics")
	viper.SetDefault("influx.bucket", "frames")
	viper.SetDefault("influx.backupDir", "./arhuntlogs")
	viper.SetDefault("influx.flushInterval", "2s")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("assets.dir", "./assets")
	viper.SetDefault("assets.maxConcurrentLoads", 2)

	viper.SetDefault("placement.elevation", -0.5)
	viper.SetDefault("placement.fallbackKind", "coin")
	viper.SetDefault("placement.faceOrigin", true)
	viper.SetDefault("placement.projection", "equirectangular")
	for k := core.LootKind(0); k < core.KindCount; k++ {
		viper.SetDefault("placement.scale."+k.String(), 1.0)
	}

	viper.SetDefault("focus.range", 5.0)
	viper.SetDefault("focus.halfAngleDeg", 8.0)
	viper.SetDefault("focus.tieAngleDeg", 0.5)
	viper.SetDefault("focus.flatten", false)
	viper.SetDefault("focus.minInterval", "100ms")
	viper.SetDefault("focus.distanceEpsilon", 0.05)

	viper.SetDefault("summon.minSpeed", 0.3)
	viper.SetDefault("summon.maxSpeed", 4.0)
	viper.SetDefault("summon.maxScale", 3.0)
	viper.SetDefault("summon.collectThreshold", 0.6)
	viper.SetDefault("summon.cancelPolicy", "snap_back")
	viper.SetDefault("summon.sustained", true)

	viper.SetDefault("collection.threshold", 0.25)
	viper.SetDefault("collection.planar", true)
	viper.SetDefault("collection.maxChecks", 64)

	viper.SetDefault("anim.amplitude", 0.15)
	viper.SetDefault("anim.period", "2s")
	viper.SetDefault("anim.spinPerPeriodDeg", 180.0)
	viper.SetDefault("anim.staggerDeg", 0.0)

	viper.SetDefault("schedule.focus", 6)
	viper.SetDefault("schedule.collect", 3)
	viper.SetDefault("schedule.nearest", 9)
	viper.SetDefault("schedule.decor", 15)

	viper.SetDefault("nearest.distanceEpsilon", 0.1)
	viper.SetDefault("nearest.bearingEpsilonDeg", 2.0)

	viper.SetDefault("decor.range", 10.0)
	viper.SetDefault("decor.maxPerTick", 3)

	viper.SetDefault("perf.reduced", false)
	viper.SetDefault("perf.autoBudgetMs", 0)
	viper.SetDefault("perf.smoothing", 0.1)
	viper.SetDefault("perf.recover", 0.8)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

func radians(key string) float64 {
	return viper.GetFloat64(key) * math.Pi / 180
}

// EngineConfig builds the engine tuning from the loaded keys.
func EngineConfig() (engine.Config, error) {
	cfg := engine.DefaultConfig()

	fallback, err := core.ParseLootKind(viper.GetString("placement.fallbackKind"))
	if err != nil {
		return cfg, fmt.Errorf("placement.fallbackKind: %w", err)
	}
	policy, err := summon.ParseCancelPolicy(viper.GetString("summon.cancelPolicy"))
	if err != nil {
		return cfg, fmt.Errorf("summon.cancelPolicy: %w", err)
	}

	cfg.Placement.Elevation = viper.GetFloat64("placement.elevation")
	cfg.Placement.FallbackKind = fallback
	cfg.Placement.FaceOrigin = viper.GetBool("placement.faceOrigin")
	for k := core.LootKind(0); k < core.KindCount; k++ {
		cfg.Placement.KindScale[k] = viper.GetFloat64("placement.scale." + k.String())
	}

	cfg.Focus.Range = viper.GetFloat64("focus.range")
	cfg.Focus.HalfAngle = radians("focus.halfAngleDeg")
	cfg.Focus.TieAngle = radians("focus.tieAngleDeg")
	cfg.Focus.Flatten = viper.GetBool("focus.flatten")
	cfg.Focus.MinInterval = viper.GetDuration("focus.minInterval")
	cfg.Focus.DistanceEpsilon = viper.GetFloat64("focus.distanceEpsilon")

	cfg.Summon.MinSpeed = viper.GetFloat64("summon.minSpeed")
	cfg.Summon.MaxSpeed = viper.GetFloat64("summon.maxSpeed")
	cfg.Summon.MaxScale = viper.GetFloat64("summon.maxScale")
	cfg.Summon.CollectThreshold = viper.GetFloat64("summon.collectThreshold")
	cfg.CancelPolicy = policy
	cfg.SustainedSummon = viper.GetBool("summon.sustained")

	cfg.Collect.Threshold = viper.GetFloat64("collection.threshold")
	cfg.Collect.Planar = viper.GetBool("collection.planar")
	cfg.Collect.MaxChecks = viper.GetInt("collection.maxChecks")
	if cfg.Summon.CollectThreshold <= cfg.Collect.Threshold {
		return cfg, fmt.Errorf("summon.collectThreshold %.2f must exceed collection.threshold %.2f",
			cfg.Summon.CollectThreshold, cfg.Collect.Threshold)
	}

	cfg.Anim.Amplitude = viper.GetFloat64("anim.amplitude")
	cfg.Anim.Period = viper.GetDuration("anim.period")
	cfg.Anim.SpinPerPeriod = radians("anim.spinPerPeriodDeg")
	cfg.Anim.Stagger = radians("anim.staggerDeg")

	cfg.Intervals[scheduler.TaskFocus] = uint64(viper.GetInt("schedule.focus"))
	cfg.Intervals[scheduler.TaskCollect] = uint64(viper.GetInt("schedule.collect"))
	cfg.Intervals[scheduler.TaskNearest] = uint64(viper.GetInt("schedule.nearest"))
	cfg.Intervals[scheduler.TaskDecor] = uint64(viper.GetInt("schedule.decor"))

	cfg.Nearest.DistanceEpsilon = viper.GetFloat64("nearest.distanceEpsilon")
	cfg.Nearest.BearingEpsilon = radians("nearest.bearingEpsilonDeg")

	cfg.Decor.Range = viper.GetFloat64("decor.range")
	cfg.Decor.MaxPerTick = viper.GetInt("decor.maxPerTick")

	cfg.Reduced = viper.GetBool("perf.reduced")
	cfg.Perf.AutoBudget = time.Duration(viper.GetFloat64("perf.autoBudgetMs") * float64(time.Millisecond))
	cfg.Perf.Smoothing = viper.GetFloat64("perf.smoothing")
	cfg.Perf.Recover = viper.GetFloat64("perf.recover")

	return cfg, nil
}

// GetProjector returns the projector named by placement.projection.
func GetProjector() (geo.Projector, error) {
	return geo.NewProjector(viper.GetString("placement.projection"))
}

// GetJournalConfig returns the collection journal settings.
func GetJournalConfig() JournalConfig {
	return JournalConfig{
		Enabled:    viper.GetBool("journal.enabled"),
		Driver:     viper.GetString("journal.driver"),
		SQLitePath: viper.GetString("journal.sqlitePath"),

		FlushInterval: viper.GetDuration("journal.flushInterval"),
	}
}

// GetTelemetryConfig returns the InfluxDB frame telemetry settings.
func GetTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:       viper.GetBool("influx.enabled"),
		Host:          viper.GetString("influx.host"),
		Port:          viper.GetString("influx.port"),
		Protocol:      viper.GetString("influx.protocol"),
		Token:         viper.GetString("influx.token"),
		Org:           viper.GetString("influx.org"),
		Bucket:        viper.GetString("influx.bucket"),
		BackupDir:     viper.GetString("influx.backupDir"),
		FlushInterval: viper.GetDuration("influx.flushInterval"),
	}
}

// GetAssetConfig returns the asset cache settings.
func GetAssetConfig() AssetConfig {
	return AssetConfig{
		Dir:                viper.GetString("assets.dir"),
		MaxConcurrentLoads: viper.GetInt64("assets.maxConcurrentLoads"),
	}
}

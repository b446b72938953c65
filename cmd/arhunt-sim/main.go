// Command arhunt-sim drives the engine against an in-memory scene from a YAML
// scenario of bridge commands, the same strings a mobile host sends.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/lootquest/arengine/internal/bridge"
	"github.com/lootquest/arengine/internal/cache"
	"github.com/lootquest/arengine/internal/collect"
	"github.com/lootquest/arengine/internal/config"
	"github.com/lootquest/arengine/internal/dispatcher"
	"github.com/lootquest/arengine/internal/engine"
	"github.com/lootquest/arengine/internal/journal"
	"github.com/lootquest/arengine/internal/logging"
	"github.com/lootquest/arengine/internal/monitor"
	"github.com/lootquest/arengine/internal/registry"
	"github.com/lootquest/arengine/internal/scene"
	"github.com/lootquest/arengine/internal/session"
	"github.com/lootquest/arengine/internal/telemetry"
	"github.com/lootquest/arengine/internal/util"
	"github.com/lootquest/arengine/pkg/core"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "arhunt_sim"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "arhunt-sim:", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	configDir := flags.String("config-dir", ".", "directory containing "+config.FileName)
	scenarioPath := flags.StringP("scenario", "s", "", "scenario file to replay (required)")
	flags.String("log-level", "", "overrides logLevel")
	flags.String("logs-dir", "", "overrides logsDir")
	flags.Bool("reduced", false, "start in reduced performance mode")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *scenarioPath == "" {
		return errors.New("--scenario is required")
	}

	if err := config.Load(*configDir); err != nil {
		// defaults are registered before the file is read
		fmt.Fprintln(os.Stderr, "using defaults:", err)
	}
	bindFlag(flags, "log-level", "logLevel")
	bindFlag(flags, "logs-dir", "logsDir")
	bindFlag(flags, "reduced", "perf.reduced")

	sc, err := LoadScenario(*scenarioPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sim, err := newSimulator(ctx)
	if err != nil {
		return err
	}
	defer sim.Close()

	sim.Logger.Info("Replaying scenario", "name", sc.Name, "steps", len(sc.Steps), "version", CurrentVersion, "build", BuildDate)
	runErr := Replay(ctx, sim.Dispatcher, sc, sim.Logger)

	// drain queued commands before reading results
	sim.Dispatcher.Close()

	collected := sim.Session.Collected()
	fmt.Printf("collected %d pin(s): %s\n", len(collected), util.FormatList(collected))
	if st, err := sim.Monitor.GetStatus(); err == nil {
		sim.Logger.Debug("Final status", "status", st)
	}
	return runErr
}

// bindFlag lets a flag override the config file, but only when it was set.
func bindFlag(flags *pflag.FlagSet, name, key string) {
	if f := flags.Lookup(name); f != nil && f.Changed {
		_ = viper.BindPFlag(key, f)
	}
}

// simulator owns every long-lived service of one run.
type simulator struct {
	Logger     *slog.Logger
	Session    *session.Context
	Scene      *scene.Host
	Engine     *engine.Engine
	Dispatcher *dispatcher.Dispatcher
	Monitor    *monitor.Service

	slogManager *logging.SlogManager
	logFile     *os.File
	assets      *cache.AssetCache
	journal     *journal.Manager
	telemetry   *telemetry.Manager
	cancel      context.CancelFunc
	closeOnce   sync.Once
}

func newSimulator(parent context.Context) (*simulator, error) {
	ctx, cancel := context.WithCancel(parent)
	s := &simulator{
		Session: session.NewContext(),
		cancel:  cancel,
	}

	logsDir := viper.GetString("logsDir")
	level := viper.GetString("logLevel")
	var err error
	s.logFile, err = logging.OpenLogFile(logsDir, AppName, s.Session.Started())
	if err != nil {
		cancel()
		return nil, err
	}

	// engine is assigned below; records logged before then carry only the session
	var eng *engine.Engine
	s.slogManager = logging.NewSlogManager()
	opts := logging.Options{
		Context: logging.EngineContext(s.Session.ID().String(), func() logging.FrameSource {
			if eng == nil {
				return nil
			}
			return eng
		}),
	}
	if viper.GetBool("graylog.enabled") {
		opts.GraylogAddress = viper.GetString("graylog.address")
	}
	if err := s.slogManager.Setup(s.logFile, level, opts); err != nil {
		s.Close()
		return nil, err
	}
	s.Logger = s.slogManager.Logger()
	zlog := logging.NewZerolog(s.logFile, level)

	if err := s.openJournal(zlog); err != nil {
		s.Logger.Warn("Journal disabled", "error", err)
	}
	s.openTelemetry(ctx, zlog)

	cfg, err := config.EngineConfig()
	if err != nil {
		s.Close()
		return nil, err
	}
	projector, err := config.GetProjector()
	if err != nil {
		s.Close()
		return nil, err
	}

	ac := config.GetAssetConfig()
	s.assets = cache.NewAssetCache(ctx, fileLoader(ac.Dir), cache.Options{
		MaxConcurrentLoads: ac.MaxConcurrentLoads,
	}, s.Logger.With("component", "assets"))
	kinds := make([]core.LootKind, 0, core.KindCount)
	for k := core.LootKind(0); k < core.KindCount; k++ {
		kinds = append(kinds, k)
	}
	// missing models fall back to the fallback visual at placement
	if err := s.assets.Preload(ctx, kinds...); err != nil {
		s.Logger.Warn("Some assets failed to preload", "error", err)
	}

	s.Scene = scene.New(0)
	eng, err = engine.New(cfg, engine.Dependencies{
		Host:      &journaledHost{Host: s.Scene, journal: s.journal, frame: func() uint64 { return eng.Frame() }},
		Assets:    s.assets,
		Projector: projector,
		Logger:    s.Logger,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	s.Engine = eng
	eng.OnCollect(func(e registry.Entity, src collect.Source) {
		s.Session.AddCollected(e.PinID)
		if s.journal != nil {
			s.journal.RecordCollection(eng.Frame(), e, src)
		}
	})

	s.Monitor = monitor.NewService(monitor.Dependencies{
		Engine:   eng,
		Session:  s.Session,
		Sink:     s.sink(),
		Dir:      logsDir,
		Interval: viper.GetDuration("status.interval"),
		Logger:   s.Logger.With("component", "monitor"),
	})
	if err := s.Monitor.Start(); err != nil {
		s.Logger.Warn("Status monitor not started", "error", err)
	}

	s.Dispatcher, err = dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	bridge.NewManager(bridge.Dependencies{
		Engine:  eng,
		Session: s.Session,
		Status:  s.Monitor,
		Logger:  s.Logger.With("component", "bridge"),
	}).RegisterHandlers(s.Dispatcher)

	return s, nil
}

func (s *simulator) openJournal(zlog zerolog.Logger) error {
	jc := config.GetJournalConfig()
	if !jc.Enabled {
		return errors.New("journal.enabled is false")
	}
	path := jc.SQLitePath
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(viper.GetString("logsDir"), path)
	}
	m := journal.NewManager(zlog, path)
	if err := m.Connect(jc.Driver); err != nil {
		return err
	}
	if err := m.Setup(s.Session.ID()); err != nil {
		_ = m.Close(context.Background())
		return err
	}
	m.Start(jc.FlushInterval)
	s.journal = m
	return nil
}

func (s *simulator) openTelemetry(ctx context.Context, zlog zerolog.Logger) {
	m := telemetry.NewManager(zlog, config.GetTelemetryConfig())
	err := m.Connect(ctx)
	switch {
	case errors.Is(err, telemetry.ErrDisabled):
		return
	case err != nil:
		s.Logger.Warn("Telemetry disabled", "error", err)
		return
	}
	s.telemetry = m
}

// sink avoids handing the monitor a typed nil.
func (s *simulator) sink() monitor.Sink {
	if s.telemetry == nil {
		return nil
	}
	return s.telemetry
}

// Close stops every service in reverse start order.
func (s *simulator) Close() {
	s.closeOnce.Do(s.close)
}

func (s *simulator) close() {
	if s.Dispatcher != nil {
		s.Dispatcher.Close()
	}
	if s.Monitor != nil {
		s.Monitor.Stop()
		if err := s.Monitor.WriteOnce(); err != nil && s.Logger != nil {
			s.Logger.Warn("Final status write failed", "error", err)
		}
	}
	s.cancel()
	if s.assets != nil {
		s.assets.Wait()
	}
	if s.telemetry != nil {
		if err := s.telemetry.Close(); err != nil {
			s.Logger.Warn("Closing telemetry", "error", err)
		}
	}
	if s.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.journal.Close(ctx); err != nil {
			s.Logger.Warn("Closing journal", "error", err)
		}
		cancel()
	}
	if s.slogManager != nil {
		_ = s.slogManager.Close()
	}
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
}

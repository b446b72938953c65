// Package monitor publishes the engine status: on demand as JSON for the
// bridge, and periodically to a status file and an optional telemetry sink.
package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lootquest/arengine/internal/engine"
	"github.com/lootquest/arengine/internal/session"
)

// StatusFileName is the file Start rewrites every interval.
const StatusFileName = "status.json"

// StatusSource is the engine side of the monitor.
type StatusSource interface {
	Snapshot() engine.Status
	FrameTimeAverage() time.Duration
}

// Sink receives periodic status samples.
type Sink interface {
	RecordStatus(sessionID string, s engine.Status, frameTime time.Duration) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Engine   StatusSource
	Session  *session.Context
	Sink     Sink
	Dir      string
	Interval time.Duration
	Logger   *slog.Logger
}

// Report is one status sample.
type Report struct {
	Time      time.Time     `json:"time"`
	SessionID string        `json:"sessionId"`
	Hunt      *session.Hunt `json:"hunt,omitempty"`
	Status    engine.Status `json:"status"`
	FrameTime float64       `json:"frameTimeMs"`
	Collected []string      `json:"collected"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetReport samples the engine and session now.
func (s *Service) GetReport() Report {
	r := Report{
		Time:      time.Now(),
		SessionID: s.deps.Session.ID().String(),
		Status:    s.deps.Engine.Snapshot(),
		FrameTime: float64(s.deps.Engine.FrameTimeAverage()) / float64(time.Millisecond),
		Collected: s.deps.Session.Collected(),
	}
	if h, ok := s.deps.Session.GetHunt(); ok {
		r.Hunt = &h
	}
	return r
}

// GetStatus returns the current report as indented JSON.
func (s *Service) GetStatus() (string, error) {
	b, err := json.MarshalIndent(s.GetReport(), "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error()), err
	}
	return string(b), nil
}

// WriteOnce writes the current report to the status file and the sink.
func (s *Service) WriteOnce() error {
	r := s.GetReport()

	var errs []error
	if s.deps.Dir != "" {
		b, err := json.MarshalIndent(r, "", "  ")
		if err == nil {
			err = os.WriteFile(filepath.Join(s.deps.Dir, StatusFileName), append(b, '\n'), 0644)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("writing status file: %w", err))
		}
	}
	if s.deps.Sink != nil {
		ft := time.Duration(r.FrameTime * float64(time.Millisecond))
		if err := s.deps.Sink.RecordStatus(r.SessionID, r.Status, ft); err != nil {
			errs = append(errs, fmt.Errorf("recording status: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.WriteOnce(); err != nil {
					logger.Error("Error writing status", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning || s.stopChan == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.stopChan = nil
	done := s.done
	s.mu.Unlock()
	<-done
}

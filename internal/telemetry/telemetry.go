// Package telemetry sends per-session engine statistics to InfluxDB, or to a
// gzip line-protocol backup file when the server is unreachable.
package telemetry

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/lootquest/arengine/internal/config"
	"github.com/lootquest/arengine/internal/engine"
	"github.com/rs/zerolog"
)

// ErrDisabled is returned by Connect when telemetry is switched off.
var ErrDisabled = errors.New("telemetry disabled")

// MeasurementFrame is the measurement of engine status points.
const MeasurementFrame = "engine_frame"

// Manager handles the InfluxDB connection and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger
	BackupPath   string

	cfg        config.TelemetryConfig
	mu         sync.Mutex
	backupFile *os.File
}

// NewManager creates a new telemetry manager.
func NewManager(log zerolog.Logger, cfg config.TelemetryConfig) *Manager {
	return &Manager{
		Logger: log,
		cfg:    cfg,
	}
}

// Connect establishes a connection to InfluxDB, opening the backup file when
// the server does not answer a ping.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	flushMs := uint(m.cfg.FlushInterval / time.Millisecond)
	if flushMs == 0 {
		flushMs = 1000
	}
	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(flushMs),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.IsValid = true
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	if err := os.MkdirAll(m.cfg.BackupDir, 0755); err != nil {
		return fmt.Errorf("error creating backup dir: %w", err)
	}
	m.BackupPath = filepath.Join(m.cfg.BackupDir,
		fmt.Sprintf("telemetry.%s.lp.gz", time.Now().UTC().Format("20060102_150405")))

	m.Logger.Warn().Str("backupPath", m.BackupPath).
		Msg("InfluxDB unreachable, writing to backup file")

	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.Client.OrganizationsAPI()

	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.Logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", m.cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 30, // 30 days
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())
}

// StatusPoint builds the point for one engine status sample.
func StatusPoint(sessionID string, s engine.Status, frameTime time.Duration, at time.Time) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementFrame).
		AddTag("session", sessionID).
		AddTag("reduced", fmt.Sprint(s.Reduced)).
		AddField("frame", int64(s.Frame)).
		AddField("entities", s.Entities).
		AddField("collected", s.Collected).
		AddField("summoning", s.Summoning != "").
		AddField("summon_progress", s.SummonProgress).
		AddField("placement_pending", s.PlacementPending).
		AddField("frame_time_ms", float64(frameTime)/float64(time.Millisecond)).
		SetTime(at)
	if s.Focused != "" {
		p.AddField("focused", s.Focused)
	}
	return p
}

// RecordStatus writes one engine status sample.
func (m *Manager) RecordStatus(sessionID string, s engine.Status, frameTime time.Duration) error {
	return m.WritePoint(StatusPoint(sessionID, s, frameTime, time.Now()))
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending writes and releases the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
		m.Client = nil
	}
	if m.BackupWriter != nil {
		err = errors.Join(err, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		err = errors.Join(err, m.backupFile.Close())
		m.backupFile = nil
	}
	m.IsValid = false
	return err
}

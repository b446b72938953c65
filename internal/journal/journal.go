// Package journal records placement passes and collections to a database,
// Postgres when configured and reachable, SQLite otherwise. Records are queued
// from the simulation context and written in batches by a background writer.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/lootquest/arengine/internal/collect"
	"github.com/lootquest/arengine/internal/queue"
	"github.com/lootquest/arengine/internal/registry"
	"github.com/lootquest/arengine/pkg/core"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotConnected is returned by operations that need a database before Connect.
var ErrNotConnected = errors.New("journal not connected")

// Manager handles the journal database and its write queues.
type Manager struct {
	DB              *gorm.DB
	SqlDB           *sql.DB
	IsValid         bool
	ShouldSaveLocal bool
	SqlitePath      string
	Logger          zerolog.Logger

	sessionID uuid.UUID

	placements  *queue.Queue[Placement]
	collections *queue.Queue[Collection]

	// flushMu serializes Flush between the writer and direct callers
	flushMu  sync.Mutex
	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// NewManager creates a new journal manager. An empty sqlitePath keeps the
// fallback database in memory.
func NewManager(log zerolog.Logger, sqlitePath string) *Manager {
	return &Manager{
		SqlitePath:  sqlitePath,
		Logger:      log,
		placements:  queue.New[Placement](),
		collections: queue.New[Collection](),
	}
}

// Connect opens the database named by driver, falling back to SQLite if Postgres fails.
func (m *Manager) Connect(driver string) error {
	var err error

	if driver == "postgres" {
		m.DB, err = m.GetPostgresDB()
		if err == nil {
			err = m.ping()
		}
		if err != nil {
			m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
		}
	} else {
		err = fmt.Errorf("driver %q", driver)
	}

	if err != nil {
		m.ShouldSaveLocal = true
		m.DB, err = m.GetSqliteDB(m.SqlitePath)
		if err != nil {
			m.IsValid = false
			return fmt.Errorf("failed to get local SQLite DB: %w", err)
		}
		if err = m.ping(); err != nil {
			m.IsValid = false
			return fmt.Errorf("failed to validate SQLite connection: %w", err)
		}
	}

	m.IsValid = true
	if m.ShouldSaveLocal {
		// sqlite allows one writer
		m.SqlDB.SetMaxOpenConns(1)
	} else {
		m.SqlDB.SetMaxOpenConns(10)
	}
	m.Logger.Info().Str("dialect", m.DB.Dialector.Name()).Msg("Connected to journal database")
	return nil
}

func (m *Manager) ping() error {
	var err error
	m.SqlDB, err = m.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return m.SqlDB.Ping()
}

// GetPostgresDB returns a connection to the Postgres database.
func (m *Manager) GetPostgresDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		viper.GetString("db.host"),
		viper.GetString("db.port"),
		viper.GetString("db.username"),
		viper.GetString("db.password"),
		viper.GetString("db.database"),
	)

	m.Logger.Debug().
		Str("host", viper.GetString("db.host")).
		Str("database", viper.GetString("db.database")).
		Msg("Connecting to Postgres DB")

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// GetSqliteDB returns a connection to a SQLite database.
// If path is empty, uses an in-memory database.
func (m *Manager) GetSqliteDB(path string) (*gorm.DB, error) {
	dsn := "file::memory:"
	if path != "" {
		dsn = path
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        500,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if path != "" {
		m.Logger.Info().Str("path", path).Msg("Using local SQLite DB")
	} else {
		m.Logger.Info().Msg("Using local SQLite DB in memory")
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	return db, nil
}

// Setup migrates the journal tables and opens a session row.
func (m *Manager) Setup(sessionID uuid.UUID) error {
	if m.DB == nil {
		return ErrNotConnected
	}

	m.Logger.Info().Msg("Migrating journal schema")
	if err := m.DB.AutoMigrate(Models...); err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	host, _ := os.Hostname()
	if err := m.DB.Create(&Session{ID: sessionID, Host: host}).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	m.sessionID = sessionID
	m.Logger.Info().Str("session", sessionID.String()).Msg("Journal session opened")
	return nil
}

// RecordPlacement queues a placement pass keyed by its content key.
func (m *Manager) RecordPlacement(frame uint64, report core.PlacementReport) {
	skipped := report.Skipped
	if skipped == nil {
		skipped = []core.SkippedLoot{}
	}
	raw, err := json.Marshal(skipped)
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to encode skipped loot")
		raw = []byte("[]")
	}
	m.placements.Push(Placement{
		Time:      time.Now(),
		Frame:     frame,
		HuntKey:   fmt.Sprintf("%016x", report.Key),
		HuntType:  report.HuntType.String(),
		Requested: report.Requested,
		Placed:    report.Placed,
		Skipped:   datatypes.JSON(raw),
	})
}

// RecordCollection queues a collected entity.
func (m *Manager) RecordCollection(frame uint64, e registry.Entity, src collect.Source) {
	m.collections.Push(Collection{
		Time:   time.Now(),
		Frame:  frame,
		PinID:  e.PinID,
		Kind:   e.Kind.String(),
		Source: string(src),
		X:      e.Position.X,
		Y:      e.Position.Y,
		Z:      e.Position.Z,
	})
}

// Pending returns the number of queued records not yet written.
func (m *Manager) Pending() int {
	return m.placements.Len() + m.collections.Len()
}

// writeQueue writes all items from a queue in one transaction, requeueing them on failure.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log zerolog.Logger, stamp func([]T)) error {
	items := q.Drain()
	if len(items) == 0 {
		return nil
	}
	if stamp != nil {
		stamp(items)
	}

	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		tx.Rollback()
		q.Push(items...)
		log.Error().Err(err).Str("table", name).Int("rows", len(items)).Msg("Error writing journal rows")
		return err
	}
	if err := tx.Commit().Error; err != nil {
		q.Push(items...)
		return err
	}
	log.Trace().Str("table", name).Int("rows", len(items)).Msg("Journal rows written")
	return nil
}

// Flush writes every queued record now.
func (m *Manager) Flush() error {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()
	if m.DB == nil || !m.IsValid {
		return ErrNotConnected
	}
	sid := m.sessionID
	errP := writeQueue(m.DB, m.placements, "placements", m.Logger, func(items []Placement) {
		for i := range items {
			items[i].SessionID = sid
		}
	})
	errC := writeQueue(m.DB, m.collections, "collections", m.Logger, func(items []Collection) {
		for i := range items {
			items[i].SessionID = sid
		}
	})
	return errors.Join(errP, errC)
}

// Start runs the background writer, flushing every interval.
func (m *Manager) Start(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopChan != nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				if err := m.Flush(); err != nil && !errors.Is(err, ErrNotConnected) {
					m.Logger.Error().Err(err).Msg("Final journal flush failed")
				}
				return
			case <-ticker.C:
				if err := m.Flush(); err != nil && !errors.Is(err, ErrNotConnected) {
					m.Logger.Warn().Err(err).Msg("Journal flush failed, will retry")
				}
			}
		}
	}(m.stopChan, m.done)
}

// Close stops the background writer, flushes what is left and closes the database.
// If ctx ends while the writer is still flushing, Close returns without touching
// the database; a later Close finishes the job.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.stopChan != nil {
		close(m.stopChan)
		m.stopChan = nil
	}
	done := m.done
	m.mu.Unlock()

	if m.DB == nil {
		return nil
	}

	var err error
	if done != nil {
		// the writer does the final flush on its way out
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("journal writer still flushing: %w", ctx.Err())
		}
	} else if err = m.Flush(); errors.Is(err, ErrNotConnected) {
		err = nil
	}

	m.flushMu.Lock()
	m.IsValid = false
	m.flushMu.Unlock()
	if m.SqlDB != nil {
		err = errors.Join(err, m.SqlDB.Close())
	}
	return err
}

// Collections returns the collections of the current session in write order.
func (m *Manager) Collections() ([]Collection, error) {
	if m.DB == nil {
		return nil, ErrNotConnected
	}
	var out []Collection
	err := m.DB.Where("session_id = ?", m.sessionID).Order("id").Find(&out).Error
	return out, err
}

// Placements returns the placement passes of the current session in write order.
func (m *Manager) Placements() ([]Placement, error) {
	if m.DB == nil {
		return nil, ErrNotConnected
	}
	var out []Placement
	err := m.DB.Where("session_id = ?", m.sessionID).Order("id").Find(&out).Error
	return out, err
}

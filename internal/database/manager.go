package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	// SQLite driver, referenced only through the connection string.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"sensorhub/pkg/types"
)

// Config tunes the sqlite connection.
type Config struct {
	Path            string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	WriteTimeout    time.Duration
}

// Manager persists finalized session records. All writes go through a single
// goroutine: sqlite handles concurrent reads well but serialized writes avoid
// SQLITE_BUSY churn entirely.
type Manager struct {
	db     *sql.DB
	cfg    Config
	writes chan writeOp
	done   chan struct{}
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger zerolog.Logger
}

type writeOp struct {
	fn     func(*sql.DB) error
	result chan error
}

// NewManager opens the database, bootstraps the schema and starts the
// writer goroutine.
func NewManager(cfg Config, logger zerolog.Logger) (*Manager, error) {
	if cfg.Path == "" {
		return nil, ErrEmptyPath
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := bootstrapSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	m := &Manager{
		db:     db,
		cfg:    cfg,
		writes: make(chan writeOp, 100),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "session_sink").Logger(),
	}
	m.wg.Add(1)
	go m.writeLoop()
	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writes:
			err := op.fn(m.db)
			if err != nil {
				// Retry once after a short backoff; transient lock contention
				// is the common failure here.
				m.logger.Warn().Err(err).Msg("write failed, retrying")
				time.Sleep(time.Second)
				err = op.fn(m.db)
			}
			op.result <- err
		case <-m.done:
			return
		}
	}
}

func (m *Manager) executeWrite(ctx context.Context, fn func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case m.writes <- writeOp{fn: fn, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.cfg.WriteTimeout):
		return ErrWriteTimeout
	case <-m.done:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SaveSessionRecord persists one finalized session summary.
func (m *Manager) SaveSessionRecord(ctx context.Context, record *types.SessionRecord) error {
	if record == nil || record.DeviceID == "" {
		return ErrInvalidRecord
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		var startedAt interface{}
		if record.StartedAt != nil {
			startedAt = record.StartedAt.UTC()
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO session_records
				(device_id, session_id, started_at, ended_at, duration_seconds, file_count, total_file_size_bytes)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			record.DeviceID, record.SessionID, startedAt, record.EndedAt.UTC(),
			record.DurationSeconds, record.FileCount, record.TotalFileSizeBytes,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session record: %w", err)
		}
		return nil
	})
}

// ListSessionRecords returns stored records for one device, newest first,
// or for all devices when deviceID is empty.
func (m *Manager) ListSessionRecords(ctx context.Context, deviceID string) ([]*types.SessionRecord, error) {
	query := `
		SELECT device_id, session_id, started_at, ended_at, duration_seconds, file_count, total_file_size_bytes
		FROM session_records`
	args := []interface{}{}
	if deviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY ended_at DESC`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query session records: %w", err)
	}
	defer rows.Close()

	var records []*types.SessionRecord
	for rows.Next() {
		record := &types.SessionRecord{}
		var startedAt sql.NullTime
		if err := rows.Scan(
			&record.DeviceID, &record.SessionID, &startedAt, &record.EndedAt,
			&record.DurationSeconds, &record.FileCount, &record.TotalFileSizeBytes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session record: %w", err)
		}
		if startedAt.Valid {
			t := startedAt.Time
			record.StartedAt = &t
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// HealthCheck verifies connectivity and that the schema is usable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_records`).Scan(&count); err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}
	return nil
}

// Close stops the writer and closes the connection pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()
	return m.db.Close()
}

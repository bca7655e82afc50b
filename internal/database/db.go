package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/ZanzyTHEbar/epa-scoring/internal/resilience"
)

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite3"
	DriverPostgres Driver = "pgx"
)

// Options configures Open.
type Options struct {
	Driver Driver
	// DSN is used as-is when set. For SQLite an empty DSN places the file
	// under DataDir.
	DSN     string
	DataDir string

	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	driver   Driver
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

func (o Options) dataSource() (string, string, error) {
	switch o.Driver {
	case DriverSQLite, "":
		if o.DSN != "" {
			return string(DriverSQLite), o.DSN, nil
		}
		dataDir := o.DataDir
		if dataDir == "" {
			dataDir = "./data"
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return "", "", fmt.Errorf("failed to create data directory: %w", err)
		}
		dbPath := filepath.Join(dataDir, "epa_scoring.db")
		return string(DriverSQLite), dbPath + "?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", nil
	case DriverPostgres:
		dsn := o.DSN
		if dsn == "" {
			dsn = "postgres://localhost:5432/epa_scoring?sslmode=disable"
		}
		return string(DriverPostgres), dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported driver: %s", o.Driver)
	}
}

// Open connects to the configured database, waits for it to accept pings,
// applies the schema and seeds reference data.
func Open(ctx context.Context, opts Options) (*DB, error) {
	driverName, dsn, err := opts.dataSource()
	if err != nil {
		return nil, errors.NewConfigurationError(err.Error(), err)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.NewStoreError("open", err)
	}

	err = resilience.RetryWithPolicy(ctx, resilience.StoreStartupPolicy, func() error {
		if pingErr := sqlDB.PingContext(ctx); pingErr != nil {
			slog.Warn("Database not ready", "driver", driverName, "error", pingErr)
			return errors.NewStoreError("ping", pingErr)
		}
		return nil
	})
	if err != nil {
		errors.SafeClose(sqlDB, "database")
		return nil, err
	}

	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 5
	}
	if opts.MaxLifetime == 0 {
		opts.MaxLifetime = 5 * time.Minute
	}
	pool := NewConnectionPool(sqlDB, opts.MaxOpenConns, opts.MaxIdleConns, opts.MaxLifetime)

	database := &DB{
		DB:       sqlDB,
		driver:   Driver(driverName),
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(ctx); err != nil {
		errors.SafeClose(sqlDB, "database")
		return nil, errors.NewStoreError("migrate", err)
	}
	if err := database.seed(ctx); err != nil {
		errors.SafeClose(sqlDB, "database")
		return nil, errors.NewStoreError("seed", err)
	}
	if err := database.initPreparedStatements(ctx); err != nil {
		errors.SafeClose(sqlDB, "database")
		return nil, errors.NewStoreError("prepare", err)
	}

	slog.Info("Database initialized with connection pooling",
		"driver", driverName,
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns,
		"max_lifetime", pool.maxLifetime)

	return database, nil
}

// Driver returns the backend in use.
func (db *DB) Driver() Driver {
	return db.driver
}

// rebind rewrites ? placeholders to $n for Postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// migrate creates the necessary tables
func (db *DB) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS core_epas (
			epa_id TEXT PRIMARY KEY,
			epa_name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS smaller_epas (
			smaller_epa_id TEXT PRIMARY KEY,
			core_epa_id TEXT NOT NULL REFERENCES core_epas(epa_id),
			smaller_epa_name TEXT NOT NULL,
			sequence_order INTEGER NOT NULL DEFAULT 0,
			weight_percentage DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS activities (
			activity_id TEXT PRIMARY KEY,
			smaller_epa_id TEXT NOT NULL REFERENCES smaller_epas(smaller_epa_id),
			activity_name TEXT NOT NULL,
			sequence_order INTEGER NOT NULL DEFAULT 0,
			weight_percentage DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS performance_indicators (
			indicator_id TEXT PRIMARY KEY,
			activity_id TEXT NOT NULL REFERENCES activities(activity_id),
			indicator_name TEXT NOT NULL,
			weight_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
			competency_type TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS context_types (
			context_id TEXT PRIMARY KEY,
			context_name TEXT NOT NULL,
			base_multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0
		)`,

		`CREATE TABLE IF NOT EXISTS technology_levels (
			tech_level_id TEXT PRIMARY KEY,
			tech_level_name TEXT NOT NULL,
			multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0
		)`,

		`CREATE TABLE IF NOT EXISTS students (
			student_id TEXT PRIMARY KEY,
			student_name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			cohort TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'Active'
		)`,

		`CREATE TABLE IF NOT EXISTS faculty (
			faculty_id TEXT PRIMARY KEY,
			faculty_name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'Active'
		)`,

		// Append-only evidence trail
		`CREATE TABLE IF NOT EXISTS student_assessments (
			assessment_id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL REFERENCES students(student_id),
			indicator_id TEXT NOT NULL REFERENCES performance_indicators(indicator_id),
			assessor_id TEXT NOT NULL,
			base_score DOUBLE PRECISION NOT NULL CHECK (base_score >= 1.0 AND base_score <= 5.0),
			context_id TEXT REFERENCES context_types(context_id),
			tech_level_id TEXT REFERENCES technology_levels(tech_level_id),
			evidence_type TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			assessment_date TIMESTAMP NOT NULL
		)`,

		// History; the latest row per (student, epa, level) is authoritative
		`CREATE TABLE IF NOT EXISTS calculated_scores (
			score_id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			epa_id TEXT NOT NULL,
			score_level TEXT NOT NULL,
			final_score DOUBLE PRECISION NOT NULL,
			calculation_date TIMESTAMP NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_smaller_epas_core ON smaller_epas(core_epa_id, sequence_order)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_smaller ON activities(smaller_epa_id, sequence_order)`,
		`CREATE INDEX IF NOT EXISTS idx_indicators_activity ON performance_indicators(activity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_assessments_student ON student_assessments(student_id, assessment_date)`,
		`CREATE INDEX IF NOT EXISTS idx_assessments_indicator ON student_assessments(indicator_id)`,
		`CREATE INDEX IF NOT EXISTS idx_calculated_scores_lookup ON calculated_scores(student_id, epa_id, score_level)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// seed inserts the reference tables the scoring formulas depend on. Rows
// that already exist are left alone.
func (db *DB) seed(ctx context.Context) error {
	coreEPAs := [][2]string{
		{"EPA_001", "Comprehensive Health Assessment"},
		{"EPA_002", "Nursing Diagnosis and Clinical Reasoning"},
		{"EPA_003", "Care Planning"},
		{"EPA_004", "Implementation of Nursing Interventions"},
		{"EPA_005", "Emergency and Critical Care"},
		{"EPA_006", "Specialized Care"},
		{"EPA_007", "Community and Public Health"},
		{"EPA_008", "Health Informatics and Technology"},
	}
	for _, epa := range coreEPAs {
		if _, err := db.ExecContext(ctx, db.rebind(
			`INSERT INTO core_epas (epa_id, epa_name) VALUES (?, ?) ON CONFLICT (epa_id) DO NOTHING`),
			epa[0], epa[1]); err != nil {
			return fmt.Errorf("seed core_epas: %w", err)
		}
	}

	contexts := []struct {
		id, name string
		mult     float64
	}{
		{"CTX_SIM", "Simulation Lab", 0.9},
		{"CTX_WARD", "General Ward", 1.0},
		{"CTX_ICU", "Intensive Care Unit", 1.1},
		{"CTX_ER", "Emergency Department", 1.2},
		{"CTX_COMM", "Community Setting", 1.05},
	}
	for _, c := range contexts {
		if _, err := db.ExecContext(ctx, db.rebind(
			`INSERT INTO context_types (context_id, context_name, base_multiplier) VALUES (?, ?, ?) ON CONFLICT (context_id) DO NOTHING`),
			c.id, c.name, c.mult); err != nil {
			return fmt.Errorf("seed context_types: %w", err)
		}
	}

	techLevels := []struct {
		id, name string
		mult     float64
	}{
		{"TECH_BASIC", "Basic", 1.0},
		{"TECH_INTERMEDIATE", "Intermediate", 1.05},
		{"TECH_ADVANCED", "Advanced", 1.1},
	}
	for _, t := range techLevels {
		if _, err := db.ExecContext(ctx, db.rebind(
			`INSERT INTO technology_levels (tech_level_id, tech_level_name, multiplier) VALUES (?, ?, ?) ON CONFLICT (tech_level_id) DO NOTHING`),
			t.id, t.name, t.mult); err != nil {
			return fmt.Errorf("seed technology_levels: %w", err)
		}
	}

	return nil
}

// initPreparedStatements prepares the queries on the scoring hot path
func (db *DB) initPreparedStatements(ctx context.Context) error {
	statements := map[string]string{
		stmtFindAssessment:          assessmentSelect + ` WHERE sa.assessment_id = ?`,
		stmtListActivityAssessments: assessmentSelect + ` WHERE sa.student_id = ? AND pi.activity_id = ? ORDER BY sa.assessment_date DESC`,
		stmtAverageCoreScore: `SELECT AVG(final_score), COUNT(*) FROM calculated_scores
			WHERE student_id = ? AND epa_id = ? AND score_level = 'Core_EPA'`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.PrepareContext(ctx, db.rebind(query))
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the database connection and prepared statements
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}

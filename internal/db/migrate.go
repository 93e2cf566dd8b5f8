// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migrationDef is one schema migration carried in-code. The engine ships its
// schema with the binary rather than scanning a migrations directory; the
// annotation UI bundles the daemon as a single file.
type migrationDef struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of schema migrations.
var migrations = []migrationDef{
	{
		Version:     1,
		Description: "initial schema",
		SQL: `
		CREATE TABLE annotation_records (
			id TEXT PRIMARY KEY,
			dataset_id TEXT NOT NULL,
			episode_id TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '{}',
			local_updated_at INTEGER NOT NULL,
			server_updated_at INTEGER NOT NULL DEFAULT 0,
			sync_status TEXT NOT NULL DEFAULT 'pending'
				CHECK(sync_status IN ('synced', 'pending', 'conflict'))
		);
		CREATE INDEX idx_annotation_records_dataset ON annotation_records(dataset_id);
		CREATE INDEX idx_annotation_records_status ON annotation_records(sync_status);

		CREATE TABLE sync_queue (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL CHECK(type IN ('create', 'update', 'delete')),
			dataset_id TEXT NOT NULL,
			episode_id TEXT NOT NULL,
			annotation_id TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX idx_sync_queue_created ON sync_queue(created_at);
		CREATE INDEX idx_sync_queue_annotation ON sync_queue(annotation_id);

		CREATE TABLE sync_metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
		`,
	},
}

// Migrator handles database schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies all pending migrations in version order. A version already
// recorded in schema_migrations is verified against its checksum and skipped.
func (m *Migrator) Up() error {
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	appliedByVersion := make(map[int]Migration)
	for _, mig := range applied {
		appliedByVersion[mig.Version] = mig
	}

	for _, def := range migrations {
		checksum := checksumSQL(def.SQL)

		if prev, ok := appliedByVersion[def.Version]; ok {
			if prev.Checksum != checksum {
				return fmt.Errorf("migration V%d checksum mismatch: schema drift detected", def.Version)
			}
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration V%d: %w", def.Version, err)
		}

		if _, err := tx.Exec(def.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration V%d (%s) failed: %w", def.Version, def.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
			def.Version, time.Now().Unix(), def.Description, checksum,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration V%d: %w", def.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration V%d: %w", def.Version, err)
		}
	}

	return nil
}

// checksumSQL returns the hex-encoded SHA-256 of a migration body.
func checksumSQL(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}

// Setup opens the schema on a fresh or existing database: Initialize + Up.
func Setup(db *sql.DB) error {
	migrator := NewMigrator(db)
	if err := migrator.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize migrator: %w", err)
	}
	return migrator.Up()
}

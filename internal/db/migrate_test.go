package db

import (
	"testing"
)

func setupMigrator(t *testing.T) (*Migrator, *DB) {
	t.Helper()

	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	migrator := NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Failed to initialize migrator: %v", err)
	}
	return migrator, database
}

// TestMigratorUp verifies all migrations apply and every table exists.
func TestMigratorUp(t *testing.T) {
	migrator, database := setupMigrator(t)

	if err := migrator.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	version, err := migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("Expected version %d, got %d", len(migrations), version)
	}

	for _, table := range []string{"annotation_records", "sync_queue", "sync_metadata"} {
		var name string
		err := database.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}

// TestMigratorUpIdempotent verifies a second Up is a no-op.
func TestMigratorUpIdempotent(t *testing.T) {
	migrator, _ := setupMigrator(t)

	if err := migrator.Up(); err != nil {
		t.Fatalf("First Up failed: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Second Up failed: %v", err)
	}

	applied, err := migrator.GetAppliedMigrations()
	if err != nil {
		t.Fatalf("GetAppliedMigrations failed: %v", err)
	}
	if len(applied) != len(migrations) {
		t.Errorf("Expected %d applied migrations, got %d", len(migrations), len(applied))
	}
}

// TestMigratorChecksumDrift verifies a tampered recorded checksum is
// detected.
func TestMigratorChecksumDrift(t *testing.T) {
	migrator, database := setupMigrator(t)

	if err := migrator.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	// Simulate the binary's migration body having changed since this
	// database was created.
	bogus := checksumSQL("something else entirely")
	if _, err := database.Exec("UPDATE schema_migrations SET checksum = ? WHERE version = 1", bogus); err != nil {
		t.Fatalf("Failed to tamper checksum: %v", err)
	}

	if err := migrator.Up(); err == nil {
		t.Error("Expected checksum mismatch error")
	}
}

// TestMigratorCurrentVersionEmpty verifies version 0 on a fresh database.
func TestMigratorCurrentVersionEmpty(t *testing.T) {
	migrator, _ := setupMigrator(t)

	version, err := migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("Expected version 0, got %d", version)
	}
}

// TestMigrationChecksumStable verifies the checksum helper is deterministic
// and hex-encoded SHA-256 sized.
func TestMigrationChecksumStable(t *testing.T) {
	a := checksumSQL("CREATE TABLE t (id TEXT);")
	b := checksumSQL("CREATE TABLE t (id TEXT);")
	if a != b {
		t.Error("Expected deterministic checksum")
	}
	if len(a) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(a))
	}
	if a == checksumSQL("CREATE TABLE u (id TEXT);") {
		t.Error("Expected different SQL to produce different checksums")
	}
}

// TestSetup verifies the one-call path used by the daemon and tests.
func TestSetup(t *testing.T) {
	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := Setup(database.DB); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := Setup(database.DB); err != nil {
		t.Fatalf("Repeated Setup failed: %v", err)
	}
}

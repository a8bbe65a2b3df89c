// Package testing provides testing utilities and helpers shared across packages.
package testing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aristath/adaptivetrader/internal/database"
)

// NewTestDB creates a file-backed SQLite database with the named schema applied.
// Returns the database instance and a cleanup function that closes the
// connection and removes the file. The cleanup function is idempotent.
//
// Supported schema names:
//   - "registry" - applies registry_schema.sql
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	// Temporary files keep every test isolated
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	return db, func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(tmpPath + suffix); err != nil && !os.IsNotExist(err) {
				t.Logf("Warning: Failed to remove temporary database file %s: %v", tmpPath+suffix, err)
			}
		}
	}
}

// NewCorruptTestDB returns an open database whose data pages were overwritten
// on disk after the first page, so the schema still loads but integrity
// checks fail. The database is closed and removed when the test ends.
func NewCorruptTestDB(t *testing.T) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "corrupt.db")
	cfg := database.Config{Path: path, Profile: database.ProfileStandard, Name: "corrupt"}

	db, err := database.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	conn := db.Conn()
	if _, err := conn.Exec("CREATE TABLE samples (id INTEGER PRIMARY KEY, payload TEXT NOT NULL)"); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	for i := 0; i < 200; i++ {
		if _, err := conn.Exec("INSERT INTO samples (payload) VALUES (?)", strings.Repeat("x", 100)); err != nil {
			t.Fatalf("Failed to insert row: %v", err)
		}
	}
	if err := db.WALCheckpoint("TRUNCATE"); err != nil {
		t.Fatalf("Failed to checkpoint: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close database: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read database file: %v", err)
	}
	const pageSize = 4096
	if len(data) <= pageSize {
		t.Fatalf("Database file too small to corrupt: %d bytes", len(data))
	}
	for i := pageSize; i < len(data); i++ {
		data[i] = 0xFF
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write corrupted file: %v", err)
	}

	db, err = database.New(cfg)
	if err != nil {
		t.Fatalf("Failed to reopen corrupted database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})
	return db
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.DatabasePath != "./data/quizroom.db" {
		t.Errorf("Expected DatabasePath './data/quizroom.db', got %s", config.DatabasePath)
	}
	if config.MaxConnections != 10 {
		t.Errorf("Expected MaxConnections 10, got %d", config.MaxConnections)
	}
	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime 1 hour, got %v", config.ConnMaxLifetime)
	}
	if config.MigrationsPath != "" {
		t.Errorf("Expected embedded migrations by default, got %q", config.MigrationsPath)
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"empty database path", func(c *Config) { c.DatabasePath = "" }, true},
		{"zero max connections", func(c *Config) { c.MaxConnections = 0 }, true},
		{"zero lifetime", func(c *Config) { c.ConnMaxLifetime = 0 }, true},
		{"zero idle time", func(c *Config) { c.ConnMaxIdleTime = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMigrationManager_EmbeddedMigrationsProduceValidSchema(t *testing.T) {
	db := openTestDB(t)

	mgr := NewMigrationManager(db, "")
	if err := mgr.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	if err := NewSchemaValidator(db).Validate(); err != nil {
		t.Errorf("Schema validation failed after migrations: %v", err)
	}

	applied, err := mgr.AppliedVersions()
	if err != nil {
		t.Fatalf("AppliedVersions failed: %v", err)
	}
	if !applied["001"] || !applied["002"] {
		t.Errorf("Expected versions 001 and 002 to be recorded, got %v", applied)
	}
}

func TestMigrationManager_Idempotent(t *testing.T) {
	db := openTestDB(t)
	mgr := NewMigrationManager(db, "")

	for i := 0; i < 2; i++ {
		if err := mgr.ApplyMigrations(); err != nil {
			t.Fatalf("ApplyMigrations run %d failed: %v", i+1, err)
		}
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("Failed to count migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 recorded migrations, got %d", count)
	}
}

func TestMigrationManager_OrdersByVersionAndSkipsNonSQL(t *testing.T) {
	db := openTestDB(t)
	source := fstest.MapFS{
		"002_second.sql": {Data: []byte(`INSERT INTO first_table (id) VALUES ('x');`)},
		"001_first.sql":  {Data: []byte(`CREATE TABLE first_table (id TEXT PRIMARY KEY);`)},
		"README.md":      {Data: []byte(`not a migration`)},
	}

	mgr := NewMigrationManagerFS(db, source)
	migrations, err := mgr.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations failed: %v", err)
	}
	if len(migrations) != 2 || migrations[0].Version != "001" || migrations[1].Description != "second" {
		t.Fatalf("Unexpected migrations: %+v", migrations)
	}

	if err := mgr.ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	var id string
	if err := db.QueryRow("SELECT id FROM first_table").Scan(&id); err != nil || id != "x" {
		t.Errorf("Expected migration 002 to run after 001, got id=%q err=%v", id, err)
	}
}

func TestMigrationManager_FailedMigrationRollsBack(t *testing.T) {
	db := openTestDB(t)
	source := fstest.MapFS{
		"001_broken.sql": {Data: []byte(`CREATE TABLE ok_table (id TEXT); THIS IS NOT SQL;`)},
	}

	mgr := NewMigrationManagerFS(db, source)
	if err := mgr.ApplyMigrations(); err == nil {
		t.Fatal("Expected broken migration to fail")
	}

	applied, err := mgr.AppliedVersions()
	if err != nil {
		t.Fatalf("AppliedVersions failed: %v", err)
	}
	if applied["001"] {
		t.Error("Failed migration must not be recorded")
	}
}

func TestSchemaValidator_EmptyDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := NewSchemaValidator(db).Validate(); err == nil {
		t.Error("Validate should fail on an empty database")
	}
}

func TestSchema_MessageRoomCascade(t *testing.T) {
	db := openTestDB(t)
	if err := NewMigrationManager(db, "").ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	now := time.Now().UTC()
	if _, err := db.Exec(`INSERT INTO chat_rooms (id, name, type, created_by, created_at) VALUES ('r1', 'Room', 'GENERAL', 'u1', ?)`, now); err != nil {
		t.Fatalf("Failed to insert room: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO chat_messages (id, room_id, user_id, content, created_at) VALUES ('m1', 'r1', 'u1', 'hi', ?)`, now); err != nil {
		t.Fatalf("Failed to insert message: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM chat_rooms WHERE id = 'r1'`); err != nil {
		t.Fatalf("Failed to delete room: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM chat_messages`).Scan(&count); err != nil {
		t.Fatalf("Failed to count messages: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected messages to cascade with their room, %d left", count)
	}
}

func TestSchema_RejectsUnknownRoomType(t *testing.T) {
	db := openTestDB(t)
	if err := NewMigrationManager(db, "").ApplyMigrations(); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO chat_rooms (id, name, type, created_by, created_at) VALUES ('r1', 'Room', 'LOBBY', 'u1', CURRENT_TIMESTAMP)`)
	if err == nil {
		t.Error("Expected check constraint to reject unknown room type")
	}
}

func TestApplySQLiteOptimizations(t *testing.T) {
	db := openTestDB(t)

	if err := ApplySQLiteOptimizations(db); err != nil {
		t.Fatalf("Failed to apply SQLite optimizations: %v", err)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to check journal mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected WAL journal mode, got %s", journalMode)
	}
}

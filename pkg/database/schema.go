package database

import (
	"database/sql"
	"fmt"
)

// RequiredTables lists every table the server reads or writes
var RequiredTables = []string{
	"users",
	"quizzes",
	"quiz_attempts",
	"study_groups",
	"study_group_members",
	"study_sessions",
	"chat_rooms",
	"chat_messages",
	"user_presence",
	"suspicious_activities",
	"quiz_broadcasts",
	"study_progress_events",
	"schema_migrations",
}

// RequiredIndexes lists the indexes the hot read paths rely on
var RequiredIndexes = []string{
	"idx_chat_rooms_quiz",
	"idx_chat_rooms_group",
	"idx_chat_messages_room_time",
	"idx_quiz_attempts_user_quiz",
}

// SchemaValidator checks a migrated database before the server starts serving
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every structural check
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateIndexes(); err != nil {
		return err
	}
	return v.ValidateMessageColumns()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for _, table := range RequiredTables {
		exists, err := v.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// ValidateIndexes verifies that the performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for _, index := range RequiredIndexes {
		exists, err := v.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}
	return nil
}

// ValidateMessageColumns verifies the soft-delete and flag columns of chat_messages
func (v *SchemaValidator) ValidateMessageColumns() error {
	expected := map[string]string{
		"id":                "TEXT",
		"room_id":           "TEXT",
		"user_id":           "TEXT",
		"content":           "TEXT",
		"is_system_message": "INTEGER",
		"reply_to_id":       "TEXT",
		"is_flagged":        "INTEGER",
		"is_deleted":        "INTEGER",
		"deleted_at":        "DATETIME",
		"created_at":        "DATETIME",
	}

	rows, err := v.db.Query("PRAGMA table_info(chat_messages)")
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]string)
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		found[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, wantType := range expected {
		gotType, ok := found[column]
		if !ok {
			return fmt.Errorf("chat_messages column %s not found", column)
		}
		if gotType != wantType {
			return fmt.Errorf("chat_messages column %s has type %s, expected %s", column, gotType, wantType)
		}
	}
	return nil
}

func (v *SchemaValidator) objectExists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

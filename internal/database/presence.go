package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quizroom/pkg/interfaces"
	"quizroom/pkg/types"
)

// MarkOnline upserts the presence row of a user as online on socketID
func (m *Manager) MarkOnline(ctx context.Context, userID, socketID string, at time.Time) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO user_presence (user_id, is_online, last_seen, socket_id, current_room)
			VALUES (?, 1, ?, ?, NULL)
			ON CONFLICT(user_id) DO UPDATE SET
				is_online = 1,
				last_seen = excluded.last_seen,
				socket_id = excluded.socket_id
		`, userID, at.UTC(), socketID)
		if err != nil {
			return fmt.Errorf("failed to mark user %s online: %w", userID, err)
		}
		return nil
	})
}

// SetCurrentRoom records the room a user is in; a nil room clears it
func (m *Manager) SetCurrentRoom(ctx context.Context, userID string, roomID *string, at time.Time) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO user_presence (user_id, is_online, last_seen, socket_id, current_room)
			VALUES (?, 1, ?, NULL, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				last_seen = excluded.last_seen,
				current_room = excluded.current_room
		`, userID, at.UTC(), nullString(roomID))
		if err != nil {
			return fmt.Errorf("failed to set current room of %s: %w", userID, err)
		}
		return nil
	})
}

// MarkOffline flips the presence row to offline and clears the socket
func (m *Manager) MarkOffline(ctx context.Context, userID string, at time.Time) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO user_presence (user_id, is_online, last_seen, socket_id, current_room)
			VALUES (?, 0, ?, NULL, NULL)
			ON CONFLICT(user_id) DO UPDATE SET
				is_online = 0,
				last_seen = excluded.last_seen,
				socket_id = NULL
		`, userID, at.UTC())
		if err != nil {
			return fmt.Errorf("failed to mark user %s offline: %w", userID, err)
		}
		return nil
	})
}

// GetPresence reads the presence row of a user
func (m *Manager) GetPresence(ctx context.Context, userID string) (*types.PresenceRecord, error) {
	var (
		record      types.PresenceRecord
		socketID    sql.NullString
		currentRoom sql.NullString
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT user_id, is_online, last_seen, socket_id, current_room
		FROM user_presence WHERE user_id = ?
	`, userID).Scan(&record.UserID, &record.IsOnline, &record.LastSeen, &socketID, &currentRoom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence of %s: %w", userID, err)
	}
	record.SocketID = stringPtr(socketID)
	record.CurrentRoom = stringPtr(currentRoom)
	return &record, nil
}

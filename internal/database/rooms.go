package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quizroom/pkg/interfaces"
	"quizroom/pkg/types"
)

const roomColumns = `id, name, description, type, is_active, allow_chat_during_quiz,
	quiz_id, study_group_id, created_by, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoom(row rowScanner) (*types.ChatRoom, error) {
	var (
		room         types.ChatRoom
		quizID       sql.NullString
		studyGroupID sql.NullString
	)
	err := row.Scan(&room.ID, &room.Name, &room.Description, &room.Type, &room.IsActive,
		&room.AllowChatDuringQuiz, &quizID, &studyGroupID, &room.CreatedBy, &room.CreatedAt)
	if err != nil {
		return nil, err
	}
	room.QuizID = stringPtr(quizID)
	room.StudyGroupID = stringPtr(studyGroupID)
	return &room, nil
}

// CreateRoom inserts a new chat room
func (m *Manager) CreateRoom(ctx context.Context, room *types.ChatRoom) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO chat_rooms (`+roomColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, room.ID, room.Name, room.Description, string(room.Type), room.IsActive,
			room.AllowChatDuringQuiz, nullString(room.QuizID), nullString(room.StudyGroupID),
			room.CreatedBy, room.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to create room %s: %w", room.ID, err)
		}
		return nil
	})
}

// GetRoom reads a room by ID
func (m *Manager) GetRoom(ctx context.Context, roomID string) (*types.ChatRoom, error) {
	room, err := scanRoom(m.db.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM chat_rooms WHERE id = ?", roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", roomID, err)
	}
	return room, nil
}

// UpdateRoom applies the non-nil fields of update and returns the stored room
func (m *Manager) UpdateRoom(ctx context.Context, roomID string, update *types.RoomUpdate) (*types.ChatRoom, error) {
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		room, err := scanRoom(db.QueryRowContext(ctx,
			"SELECT "+roomColumns+" FROM chat_rooms WHERE id = ?", roomID))
		if errors.Is(err, sql.ErrNoRows) {
			return interfaces.ErrRoomNotFound
		}
		if err != nil {
			return err
		}

		if update.Name != nil {
			room.Name = *update.Name
		}
		if update.Description != nil {
			room.Description = *update.Description
		}
		if update.IsActive != nil {
			room.IsActive = *update.IsActive
		}
		if update.AllowChatDuringQuiz != nil {
			room.AllowChatDuringQuiz = *update.AllowChatDuringQuiz
		}

		_, err = db.ExecContext(ctx, `
			UPDATE chat_rooms
			SET name = ?, description = ?, is_active = ?, allow_chat_during_quiz = ?
			WHERE id = ?
		`, room.Name, room.Description, room.IsActive, room.AllowChatDuringQuiz, roomID)
		return err
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrRoomNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update room %s: %w", roomID, err)
	}
	return m.GetRoom(ctx, roomID)
}

// DeleteRoom removes a room; its messages go with it through ON DELETE CASCADE
func (m *Manager) DeleteRoom(ctx context.Context, roomID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, "DELETE FROM chat_rooms WHERE id = ?", roomID)
		if err != nil {
			return fmt.Errorf("failed to delete room %s: %w", roomID, err)
		}
		return affectedOrNotFound(res, interfaces.ErrRoomNotFound)
	})
}

// ListRoomsByQuiz returns every room directly attached to a quiz
func (m *Manager) ListRoomsByQuiz(ctx context.Context, quizID string) ([]*types.ChatRoom, error) {
	return m.queryRooms(ctx,
		"SELECT "+roomColumns+" FROM chat_rooms WHERE quiz_id = ? ORDER BY created_at", quizID)
}

// ListRoomsByStudyGroup returns every room attached to a study group
func (m *Manager) ListRoomsByStudyGroup(ctx context.Context, studyGroupID string) ([]*types.ChatRoom, error) {
	return m.queryRooms(ctx,
		"SELECT "+roomColumns+" FROM chat_rooms WHERE study_group_id = ? ORDER BY created_at", studyGroupID)
}

// ListRoomsByType returns rooms of one type, optionally only the active ones
func (m *Manager) ListRoomsByType(ctx context.Context, roomType types.RoomType, activeOnly bool) ([]*types.ChatRoom, error) {
	query := "SELECT " + roomColumns + " FROM chat_rooms WHERE type = ?"
	if activeOnly {
		query += " AND is_active = 1"
	}
	return m.queryRooms(ctx, query+" ORDER BY created_at", string(roomType))
}

func (m *Manager) queryRooms(ctx context.Context, query string, args ...interface{}) ([]*types.ChatRoom, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rooms := make([]*types.ChatRoom, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

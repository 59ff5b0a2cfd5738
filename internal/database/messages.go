package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"quizroom/pkg/interfaces"
	"quizroom/pkg/types"
)

const messageColumns = `m.id, m.room_id, m.user_id, COALESCE(u.name, ''), m.content,
	m.is_system_message, m.reply_to_id, m.is_flagged, m.flagged_reason, m.flagged_by,
	m.flagged_at, m.is_deleted, m.deleted_at, m.deleted_by, m.created_at`

const messageFrom = ` FROM chat_messages m LEFT JOIN users u ON u.id = m.user_id`

func scanMessage(row rowScanner) (*types.ChatMessage, error) {
	var (
		msg           types.ChatMessage
		replyToID     sql.NullString
		flaggedReason sql.NullString
		flaggedBy     sql.NullString
		flaggedAt     sql.NullTime
		deletedAt     sql.NullTime
		deletedBy     sql.NullString
	)
	err := row.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.AuthorName, &msg.Content,
		&msg.IsSystemMessage, &replyToID, &msg.IsFlagged, &flaggedReason, &flaggedBy,
		&flaggedAt, &msg.IsDeleted, &deletedAt, &deletedBy, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	msg.ReplyToID = stringPtr(replyToID)
	msg.FlaggedReason = stringPtr(flaggedReason)
	msg.FlaggedBy = stringPtr(flaggedBy)
	msg.FlaggedAt = timePtr(flaggedAt)
	msg.DeletedAt = timePtr(deletedAt)
	msg.DeletedBy = stringPtr(deletedBy)
	return &msg, nil
}

// CreateMessage inserts a chat message
func (m *Manager) CreateMessage(ctx context.Context, message *types.ChatMessage) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO chat_messages (id, room_id, user_id, content, is_system_message, reply_to_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, message.ID, message.RoomID, message.UserID, message.Content,
			message.IsSystemMessage, nullString(message.ReplyToID), message.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to create message %s: %w", message.ID, err)
		}
		return nil
	})
}

// GetMessage reads a message by ID, soft-deleted or not
func (m *Manager) GetMessage(ctx context.Context, messageID string) (*types.ChatMessage, error) {
	msg, err := scanMessage(m.db.QueryRowContext(ctx,
		"SELECT "+messageColumns+messageFrom+" WHERE m.id = ?", messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	return msg, nil
}

// ListMessages returns the messages of a room oldest first. With a limit the
// newest matching messages are kept.
func (m *Manager) ListMessages(ctx context.Context, roomID string, filter types.MessageFilter) ([]*types.ChatMessage, error) {
	var (
		where = []string{"m.room_id = ?"}
		args  = []interface{}{roomID}
	)
	if !filter.IncludeDeleted {
		where = append(where, "m.is_deleted = 0")
	}
	if filter.Before != nil {
		where = append(where, "m.created_at < ?")
		args = append(args, filter.Before.UTC())
	}
	if filter.Since != nil {
		where = append(where, "m.created_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if filter.UserID != "" {
		where = append(where, "m.user_id = ?")
		args = append(args, filter.UserID)
	}

	query := "SELECT " + messageColumns + messageFrom +
		" WHERE " + strings.Join(where, " AND ") +
		" ORDER BY m.created_at DESC, m.rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages of %s: %w", roomID, err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]*types.ChatMessage, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// UpdateMessageContent replaces the content of a message and nothing else
func (m *Manager) UpdateMessageContent(ctx context.Context, messageID, content string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"UPDATE chat_messages SET content = ? WHERE id = ?", content, messageID)
		if err != nil {
			return fmt.Errorf("failed to update message %s: %w", messageID, err)
		}
		return affectedOrNotFound(res, interfaces.ErrMessageNotFound)
	})
}

// FlagMessage marks a message for moderator review
func (m *Manager) FlagMessage(ctx context.Context, messageID, reason, flaggedBy string, at time.Time) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE chat_messages
			SET is_flagged = 1, flagged_reason = ?, flagged_by = ?, flagged_at = ?
			WHERE id = ?
		`, reason, flaggedBy, at.UTC(), messageID)
		if err != nil {
			return fmt.Errorf("failed to flag message %s: %w", messageID, err)
		}
		return affectedOrNotFound(res, interfaces.ErrMessageNotFound)
	})
}

// SoftDeleteMessage hides a message from listings while keeping it for audit
func (m *Manager) SoftDeleteMessage(ctx context.Context, messageID, deletedBy string, at time.Time) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE chat_messages
			SET is_deleted = 1, deleted_at = ?, deleted_by = ?
			WHERE id = ?
		`, at.UTC(), deletedBy, messageID)
		if err != nil {
			return fmt.Errorf("failed to delete message %s: %w", messageID, err)
		}
		return affectedOrNotFound(res, interfaces.ErrMessageNotFound)
	})
}

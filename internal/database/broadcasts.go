package database

import (
	"context"
	"database/sql"
	"fmt"

	"quizroom/pkg/types"
)

// CreateQuizBroadcast appends a quiz status broadcast to the audit trail
func (m *Manager) CreateQuizBroadcast(ctx context.Context, broadcast *types.QuizBroadcast) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO quiz_broadcasts (id, quiz_id, type, message, sent_by, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`, broadcast.ID, broadcast.QuizID, string(broadcast.Type), broadcast.Message,
			broadcast.SentBy, broadcast.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("failed to record quiz broadcast: %w", err)
		}
		return nil
	})
}

// CreateStudyProgress appends a study progress event to the audit trail
func (m *Manager) CreateStudyProgress(ctx context.Context, event *types.StudyProgressEvent) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO study_progress_events (id, study_group_id, user_id, quiz_id, progress_type, message, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, event.ID, event.StudyGroupID, event.UserID, nullString(event.QuizID),
			string(event.ProgressType), event.Message, event.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("failed to record study progress: %w", err)
		}
		return nil
	})
}

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

// GetUser reads a platform user
func (m *Manager) GetUser(ctx context.Context, userID string) (*types.User, error) {
	var user types.User
	err := m.db.QueryRowContext(ctx,
		"SELECT id, name, role FROM users WHERE id = ?", userID,
	).Scan(&user.ID, &user.Name, &user.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	return &user, nil
}

const quizColumns = `id, title, is_active, start_at, time_limit, passing_score,
	is_exam, exam_end_time, created_by`

func scanQuiz(row rowScanner) (*types.Quiz, error) {
	var (
		quiz        types.Quiz
		startAt     sql.NullTime
		examEndTime sql.NullTime
	)
	err := row.Scan(&quiz.ID, &quiz.Title, &quiz.IsActive, &startAt, &quiz.TimeLimit,
		&quiz.PassingScore, &quiz.IsExam, &examEndTime, &quiz.CreatedBy)
	if err != nil {
		return nil, err
	}
	quiz.StartAt = timePtr(startAt)
	quiz.ExamEndTime = timePtr(examEndTime)
	return &quiz, nil
}

// GetQuiz reads a quiz
func (m *Manager) GetQuiz(ctx context.Context, quizID string) (*types.Quiz, error) {
	quiz, err := scanQuiz(m.db.QueryRowContext(ctx,
		"SELECT "+quizColumns+" FROM quizzes WHERE id = ?", quizID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz %s: %w", quizID, err)
	}
	return quiz, nil
}

// ListEndedExams returns exams whose end time is at or before now
func (m *Manager) ListEndedExams(ctx context.Context, now time.Time) ([]*types.Quiz, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT "+quizColumns+" FROM quizzes WHERE is_exam = 1 AND exam_end_time IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}
	defer func() { _ = rows.Close() }()

	exams := make([]*types.Quiz, 0)
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quiz: %w", err)
		}
		if !quiz.ExamEndTime.After(now) {
			exams = append(exams, quiz)
		}
	}
	return exams, rows.Err()
}

// GetStudyGroup reads a study group
func (m *Manager) GetStudyGroup(ctx context.Context, studyGroupID string) (*types.StudyGroup, error) {
	var (
		group  types.StudyGroup
		quizID sql.NullString
	)
	err := m.db.QueryRowContext(ctx,
		"SELECT id, name, quiz_id FROM study_groups WHERE id = ?", studyGroupID,
	).Scan(&group.ID, &group.Name, &quizID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get study group %s: %w", studyGroupID, err)
	}
	group.QuizID = stringPtr(quizID)
	return &group, nil
}

// ListStudyGroupsByQuiz returns the study groups attached to a quiz
func (m *Manager) ListStudyGroupsByQuiz(ctx context.Context, quizID string) ([]*types.StudyGroup, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT id, name, quiz_id FROM study_groups WHERE quiz_id = ? ORDER BY id", quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to list study groups of %s: %w", quizID, err)
	}
	defer func() { _ = rows.Close() }()

	groups := make([]*types.StudyGroup, 0)
	for rows.Next() {
		var (
			group types.StudyGroup
			qid   sql.NullString
		)
		if err := rows.Scan(&group.ID, &group.Name, &qid); err != nil {
			return nil, fmt.Errorf("failed to scan study group: %w", err)
		}
		group.QuizID = stringPtr(qid)
		groups = append(groups, &group)
	}
	return groups, rows.Err()
}

// IsStudyGroupMember reports whether userID belongs to the study group
func (m *Manager) IsStudyGroupMember(ctx context.Context, studyGroupID, userID string) (bool, error) {
	var member bool
	err := m.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM study_group_members WHERE study_group_id = ? AND user_id = ?)
	`, studyGroupID, userID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("failed to check membership of %s: %w", userID, err)
	}
	return member, nil
}

// GetStudySession reads a study session
func (m *Manager) GetStudySession(ctx context.Context, sessionID string) (*types.StudySession, error) {
	var (
		session types.StudySession
		groupID sql.NullString
	)
	err := m.db.QueryRowContext(ctx,
		"SELECT id, study_group_id, title, status FROM study_sessions WHERE id = ?", sessionID,
	).Scan(&session.ID, &groupID, &session.Title, &session.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get study session %s: %w", sessionID, err)
	}
	session.StudyGroupID = stringPtr(groupID)
	return &session, nil
}

// GetLatestAttempt returns the most recently started attempt of userID on quizID
func (m *Manager) GetLatestAttempt(ctx context.Context, userID, quizID string) (*types.QuizAttempt, error) {
	var (
		attempt     types.QuizAttempt
		completedAt sql.NullTime
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, quiz_id, started_at, completed_at
		FROM quiz_attempts
		WHERE user_id = ? AND quiz_id = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, userID, quizID).Scan(&attempt.ID, &attempt.UserID, &attempt.QuizID, &attempt.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt of %s on %s: %w", userID, quizID, err)
	}
	attempt.CompletedAt = timePtr(completedAt)
	return &attempt, nil
}

// HasCompletedAttempt reports whether any attempt on the quiz was submitted
func (m *Manager) HasCompletedAttempt(ctx context.Context, quizID string) (bool, error) {
	var completed bool
	err := m.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM quiz_attempts WHERE quiz_id = ? AND completed_at IS NOT NULL)
	`, quizID).Scan(&completed)
	if err != nil {
		return false, fmt.Errorf("failed to check completed attempts of %s: %w", quizID, err)
	}
	return completed, nil
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"quizroom/pkg/interfaces"
	"quizroom/pkg/types"
)

const findingColumns = `id, type, severity, description, evidence, timestamp,
	user_id, room_id, message_id, resolved`

func scanFinding(row rowScanner) (*types.Finding, error) {
	var (
		finding   types.Finding
		evidence  string
		messageID sql.NullString
	)
	err := row.Scan(&finding.ID, &finding.Type, &finding.Severity, &finding.Description,
		&evidence, &finding.Timestamp, &finding.UserID, &finding.RoomID, &messageID, &finding.Resolved)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(evidence), &finding.Evidence); err != nil {
		return nil, fmt.Errorf("failed to decode evidence of finding %s: %w", finding.ID, err)
	}
	if finding.Evidence == nil {
		finding.Evidence = []string{}
	}
	finding.MessageID = stringPtr(messageID)
	return &finding, nil
}

// CreateFinding persists a suspicious activity finding
func (m *Manager) CreateFinding(ctx context.Context, finding *types.Finding) error {
	evidence := finding.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	encoded, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("failed to encode evidence: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO suspicious_activities (`+findingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, finding.ID, string(finding.Type), string(finding.Severity), finding.Description,
			string(encoded), finding.Timestamp.UTC(), finding.UserID, finding.RoomID,
			nullString(finding.MessageID), finding.Resolved)
		if err != nil {
			return fmt.Errorf("failed to create finding %s: %w", finding.ID, err)
		}
		return nil
	})
}

// ListFindings returns findings newest first
func (m *Manager) ListFindings(ctx context.Context, filter types.FindingFilter) ([]*types.Finding, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.RoomID != "" {
		where = append(where, "room_id = ?")
		args = append(args, filter.RoomID)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.Resolved != nil {
		where = append(where, "resolved = ?")
		args = append(args, *filter.Resolved)
	}

	query := "SELECT " + findingColumns + " FROM suspicious_activities"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	findings := make([]*types.Finding, 0)
	for rows.Next() {
		finding, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, finding)
	}
	return findings, rows.Err()
}

// ResolveFinding marks a finding as reviewed and returns it
func (m *Manager) ResolveFinding(ctx context.Context, findingID string) (*types.Finding, error) {
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"UPDATE suspicious_activities SET resolved = 1 WHERE id = ?", findingID)
		if err != nil {
			return fmt.Errorf("failed to resolve finding %s: %w", findingID, err)
		}
		return affectedOrNotFound(res, interfaces.ErrFindingNotFound)
	})
	if err != nil {
		return nil, err
	}

	finding, err := scanFinding(m.db.QueryRowContext(ctx,
		"SELECT "+findingColumns+" FROM suspicious_activities WHERE id = ?", findingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrFindingNotFound
	}
	return finding, err
}

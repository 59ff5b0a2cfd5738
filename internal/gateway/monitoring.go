package gateway

import (
	"context"
	"fmt"
	"log"

	"quizroom/internal/integrity"
	"quizroom/pkg/types"
)

// MonitorRequest submits content for integrity scoring. With a QuizID the
// caller's latest attempt on that quiz is also checked for chat timing.
type MonitorRequest struct {
	Content   string `json:"content"`
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId,omitempty"`
	QuizID    string `json:"quizId,omitempty"`
}

// MonitorResult lists the findings recorded for a MonitorRequest
type MonitorResult struct {
	Flagged  bool             `json:"flagged"`
	Findings []*types.Finding `json:"findings"`
}

// monitorContent scores a stored message and records what it finds
func (g *Gateway) monitorContent(ctx context.Context, message *types.ChatMessage) {
	flagged, findings := g.monitor.MonitorMessage(message.Content, message.UserID, message.RoomID, message.ID)
	if !flagged {
		return
	}
	g.storeFindings(ctx, findings)
	log.Printf("Integrity flag: room=%s user=%s message=%s severity=%s",
		message.RoomID, message.UserID, message.ID, findings[0].Severity)
}

// storeFindings persists findings; a failed write is logged and skipped
func (g *Gateway) storeFindings(ctx context.Context, findings []*types.Finding) {
	for _, finding := range findings {
		if err := g.store.CreateFinding(ctx, finding); err != nil {
			log.Printf("Failed to record finding %s for user %s: %v", finding.Type, finding.UserID, err)
		}
	}
}

// MonitorContent scores arbitrary content on behalf of the caller
func (g *Gateway) MonitorContent(ctx context.Context, caller Caller, req MonitorRequest) (*MonitorResult, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	flagged, findings := g.monitor.MonitorMessage(req.Content, caller.UserID, req.RoomID, req.MessageID)
	g.storeFindings(ctx, findings)

	if req.QuizID != "" {
		timing, err := g.AnalyzeAttemptTiming(ctx, caller.UserID, req.QuizID, req.RoomID)
		if err != nil {
			return nil, err
		}
		if len(timing) > 0 {
			flagged = true
			findings = append(findings, timing...)
		}
	}

	return &MonitorResult{Flagged: flagged, Findings: findings}, nil
}

// AnalyzeAttemptTiming checks the user's messages in a room against their
// latest attempt on a quiz, over [startedAt, completedAt or now], and
// records the findings. Each finding type is recorded once per attempt; a
// repeated analysis returns the stored finding instead of a new one.
func (g *Gateway) AnalyzeAttemptTiming(ctx context.Context, userID, quizID, roomID string) ([]*types.Finding, error) {
	if quizID == "" {
		return nil, ErrMissingQuizID
	}

	attempt, err := g.store.GetLatestAttempt(ctx, userID, quizID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}

	if roomID == "" {
		return []*types.Finding{}, nil
	}

	since := attempt.StartedAt
	messages, err := g.store.ListMessages(ctx, roomID, types.MessageFilter{
		UserID:         userID,
		Since:          &since,
		IncludeDeleted: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	findings := g.monitor.AnalyzeMessageTiming(integrity.FromChatMessages(messages), attempt.StartedAt, attempt.CompletedAt)
	if len(findings) == 0 {
		return findings, nil
	}

	existing, err := g.store.ListFindings(ctx, types.FindingFilter{RoomID: roomID, UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to load findings: %w", err)
	}
	marker := attemptEvidence(attempt.ID)
	recorded := make(map[types.FindingType]*types.Finding)
	for _, finding := range existing {
		if _, seen := recorded[finding.Type]; !seen && hasEvidence(finding, marker) {
			recorded[finding.Type] = finding
		}
	}

	results := make([]*types.Finding, 0, len(findings))
	fresh := make([]*types.Finding, 0, len(findings))
	for _, finding := range findings {
		if stored, ok := recorded[finding.Type]; ok {
			results = append(results, stored)
			continue
		}
		finding.Evidence = append([]string{marker}, finding.Evidence...)
		fresh = append(fresh, finding)
		results = append(results, finding)
	}
	g.storeFindings(ctx, fresh)
	return results, nil
}

func attemptEvidence(attemptID string) string {
	return "attempt: " + attemptID
}

func hasEvidence(finding *types.Finding, entry string) bool {
	for _, e := range finding.Evidence {
		if e == entry {
			return true
		}
	}
	return false
}

// ListFindings returns recorded findings; staff only
func (g *Gateway) ListFindings(ctx context.Context, caller Caller, filter types.FindingFilter) ([]*types.Finding, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsStaff() {
		return nil, ErrStaffOnly
	}
	if filter.Severity != "" && !types.IsValidSeverity(filter.Severity) {
		return nil, types.ErrInvalidSeverity
	}
	return g.store.ListFindings(ctx, filter)
}

// ResolveFinding marks a finding reviewed; staff only
func (g *Gateway) ResolveFinding(ctx context.Context, caller Caller, findingID string) (*types.Finding, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsStaff() {
		return nil, ErrStaffOnly
	}

	finding, err := g.store.ResolveFinding(ctx, findingID)
	if err != nil {
		return nil, err
	}
	log.Printf("Finding resolved: finding=%s by=%s", findingID, caller.UserID)
	return finding, nil
}

// Report rolls the findings of a room and/or user up into an integrity report; staff only
func (g *Gateway) Report(ctx context.Context, caller Caller, roomID, userID string) (*integrity.Report, error) {
	findings, err := g.ListFindings(ctx, caller, types.FindingFilter{RoomID: roomID, UserID: userID})
	if err != nil {
		return nil, err
	}
	return integrity.GenerateIntegrityReport(findings), nil
}

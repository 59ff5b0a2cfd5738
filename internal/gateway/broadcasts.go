package gateway

import (
	"context"
	"fmt"
	"log"
)

// AuthorizeGroupBroadcast checks that the caller may post into the rooms of a
// study group. Staff always pass. Students must be members and each broadcast
// counts against their message rate limit.
func (g *Gateway) AuthorizeGroupBroadcast(ctx context.Context, caller Caller, studyGroupID string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if caller.IsStaff() {
		return nil
	}
	if err := g.requireGroupMember(ctx, caller, studyGroupID); err != nil {
		return err
	}
	if !g.limiter.Allow(caller.UserID) {
		return ErrRateLimitExceeded
	}
	return nil
}

// AuthorizeSessionBroadcast applies AuthorizeGroupBroadcast through the
// session's study group. A session outside any group is open to every caller.
func (g *Gateway) AuthorizeSessionBroadcast(ctx context.Context, caller Caller, sessionID string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if caller.IsStaff() {
		return nil
	}

	session, err := g.store.GetStudySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load study session %s: %w", sessionID, err)
	}
	if session.StudyGroupID != nil {
		if err := g.requireGroupMember(ctx, caller, *session.StudyGroupID); err != nil {
			return err
		}
	}
	if !g.limiter.Allow(caller.UserID) {
		return ErrRateLimitExceeded
	}
	return nil
}

// requireGroupMember leaves an empty group id to the dispatcher's validation
func (g *Gateway) requireGroupMember(ctx context.Context, caller Caller, studyGroupID string) error {
	if studyGroupID == "" {
		return nil
	}
	member, err := g.store.IsStudyGroupMember(ctx, studyGroupID, caller.UserID)
	if err != nil {
		return fmt.Errorf("failed to check study group membership: %w", err)
	}
	if !member {
		return ErrNotGroupMember
	}
	return nil
}

// MonitorBroadcast scores text a caller pushed into rooms through a broadcast
// and records one set of findings per room
func (g *Gateway) MonitorBroadcast(ctx context.Context, caller Caller, content string, roomIDs []string) bool {
	flagged := false
	for _, roomID := range roomIDs {
		hit, findings := g.monitor.MonitorMessage(content, caller.UserID, roomID, "")
		if !hit {
			continue
		}
		flagged = true
		g.storeFindings(ctx, findings)
	}
	if flagged {
		log.Printf("Integrity flag on broadcast: user=%s rooms=%d", caller.UserID, len(roomIDs))
	}
	return flagged
}

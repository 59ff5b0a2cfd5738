package integrity

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"quizroom/pkg/types"
)

// DefaultExcessiveMessageThreshold is the per-user message count above which
// a user is flagged for excessive messaging
const DefaultExcessiveMessageThreshold = 20

// Config tunes the monitor heuristics
type Config struct {
	ExcessiveMessageThreshold int
}

// DefaultConfig returns the default heuristics
func DefaultConfig() Config {
	return Config{ExcessiveMessageThreshold: DefaultExcessiveMessageThreshold}
}

// TimedMessage is the part of a chat message the timing analysis looks at
type TimedMessage struct {
	MessageID string
	UserID    string
	RoomID    string
	Content   string
	CreatedAt time.Time
}

// FromChatMessages adapts persisted messages for timing analysis
func FromChatMessages(messages []*types.ChatMessage) []TimedMessage {
	timed := make([]TimedMessage, 0, len(messages))
	for _, m := range messages {
		timed = append(timed, TimedMessage{
			MessageID: m.ID,
			UserID:    m.UserID,
			RoomID:    m.RoomID,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return timed
}

// Monitor scores message content and timing. It holds no state between
// calls and never fails; findings are advisory.
type Monitor struct {
	config Config
	now    func() time.Time
	newID  func() string
}

// NewMonitor creates a monitor; a non-positive threshold falls back to the default
func NewMonitor(config Config) *Monitor {
	if config.ExcessiveMessageThreshold <= 0 {
		config.ExcessiveMessageThreshold = DefaultExcessiveMessageThreshold
	}
	return &Monitor{
		config: config,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// MonitorMessage runs the keyword check on one message. messageID may be empty
// when the content was not persisted.
func (m *Monitor) MonitorMessage(content, userID, roomID, messageID string) (bool, []*types.Finding) {
	result := DetectSuspiciousKeywords(content)
	if !result.IsSuspicious {
		return false, []*types.Finding{}
	}

	finding := &types.Finding{
		ID:          m.newID(),
		Type:        types.FindingKeywordMatch,
		Severity:    result.Severity,
		Description: fmt.Sprintf("Message matched %d suspicious keyword(s)", len(result.MatchedKeywords)),
		Evidence:    result.MatchedKeywords,
		Timestamp:   m.now().UTC(),
		UserID:      userID,
		RoomID:      roomID,
		MessageID:   types.StringPtr(messageID),
	}
	return true, []*types.Finding{finding}
}

// AnalyzeMessageTiming produces one HIGH timing violation per user with a
// message inside [start, end] (end defaults to now) and one MEDIUM excessive
// messaging finding per user with more than the threshold of messages. The
// two checks are independent.
func (m *Monitor) AnalyzeMessageTiming(messages []TimedMessage, start time.Time, end *time.Time) []*types.Finding {
	windowEnd := m.now()
	if end != nil {
		windowEnd = *end
	}

	inWindow := make(map[string][]TimedMessage)
	counts := make(map[string]int)
	roomOf := make(map[string]string)
	for _, msg := range messages {
		counts[msg.UserID]++
		if _, ok := roomOf[msg.UserID]; !ok {
			roomOf[msg.UserID] = msg.RoomID
		}
		if !msg.CreatedAt.Before(start) && !msg.CreatedAt.After(windowEnd) {
			inWindow[msg.UserID] = append(inWindow[msg.UserID], msg)
		}
	}

	users := make([]string, 0, len(counts))
	for userID := range counts {
		users = append(users, userID)
	}
	sort.Strings(users)

	findings := make([]*types.Finding, 0)
	timestamp := m.now().UTC()

	for _, userID := range users {
		window := inWindow[userID]
		if len(window) == 0 {
			continue
		}
		evidence := make([]string, 0, len(window))
		for _, msg := range window {
			evidence = append(evidence, fmt.Sprintf("%s: %s", msg.CreatedAt.UTC().Format(time.RFC3339), msg.Content))
		}
		findings = append(findings, &types.Finding{
			ID:          m.newID(),
			Type:        types.FindingTimingViolation,
			Severity:    types.SeverityHigh,
			Description: fmt.Sprintf("%d message(s) sent during an active quiz window", len(window)),
			Evidence:    evidence,
			Timestamp:   timestamp,
			UserID:      userID,
			RoomID:      window[0].RoomID,
			MessageID:   types.StringPtr(window[0].MessageID),
		})
	}

	for _, userID := range users {
		if counts[userID] <= m.config.ExcessiveMessageThreshold {
			continue
		}
		findings = append(findings, &types.Finding{
			ID:          m.newID(),
			Type:        types.FindingExcessiveMessaging,
			Severity:    types.SeverityMedium,
			Description: fmt.Sprintf("%d messages exceed the limit of %d", counts[userID], m.config.ExcessiveMessageThreshold),
			Evidence:    []string{fmt.Sprintf("message count: %d", counts[userID])},
			Timestamp:   timestamp,
			UserID:      userID,
			RoomID:      roomOf[userID],
		})
	}

	return findings
}

// ExcessiveMessageThreshold returns the configured threshold
func (m *Monitor) ExcessiveMessageThreshold() int {
	return m.config.ExcessiveMessageThreshold
}

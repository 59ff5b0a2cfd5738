package integrity

import (
	"strings"

	"quizroom/pkg/types"
)

// KeywordCategory groups related keywords for reporting
type KeywordCategory string

const (
	CategoryAnswerSharing    KeywordCategory = "answer_sharing"
	CategoryCollaboration    KeywordCategory = "collaboration"
	CategoryTechMisuse       KeywordCategory = "technology_misuse"
	CategoryTimeManipulation KeywordCategory = "time_manipulation"
)

// Severity bands for keyword matches
const (
	HighSeverityKeywordCount   = 3
	MediumSeverityKeywordCount = 2
)

// keywordList is matched in order, so matched keywords are reported in this order.
// No entry is a substring of another.
var keywordList = []struct {
	keyword  string
	category KeywordCategory
}{
	{"answer", CategoryAnswerSharing},
	{"solution", CategoryAnswerSharing},
	{"cheat", CategoryAnswerSharing},
	{"copy", CategoryAnswerSharing},
	{"share", CategoryAnswerSharing},
	{"what did you get", CategoryAnswerSharing},
	{"send me", CategoryAnswerSharing},

	{"work together", CategoryCollaboration},
	{"help me with", CategoryCollaboration},
	{"collaborate", CategoryCollaboration},
	{"discord", CategoryCollaboration},
	{"whatsapp", CategoryCollaboration},

	{"google", CategoryTechMisuse},
	{"chatgpt", CategoryTechMisuse},
	{"screenshot", CategoryTechMisuse},
	{"second screen", CategoryTechMisuse},
	{"another tab", CategoryTechMisuse},

	{"extend time", CategoryTimeManipulation},
	{"more time", CategoryTimeManipulation},
	{"reset timer", CategoryTimeManipulation},
	{"pause", CategoryTimeManipulation},
}

// highRiskKeywords escalate any match to HIGH
var highRiskKeywords = map[string]bool{
	"cheat":    true,
	"answer":   true,
	"solution": true,
	"copy":     true,
	"share":    true,
}

// KeywordResult is the outcome of scanning one message
type KeywordResult struct {
	IsSuspicious    bool              `json:"isSuspicious"`
	MatchedKeywords []string          `json:"matchedKeywords"`
	Categories      []KeywordCategory `json:"categories"`
	Severity        types.Severity    `json:"severity"`
}

// DetectSuspiciousKeywords does a case-insensitive substring scan of text.
// Three or more distinct keywords, or any high-risk keyword, is HIGH; two is
// MEDIUM; one ordinary keyword is LOW. No match is not suspicious and LOW.
func DetectSuspiciousKeywords(text string) KeywordResult {
	lower := strings.ToLower(text)

	result := KeywordResult{
		MatchedKeywords: []string{},
		Categories:      []KeywordCategory{},
		Severity:        types.SeverityLow,
	}

	seenCategory := make(map[KeywordCategory]bool)
	highRisk := false
	for _, entry := range keywordList {
		if !strings.Contains(lower, entry.keyword) {
			continue
		}
		result.MatchedKeywords = append(result.MatchedKeywords, entry.keyword)
		if !seenCategory[entry.category] {
			seenCategory[entry.category] = true
			result.Categories = append(result.Categories, entry.category)
		}
		if highRiskKeywords[entry.keyword] {
			highRisk = true
		}
	}

	matched := len(result.MatchedKeywords)
	if matched == 0 {
		return result
	}

	result.IsSuspicious = true
	// a high-risk keyword outranks the count bands
	switch {
	case matched >= HighSeverityKeywordCount || highRisk:
		result.Severity = types.SeverityHigh
	case matched == MediumSeverityKeywordCount:
		result.Severity = types.SeverityMedium
	default:
		result.Severity = types.SeverityLow
	}
	return result
}

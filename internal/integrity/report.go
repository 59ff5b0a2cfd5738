package integrity

import (
	"quizroom/pkg/types"
)

// A report escalates to HIGH once MEDIUM findings exceed this count
const MediumFindingsEscalation = 2

// Recommendation strings keyed by finding type
var recommendations = []struct {
	findingType types.FindingType
	text        string
}{
	{types.FindingTimingViolation, "Enforce chat restrictions during active quiz attempts"},
	{types.FindingKeywordMatch, "Review chat content for potential answer sharing"},
	{types.FindingExcessiveMessaging, "Monitor high-volume participants during assessments"},
	{types.FindingPatternDetection, "Investigate repeated message patterns across participants"},
}

// ReportSummary counts findings by severity and type
type ReportSummary struct {
	TotalFindings int                       `json:"totalFindings"`
	High          int                       `json:"high"`
	Medium        int                       `json:"medium"`
	Low           int                       `json:"low"`
	Unresolved    int                       `json:"unresolved"`
	ByType        map[types.FindingType]int `json:"byType"`
}

// Report is the rollup of a set of findings
type Report struct {
	RiskLevel       types.Severity `json:"riskLevel"`
	Summary         ReportSummary  `json:"summary"`
	Recommendations []string       `json:"recommendations"`
}

// GenerateIntegrityReport rolls findings up into a risk level: HIGH with any
// HIGH finding or more than two MEDIUM, MEDIUM with any other finding, LOW
// when there are none. Unknown severities count as LOW.
func GenerateIntegrityReport(findings []*types.Finding) *Report {
	summary := ReportSummary{ByType: make(map[types.FindingType]int)}

	for _, f := range findings {
		if f == nil {
			continue
		}
		summary.TotalFindings++
		summary.ByType[f.Type]++
		if !f.Resolved {
			summary.Unresolved++
		}
		switch f.Severity {
		case types.SeverityHigh:
			summary.High++
		case types.SeverityMedium:
			summary.Medium++
		default:
			summary.Low++
		}
	}

	report := &Report{
		RiskLevel:       types.SeverityLow,
		Summary:         summary,
		Recommendations: []string{},
	}

	switch {
	case summary.High > 0 || summary.Medium > MediumFindingsEscalation:
		report.RiskLevel = types.SeverityHigh
	case summary.TotalFindings > 0:
		report.RiskLevel = types.SeverityMedium
	}

	for _, r := range recommendations {
		if summary.ByType[r.findingType] > 0 {
			report.Recommendations = append(report.Recommendations, r.text)
		}
	}
	if report.RiskLevel == types.SeverityHigh {
		report.Recommendations = append(report.Recommendations, "Escalate flagged participants for instructor review")
	}
	if summary.TotalFindings == 0 {
		report.Recommendations = append(report.Recommendations, "No integrity concerns detected")
	}

	return report
}

package findings

import (
	"sort"
	"strings"
)

// Severity is the severity reported by the scanning service for an issue.
type Severity string

const (
	SeverityCritical      Severity = "CRITICAL"
	SeverityHigh          Severity = "HIGH"
	SeverityMedium        Severity = "MEDIUM"
	SeverityLow           Severity = "LOW"
	SeverityWarn          Severity = "WARN"
	SeverityInformational Severity = "INFORMATIONAL"
)

// Severities lists every known severity from the most to the least important.
var Severities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityWarn,
	SeverityInformational,
}

// Rank returns the display position of the severity. Unknown values sort last.
func (s Severity) Rank() int {
	normalized := Severity(strings.ToUpper(string(s)))
	for i, known := range Severities {
		if normalized == known {
			return i
		}
	}
	return len(Severities)
}

// Position is a 1-based line/column pair inside a file.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range spans from Start to End inside a file.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// AffectedFile points at a location an issue was found in.
type AffectedFile struct {
	FilePath string `json:"filePath"`
	Range    *Range `json:"range,omitempty"`
}

// Issue is a single finding of a completed scan.
type Issue struct {
	ID             string         `json:"id"`
	Severity       Severity       `json:"severity"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Recommendation string         `json:"recommendation,omitempty"`
	AffectedFiles  []AffectedFile `json:"affectedFiles"`
}

// Clone returns a deep copy of the issue.
func (i Issue) Clone() Issue {
	out := i
	if i.AffectedFiles != nil {
		out.AffectedFiles = make([]AffectedFile, len(i.AffectedFiles))
		for idx, f := range i.AffectedFiles {
			out.AffectedFiles[idx] = f
			if f.Range != nil {
				r := *f.Range
				out.AffectedFiles[idx].Range = &r
			}
		}
	}
	return out
}

// CountBySeverity counts issues per normalized severity.
func CountBySeverity(issues []Issue) map[Severity]int {
	counts := make(map[Severity]int)
	for _, issue := range issues {
		counts[Severity(strings.ToUpper(string(issue.Severity)))]++
	}
	return counts
}

// SortBySeverity orders issues from the most to the least severe, keeping the service order otherwise.
func SortBySeverity(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity.Rank() < issues[j].Severity.Rank()
	})
}

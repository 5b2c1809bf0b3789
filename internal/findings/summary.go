package findings

import (
	"fmt"
	"strings"
)

// Summary renders issue counts grouped by severity in display order,
// e.g. "3 issues found (1 critical, 2 low)".
func Summary(issues []Issue) string {
	if len(issues) == 0 {
		return "No issues found"
	}

	counts := CountBySeverity(issues)
	var parts []string
	for _, severity := range Severities {
		if n := counts[severity]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(string(severity))))
			delete(counts, severity)
		}
	}
	other := 0
	for _, n := range counts {
		other += n
	}
	if other > 0 {
		parts = append(parts, fmt.Sprintf("%d other", other))
	}

	noun := "issues"
	if len(issues) == 1 {
		noun = "issue"
	}
	return fmt.Sprintf("%d %s found (%s)", len(issues), noun, strings.Join(parts, ", "))
}

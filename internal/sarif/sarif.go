// Package sarif exports scan results as SARIF 2.1.0 reports.
package sarif

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/scan-io-git/scanio-remote/internal/findings"
	"github.com/scan-io-git/scanio-remote/internal/results"
	"github.com/scan-io-git/scanio-remote/pkg/shared/files"
)

const (
	toolName           = "scanio-remote"
	toolInformationURI = "https://github.com/scan-io-git/scanio-remote"
)

type Report struct {
	*sarif.Report
	logger hclog.Logger
}

// FromScanRecord builds a report with one run, one rule per issue and one result per issue.
func FromScanRecord(rec results.ScanRecord, toolVersion string, logger hclog.Logger) (*Report, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("failed to create SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI(toolName, toolInformationURI)
	if toolVersion != "" {
		run.Tool.Driver.WithVersion(toolVersion)
	}
	run.Properties = sarif.Properties{
		"scanId": rec.ID,
		"title":  rec.Title,
		"status": string(rec.Status),
	}

	issues := make([]findings.Issue, len(rec.Result))
	copy(issues, rec.Result)
	findings.SortBySeverity(issues)

	for i, issue := range issues {
		ruleID := issue.ID
		if ruleID == "" {
			ruleID = fmt.Sprintf("issue-%d", i+1)
		}
		level := toSarifLevel(issue.Severity)

		rule := run.AddRule(ruleID).
			WithName(issue.Title).
			WithShortDescription(sarif.NewMultiformatMessageString(issue.Title)).
			WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: level}).
			WithProperties(sarif.Properties{"severity": string(issue.Severity)})
		if issue.Description != "" {
			rule.WithDescription(issue.Description)
		}
		if issue.Recommendation != "" {
			rule.WithTextHelp(issue.Recommendation)
		}

		result := sarif.NewRuleResult(rule.ID).
			WithMessage(sarif.NewTextMessage(resultMessage(issue))).
			WithLevel(level).
			WithLocations(toLocations(issue.AffectedFiles))
		result.Properties = sarif.Properties{"Level": level}
		run.AddResult(result)
	}
	report.AddRun(run)

	return &Report{Report: report, logger: logger}, nil
}

// WriteFile writes the report to path. A folder gets a file named after the scan id.
func (r *Report) WriteFile(path, scanID string) (string, error) {
	fullPath, folder, err := files.DetermineFileFullPath(path, fmt.Sprintf("scanio-remote-%s.sarif", scanID))
	if err != nil {
		return "", err
	}
	if err := files.CreateFolderIfNotExists(folder); err != nil {
		return "", err
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	if err := r.PrettyWrite(file); err != nil {
		return "", fmt.Errorf("failed to write SARIF report: %w", err)
	}
	r.logger.Debug("SARIF report written", "path", fullPath)
	return fullPath, nil
}

// CollectSeverityInfo counts results per SARIF level plus a total.
func (r *Report) CollectSeverityInfo() map[string]int {
	info := map[string]int{
		"error":   0,
		"warning": 0,
		"note":    0,
		"none":    0,
		"total":   0,
	}
	for _, run := range r.Runs {
		for _, result := range run.Results {
			if result.Level != nil {
				info[*result.Level]++
			}
			info["total"]++
		}
	}
	return info
}

// SortResultsByLevel orders results error, warning, note, none.
func (r *Report) SortResultsByLevel() {
	levelOrder := map[string]int{
		"error":   0,
		"warning": 1,
		"note":    2,
		"none":    3,
	}
	rank := func(result *sarif.Result) int {
		if result.Level == nil {
			return len(levelOrder)
		}
		if n, ok := levelOrder[*result.Level]; ok {
			return n
		}
		return len(levelOrder)
	}

	for _, run := range r.Runs {
		sort.SliceStable(run.Results, func(i, j int) bool {
			return rank(run.Results[i]) < rank(run.Results[j])
		})
	}
}

func resultMessage(issue findings.Issue) string {
	if issue.Description == "" {
		return issue.Title
	}
	return strings.TrimSpace(issue.Title + ": " + issue.Description)
}

func toLocations(affected []findings.AffectedFile) []*sarif.Location {
	locations := make([]*sarif.Location, 0, len(affected))
	for _, file := range affected {
		physical := sarif.NewPhysicalLocation().
			WithArtifactLocation(sarif.NewArtifactLocation().WithUri(file.FilePath))
		if file.Range != nil && file.Range.Start.Line > 0 {
			region := sarif.NewRegion().WithStartLine(file.Range.Start.Line)
			if file.Range.Start.Column > 0 {
				region.WithStartColumn(file.Range.Start.Column)
			}
			if file.Range.End.Line >= file.Range.Start.Line {
				region.WithEndLine(file.Range.End.Line)
				if file.Range.End.Column > 0 {
					region.WithEndColumn(file.Range.End.Column)
				}
			}
			physical.WithRegion(region)
		}
		locations = append(locations, sarif.NewLocation().WithPhysicalLocation(physical))
	}
	return locations
}

// toSarifLevel maps a service severity to a SARIF level.
func toSarifLevel(severity findings.Severity) string {
	switch findings.Severity(strings.ToUpper(string(severity))) {
	case findings.SeverityCritical, findings.SeverityHigh:
		return "error"
	case findings.SeverityMedium:
		return "warning"
	case findings.SeverityLow, findings.SeverityWarn:
		return "note"
	case findings.SeverityInformational:
		return "none"
	default:
		return "warning"
	}
}

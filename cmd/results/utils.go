package results

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/scan-io-git/scanio-remote/internal/app"
	"github.com/scan-io-git/scanio-remote/internal/findings"
	"github.com/scan-io-git/scanio-remote/internal/results"
)

const timeLayout = "2006-01-02 15:04"

var severityColors = map[findings.Severity]*color.Color{
	findings.SeverityCritical:      color.New(color.FgRed, color.Bold),
	findings.SeverityHigh:          color.New(color.FgRed),
	findings.SeverityMedium:        color.New(color.FgYellow),
	findings.SeverityLow:           color.New(color.FgBlue),
	findings.SeverityWarn:          color.New(color.FgCyan),
	findings.SeverityInformational: color.New(color.Faint),
}

// renderList prints one row per record in the order the store returns them.
func renderList(w io.Writer, recs []results.ScanRecord) error {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No scans stored for this workspace.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tISSUES\tTITLE")
	for _, rec := range recs {
		issues := "-"
		if rec.Status == results.StatusCompleted {
			issues = fmt.Sprintf("%d", len(rec.Result))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.ID, rec.Status, rec.CreatedAt.Local().Format(timeLayout), issues, rec.Title)
	}
	return tw.Flush()
}

// renderRecord prints the header of a scan followed by its issues, most severe first.
func renderRecord(w io.Writer, rec results.ScanRecord) {
	fmt.Fprintf(w, "%s\n", rec.Title)
	fmt.Fprintf(w, "  ID:      %s\n", rec.ID)
	fmt.Fprintf(w, "  Status:  %s\n", rec.Status)
	fmt.Fprintf(w, "  Created: %s\n", rec.CreatedAt.Local().Format(timeLayout))
	if rec.CompletedAt != nil {
		fmt.Fprintf(w, "  Done:    %s\n", rec.CompletedAt.Local().Format(timeLayout))
	}
	if msg, ok := rec.Metadata["error"].(string); ok && msg != "" {
		fmt.Fprintf(w, "  Error:   %s\n", msg)
	}
	if rec.CodeSummary != nil && *rec.CodeSummary != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(*rec.CodeSummary))
	}

	if rec.Status != results.StatusCompleted {
		return
	}

	issues := make([]findings.Issue, len(rec.Result))
	copy(issues, rec.Result)
	findings.SortBySeverity(issues)

	fmt.Fprintf(w, "\n%s\n", findings.Summary(issues))
	for i, issue := range issues {
		fmt.Fprintf(w, "\n%d. [%s] %s\n", i+1, paintSeverity(issue.Severity), issue.Title)
		for _, file := range issue.AffectedFiles {
			fmt.Fprintf(w, "   %s\n", formatLocation(file))
		}
		if issue.Description != "" {
			fmt.Fprintf(w, "   %s\n", issue.Description)
		}
		if issue.Recommendation != "" {
			fmt.Fprintf(w, "   Recommendation: %s\n", issue.Recommendation)
		}
	}
}

func renderLines(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

func paintSeverity(severity findings.Severity) string {
	normalized := findings.Severity(strings.ToUpper(string(severity)))
	if c, ok := severityColors[normalized]; ok {
		return c.Sprint(normalized)
	}
	return string(severity)
}

func formatLocation(file findings.AffectedFile) string {
	if file.Range == nil || file.Range.Start.Line <= 0 {
		return file.FilePath
	}
	if file.Range.Start.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", file.FilePath, file.Range.Start.Line, file.Range.Start.Column)
	}
	return fmt.Sprintf("%s:%d", file.FilePath, file.Range.Start.Line)
}

func checkExportable(rec results.ScanRecord) error {
	if rec.Status != results.StatusCompleted {
		return fmt.Errorf("scan %s has status %s, only completed scans can be exported", rec.ID, rec.Status)
	}
	return nil
}

// selectWaitTargets returns the ids to wait for: the requested ones, or every resumed scan.
func selectWaitTargets(a *app.App, requested, resumed []string) ([]string, error) {
	if len(requested) == 0 {
		return resumed, nil
	}

	var ids []string
	for _, id := range requested {
		rec, ok := a.Results.Get(id)
		if !ok {
			return nil, fmt.Errorf("scan %q not found", id)
		}
		if rec.Status.IsTerminal() {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

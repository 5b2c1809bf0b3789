package results

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/scan-io-git/scanio-remote/internal/app"
	"github.com/scan-io-git/scanio-remote/internal/findings"
	"github.com/scan-io-git/scanio-remote/internal/notify"
	"github.com/scan-io-git/scanio-remote/internal/results"
	"github.com/scan-io-git/scanio-remote/pkg/shared/config"
)

var testStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func init() {
	color.NoColor = true
}

func completedRecord() results.ScanRecord {
	done := testStart.Add(2 * time.Minute)
	return results.ScanRecord{
		ID:          "s1",
		Title:       "ProjectX / Token.sol",
		Status:      results.StatusCompleted,
		CreatedAt:   testStart,
		UpdatedAt:   done,
		CompletedAt: &done,
		Result: []findings.Issue{
			{ID: "i2", Severity: findings.SeverityLow, Title: "Floating pragma", AffectedFiles: []findings.AffectedFile{{FilePath: "Token.sol"}}},
			{
				ID:             "i1",
				Severity:       findings.SeverityCritical,
				Title:          "Reentrancy",
				Description:    "External call before state update",
				Recommendation: "Use checks-effects-interactions",
				AffectedFiles: []findings.AffectedFile{{
					FilePath: "Token.sol",
					Range:    &findings.Range{Start: findings.Position{Line: 10, Column: 5}, End: findings.Position{Line: 12}},
				}},
			},
		},
	}
}

func TestRenderList(t *testing.T) {
	var empty bytes.Buffer
	require.NoError(t, renderList(&empty, nil))
	assert.Equal(t, "No scans stored for this workspace.\n", empty.String())

	var out bytes.Buffer
	require.NoError(t, renderList(&out, []results.ScanRecord{
		completedRecord(),
		{ID: "s2", Title: "ProjectX / Vault.sol", Status: results.StatusProcessing, CreatedAt: testStart},
	}))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ID", "STATUS", "CREATED", "ISSUES", "TITLE"}, strings.Fields(lines[0]))
	assert.Equal(t, "s1", strings.Fields(lines[1])[0])
	assert.Contains(t, lines[1], " 2 ")
	assert.Contains(t, lines[2], "processing")
	assert.Contains(t, lines[2], " - ")
}

func TestRenderRecord(t *testing.T) {
	var out bytes.Buffer
	renderRecord(&out, completedRecord())
	text := out.String()

	assert.Contains(t, text, "2 issues found (1 critical, 1 low)")
	critical := strings.Index(text, "1. [CRITICAL] Reentrancy")
	low := strings.Index(text, "2. [LOW] Floating pragma")
	require.NotEqual(t, -1, critical)
	require.NotEqual(t, -1, low)
	assert.Less(t, critical, low)
	assert.Contains(t, text, "Token.sol:10:5")
	assert.Contains(t, text, "Recommendation: Use checks-effects-interactions")
}

func TestRenderFailedRecord(t *testing.T) {
	var out bytes.Buffer
	renderRecord(&out, results.ScanRecord{
		ID:        "s3",
		Title:     "ProjectX / Old.sol",
		Status:    results.StatusFailed,
		CreatedAt: testStart,
		Metadata:  map[string]any{"error": "Polling timed out after 20m0s without a final status"},
	})
	text := out.String()

	assert.Contains(t, text, "Status:  failed")
	assert.Contains(t, text, "Error:   Polling timed out")
	assert.NotContains(t, text, "issues found")
}

func TestFormatLocation(t *testing.T) {
	tests := []struct {
		name string
		file findings.AffectedFile
		want string
	}{
		{"no range", findings.AffectedFile{FilePath: "a.sol"}, "a.sol"},
		{"line only", findings.AffectedFile{FilePath: "a.sol", Range: &findings.Range{Start: findings.Position{Line: 3}}}, "a.sol:3"},
		{"line and column", findings.AffectedFile{FilePath: "a.sol", Range: &findings.Range{Start: findings.Position{Line: 3, Column: 7}}}, "a.sol:3:7"},
		{"zero line", findings.AffectedFile{FilePath: "a.sol", Range: &findings.Range{}}, "a.sol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatLocation(tt.file))
		})
	}
}

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	cfg := &config.Config{
		ScanioRemote: config.ScanioRemote{Workspace: t.TempDir()},
		Remote:       config.Remote{BaseURL: "http://127.0.0.1:1", ClientID: "test-client"},
	}
	a, err := app.New(cfg, hclog.NewNullLogger(), app.Options{
		Notifier: &notify.Recorder{},
		Clock:    testingclock.NewFakeClock(testStart),
		InMemory: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestExportRecord(t *testing.T) {
	a := newTestApp(t)
	a.Results.Upsert(completedRecord())
	a.Results.Upsert(results.ScanRecord{ID: "s2", Status: results.StatusProcessing, CreatedAt: testStart})

	dir := t.TempDir()
	path, info, err := exportRecord(a, "s1", dir, hclog.NewNullLogger())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scanio-remote-s1.sarif"), path)
	assert.Equal(t, 2, info["total"])
	assert.Equal(t, 1, info["error"])
	assert.Equal(t, 1, info["note"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ruleId": "i1"`)

	_, _, err = exportRecord(a, "s2", dir, hclog.NewNullLogger())
	assert.EqualError(t, err, "scan s2 has status processing, only completed scans can be exported")

	_, _, err = exportRecord(a, "missing", dir, hclog.NewNullLogger())
	assert.EqualError(t, err, `scan "missing" not found`)
}

func TestSelectWaitTargets(t *testing.T) {
	a := newTestApp(t)
	a.Results.Upsert(completedRecord())
	a.Results.Upsert(results.ScanRecord{ID: "s2", Status: results.StatusProcessing, CreatedAt: testStart})

	ids, err := selectWaitTargets(a, nil, []string{"s2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids)

	ids, err = selectWaitTargets(a, []string{"s1", "s2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids, "finished scans are skipped")

	_, err = selectWaitTargets(a, []string{"nope"}, nil)
	assert.EqualError(t, err, `scan "nope" not found`)
}

func TestValidateExportArgs(t *testing.T) {
	assert.NoError(t, validateExportArgs("sarif"))
	assert.NoError(t, validateExportArgs("json"))
	assert.EqualError(t, validateExportArgs("html"), `unsupported format "html", expected "sarif" or "json"`)
}

func TestExportJSON(t *testing.T) {
	a := newTestApp(t)
	a.Results.Upsert(completedRecord())

	dir := t.TempDir()
	path, err := exportJSON(a, "s1", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scanio-remote-s1.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded results.ScanRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "s1", decoded.ID)
	assert.Len(t, decoded.Result, 2)

	_, err = exportJSON(a, "missing", dir)
	assert.EqualError(t, err, `scan "missing" not found`)
}

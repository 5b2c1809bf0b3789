package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/scan-io-git/scanio-remote/internal/findings"
	"github.com/scan-io-git/scanio-remote/internal/notify"
	"github.com/scan-io-git/scanio-remote/internal/remote"
	"github.com/scan-io-git/scanio-remote/internal/results"
	"github.com/scan-io-git/scanio-remote/internal/storage"
)

var testStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const testInterval = 30 * time.Second

// fakeService answers create and fetch calls from scripted responses.
type fakeService struct {
	mu        sync.Mutex
	created   []remote.CreateScanRequest
	createErr error
	createRes remote.CreateScanResponse

	// responses are served in order; the last one repeats.
	responses map[string][]fetchResponse
	fetches   map[string]int
	block     chan struct{}
	entered   chan struct{}
}

type fetchResponse struct {
	rec *results.ScanRecord
	err error
}

func newFakeService() *fakeService {
	return &fakeService{
		responses: make(map[string][]fetchResponse),
		fetches:   make(map[string]int),
	}
}

func (f *fakeService) CreateScan(_ context.Context, req remote.CreateScanRequest) (*remote.CreateScanResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	res := f.createRes
	return &res, nil
}

func (f *fakeService) GetScan(_ context.Context, id string) (*results.ScanRecord, error) {
	f.mu.Lock()
	f.fetches[id]++
	queue := f.responses[id]
	var next fetchResponse
	if len(queue) > 0 {
		next = queue[0]
		if len(queue) > 1 {
			f.responses[id] = queue[1:]
		}
	}
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if next.err != nil {
		return nil, next.err
	}
	if next.rec == nil {
		return nil, fmt.Errorf("no scripted response for %s", id)
	}
	rec := next.rec.Clone()
	return &rec, nil
}

func (f *fakeService) script(id string, responses ...fetchResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[id] = responses
}

func (f *fakeService) fetchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

type fixture struct {
	service   *fakeService
	store     *results.Store
	scheduler *Scheduler
	submitter *Submitter
	notifier  *notify.Recorder
	clock     *testingclock.FakeClock
}

func newFixture(t *testing.T, timeout time.Duration, opts SubmitterOptions) *fixture {
	t.Helper()
	db, err := storage.OpenInMemory(hclog.NewNullLogger())
	require.NoError(t, err)

	logger := hclog.NewNullLogger()
	service := newFakeService()
	store := results.NewStore(db.Workspace(t.TempDir()), logger)
	recorder := &notify.Recorder{}
	fakeClock := testingclock.NewFakeClock(testStart)

	scheduler := NewScheduler(service, store, recorder, fakeClock, SchedulerOptions{Interval: testInterval, Timeout: timeout}, logger)
	submitter := NewSubmitter(service, store, scheduler, recorder, fakeClock, opts, logger)
	t.Cleanup(func() {
		scheduler.Shutdown()
		db.Close()
	})

	return &fixture{
		service:   service,
		store:     store,
		scheduler: scheduler,
		submitter: submitter,
		notifier:  recorder,
		clock:     fakeClock,
	}
}

// tick waits for the polling loops to arm their timers and advances virtual time by one interval.
func (f *fixture) tick(t *testing.T) {
	t.Helper()
	require.Eventually(t, f.clock.HasWaiters, 2*time.Second, time.Millisecond, "no polling loop is waiting")
	f.clock.Step(testInterval)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("polling loop did not exit")
	}
}

func processing(id string) *results.ScanRecord {
	return &results.ScanRecord{ID: id, Title: "ProjectX / Token.sol", Status: results.StatusProcessing, Result: []findings.Issue{}}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSubmitAndPollToCompletion(t *testing.T) {
	workspace := t.TempDir()
	file := writeFile(t, workspace, "contracts/MyContract.sol", "contract MyContract {}")
	f := newFixture(t, DefaultTimeout, SubmitterOptions{Workspace: workspace, ProjectName: "ProjectX"})

	f.service.createRes = remote.CreateScanResponse{Success: true, ScanID: "s1", Status: results.StatusProcessing}
	completedAt := testStart.Add(testInterval)
	f.service.script("s1", fetchResponse{rec: &results.ScanRecord{
		ID:          "s1",
		Title:       "ProjectX / MyContract.sol",
		Status:      results.StatusCompleted,
		CreatedAt:   testStart,
		UpdatedAt:   completedAt,
		CompletedAt: &completedAt,
		Result: []findings.Issue{{
			ID:       "i1",
			Severity: findings.SeverityHigh,
			Title:    "Reentrancy",
			AffectedFiles: []findings.AffectedFile{{
				FilePath: "contracts/MyContract.sol",
			}},
		}},
	}})

	id, err := f.submitter.StartScan(context.Background(), []string{file}, map[string]any{"branch": "main"})
	require.NoError(t, err)
	assert.Equal(t, "s1", id)

	require.Len(t, f.service.created, 1)
	req := f.service.created[0]
	assert.Equal(t, "ProjectX / MyContract.sol", req.Title)
	assert.Equal(t, []remote.File{{Path: "contracts/MyContract.sol", Content: "contract MyContract {}"}}, req.Files)

	rec, ok := f.store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, results.StatusProcessing, rec.Status)
	assert.Equal(t, []findings.Issue{}, rec.Result)
	assert.Equal(t, testStart, rec.CreatedAt)
	assert.Equal(t, "main", rec.Metadata["branch"])
	assert.True(t, f.scheduler.IsActive("s1"))
	assert.Equal(t, 0, f.service.fetchCount("s1"), "first fetch waits one interval")

	f.tick(t)
	waitDone(t, f.scheduler.Done("s1"))

	rec, ok = f.store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, results.StatusCompleted, rec.Status)
	require.Len(t, rec.Result, 1)
	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, []notify.Message{{Kind: "completed", Text: "s1: 1 issue found (1 high)"}}, f.notifier.Messages("completed"))
	assert.Equal(t, 1, f.notifier.ResultsAvailableCount())
	assert.Equal(t, 1, f.notifier.RefreshCount())
	assert.False(t, f.scheduler.IsActive("s1"))
	assert.Equal(t, 1, f.service.fetchCount("s1"))
}

func TestPollingTimeoutMarksScanFailed(t *testing.T) {
	f := newFixture(t, 2*testInterval, SubmitterOptions{})
	f.store.Upsert(results.ScanRecord{ID: "s1", Title: "ProjectX / Token.sol", Status: results.StatusProcessing, CreatedAt: testStart})
	f.service.script("s1", fetchResponse{rec: processing("s1")})

	f.scheduler.Start("s1")
	f.tick(t) // 30s: fetch
	f.tick(t) // 60s: fetch, elapsed equals the timeout
	f.tick(t) // 90s: timeout, no fetch
	waitDone(t, f.scheduler.Done("s1"))

	assert.Equal(t, 2, f.service.fetchCount("s1"))
	rec, ok := f.store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, results.StatusFailed, rec.Status)
	assert.Contains(t, rec.Metadata["error"], "timed out")

	warnings := f.notifier.Messages("warn")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Text, "timed out")
	assert.Empty(t, f.notifier.Messages("failed"))
}

func TestPollingTimeoutKeepsTerminalRecord(t *testing.T) {
	f := newFixture(t, testInterval/2, SubmitterOptions{})
	f.store.Upsert(results.ScanRecord{ID: "s1", Status: results.StatusCompleted, CreatedAt: testStart})

	f.scheduler.Start("s1")
	f.tick(t)
	waitDone(t, f.scheduler.Done("s1"))

	rec, _ := f.store.Get("s1")
	assert.Equal(t, results.StatusCompleted, rec.Status)
	assert.Nil(t, rec.Metadata)
	assert.Empty(t, f.notifier.Messages("warn"))
	assert.Equal(t, 0, f.service.fetchCount("s1"))
}

func TestFetchErrorsAreRetried(t *testing.T) {
	f := newFixture(t, DefaultTimeout, SubmitterOptions{})
	f.store.Upsert(results.ScanRecord{ID: "s1", Status: results.StatusProcessing, CreatedAt: testStart})
	f.service.script("s1",
		fetchResponse{err: fmt.Errorf("connection reset")},
		fetchResponse{rec: &results.ScanRecord{ID: "s1", Status: results.StatusFailed}},
	)

	f.scheduler.Start("s1")
	f.tick(t)
	f.tick(t)
	waitDone(t, f.scheduler.Done("s1"))

	assert.Equal(t, 2, f.service.fetchCount("s1"))
	assert.Empty(t, f.notifier.Messages("warn"), "fetch errors are never surfaced")
	assert.Equal(t, []notify.Message{{Kind: "failed", Text: "s1"}}, f.notifier.Messages("failed"))
	assert.Equal(t, 1, f.notifier.ResultsAvailableCount())
}

func TestCancelledScanNotifiesInfo(t *testing.T) {
	f := newFixture(t, DefaultTimeout, SubmitterOptions{})
	f.service.script("s1", fetchResponse{rec: &results.ScanRecord{ID: "s1", Title: "X / a.sol", Status: results.StatusCancelled}})

	f.scheduler.Start("s1")
	f.tick(t)
	waitDone(t, f.scheduler.Done("s1"))

	infos := f.notifier.Messages("info")
	require.Len(t, infos, 1)
	assert.Contains(t, infos[0].Text, "cancelled")
	assert.Equal(t, 1, f.notifier.RefreshCount())
}

func TestRemoveStopsPolling(t *testing.T) {
	f := newFixture(t, DefaultTimeout, SubmitterOptions{})
	f.store.Upsert(results.ScanRecord{ID: "s1", Status: results.StatusProcessing, CreatedAt: testStart})
	f.service.script("s1", fetchResponse{rec: processing("s1")})

	f.scheduler.Start("s1")
	f.tick(t)
	require.Eventually(t, f.clock.HasWaiters, 2*time.Second, time.Millisecond)
	require.Equal(t, 1, f.service.fetchCount("s1"))

	done := f.scheduler.Done("s1")
	assert.True(t, f.store.Remove("s1"))
	waitDone(t, done)
	assert.False(t, f.clock.HasWaiters(), "the pending wait is cancelled")

	f.clock.Step(10 * testInterval)
	assert.Equal(t, 1, f.service.fetchCount("s1"))
	_, ok := f.store.Get("s1")
	assert.False(t, ok)
}

func TestLateResultOfStoppedScanIsDiscarded(t *testing.T) {
	f := newFixture(t, DefaultTimeout, SubmitterOptions{})
	f.store.Upsert(results.ScanRecord{ID: "s1", Status: results.StatusProcessing, CreatedAt: testStart})
	f.service.script("s1", fetchResponse{rec: &results.ScanRecord{ID: "s1", Status: results.StatusCompleted}})
	f.service.block = make(chan struct{})
	f.service.entered = make(chan struct{}, 1)

	f.scheduler.Start("s1")
	done := f.scheduler.Done("s1")
	f.tick(t)
	<-f.service.entered

	f.scheduler.Stop("s1")
	close(f.service.block)
	waitDone(t, done)

	rec, ok := f.store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, results.StatusProcessing, rec.Status)
	assert.Empty(t, f.notifier.Messages("completed"))
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFixture(t, DefaultTimeout, SubmitterOptions{})
	f.service.script("s1", fetchResponse{rec: &results.ScanRecord{ID: "s1", Status: results.StatusCompleted}})

	f.scheduler.Start("s1")
	f.scheduler.Start("s1")
	f.tick(t)
	waitDone(t, f.scheduler.Done("s1"))

	assert.Equal(t, 1, f.service.fetchCount("s1"))
}

func TestShutdownStopsEveryLoop(t *testing.T) {
	f := newFixture(t, DefaultTimeout, SubmitterOptions{})
	f.scheduler.Start("s1")
	f.scheduler.Start("s2")

	f.scheduler.Shutdown()
	assert.False(t, f.scheduler.IsActive("s1"))
	assert.False(t, f.scheduler.IsActive("s2"))

	f.scheduler.Start("s3")
	assert.False(t, f.scheduler.IsActive("s3"))
	f.clock.Step(testInterval)
	assert.Equal(t, 0, f.service.fetchCount("s1"))
}

func TestStartScanSkipsUnreadableFiles(t *testing.T) {
	workspace := t.TempDir()
	good := writeFile(t, workspace, "Token.sol", "contract Token {}")
	missing := filepath.Join(workspace, "Missing.sol")
	f := newFixture(t, DefaultTimeout, SubmitterOptions{Workspace: workspace, ProjectName: "ProjectX"})
	f.service.createRes = remote.CreateScanResponse{Success: true, ScanID: "s2"}

	id, err := f.submitter.StartScan(context.Background(), []string{missing, good}, nil)
	require.NoError(t, err)
	assert.Equal(t, "s2", id)

	warnings := f.notifier.Messages("warn")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Text, "Missing.sol")

	require.Len(t, f.service.created, 1)
	assert.Equal(t, "ProjectX / Token.sol", f.service.created[0].Title)

	rec, ok := f.store.Get("s2")
	require.True(t, ok)
	assert.Equal(t, results.StatusProcessing, rec.Status, "missing status defaults to processing")
}

func TestStartScanErrors(t *testing.T) {
	workspace := t.TempDir()
	f := newFixture(t, DefaultTimeout, SubmitterOptions{Workspace: workspace})

	_, err := f.submitter.StartScan(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = f.submitter.StartScan(context.Background(), []string{filepath.Join(workspace, "nope.sol")}, nil)
	assert.ErrorIs(t, err, ErrNoValidFiles)
	assert.Empty(t, f.service.created)

	file := writeFile(t, workspace, "a.sol", "contract A {}")
	f.service.createErr = fmt.Errorf("service unavailable")
	_, err = f.submitter.StartScan(context.Background(), []string{file}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service unavailable")
	assert.Equal(t, 0, f.store.Len())
}

func TestWirePathOutsideWorkspace(t *testing.T) {
	workspace := t.TempDir()
	outside := writeFile(t, t.TempDir(), "lib/Outside.sol", "contract O {}")
	f := newFixture(t, DefaultTimeout, SubmitterOptions{Workspace: workspace, ProjectName: "P"})
	f.service.createRes = remote.CreateScanResponse{Success: true, ScanID: "s3"}

	_, err := f.submitter.StartScan(context.Background(), []string{outside}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Outside.sol", f.service.created[0].Files[0].Path)
}

func TestBuildTitle(t *testing.T) {
	tests := []struct {
		name      string
		project   string
		workspace string
		paths     []string
		want      string
	}{
		{
			name:    "one file",
			project: "ProjectX",
			paths:   []string{"project/MyContract.sol"},
			want:    "ProjectX / MyContract.sol",
		},
		{
			name:    "two files",
			project: "ProjectX",
			paths:   []string{"project/MyContract.sol", "project/Other.sol"},
			want:    "ProjectX / MyContract.sol and 1 other file",
		},
		{
			name:    "three files",
			project: "ProjectX",
			paths:   []string{"project/MyContract.sol", "project/A.sol", "project/B.sol"},
			want:    "ProjectX / MyContract.sol and 2 other files",
		},
		{
			name:      "workspace name as context",
			workspace: filepath.Join("home", "dev", "defi-vault"),
			paths:     []string{"Vault.sol"},
			want:      "defi-vault / Vault.sol",
		},
		{
			name:  "parent folder as context",
			paths: []string{filepath.Join("repo", "contracts", "Vault.sol")},
			want:  "contracts / Vault.sol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildTitle(tt.project, tt.workspace, tt.paths))
		})
	}
}

func TestShortenName(t *testing.T) {
	long := strings.Repeat("a", 30) + strings.Repeat("b", 30) + ".sol"
	short := shortenName(long, maxDisplayName)

	assert.Len(t, []rune(short), maxDisplayName)
	assert.True(t, strings.HasPrefix(short, "aaaa"))
	assert.True(t, strings.HasSuffix(short, "bbbb.sol"))
	assert.Contains(t, short, "…")

	assert.Equal(t, "Token.sol", shortenName("Token.sol", maxDisplayName))
}

package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/scanio-remote/internal/findings"
)

type memoryMemento struct {
	mu       sync.Mutex
	data     map[string][]byte
	writes   int
	failRead error
	failSave error
}

func newMemoryMemento() *memoryMemento {
	return &memoryMemento{data: make(map[string][]byte)}
}

func (m *memoryMemento) Get(key string, value any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead != nil {
		return false, m.failRead
	}
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, value)
}

func (m *memoryMemento) Update(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.failSave != nil {
		return m.failSave
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memoryMemento) persisted(t *testing.T) map[string]ScanRecord {
	t.Helper()
	out := make(map[string]ScanRecord)
	found, err := m.Get(storageKey, &out)
	require.NoError(t, err)
	require.True(t, found)
	return out
}

type recordingPoller struct {
	mu      sync.Mutex
	stopped []string
	stopAll int
}

func (p *recordingPoller) Stop(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = append(p.stopped, id)
}

func (p *recordingPoller) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopAll++
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func record(id string, offset time.Duration) ScanRecord {
	return ScanRecord{
		ID:        id,
		CreatedAt: baseTime.Add(offset),
		UpdatedAt: baseTime.Add(offset),
		Title:     "Project / " + id,
		Status:    StatusProcessing,
		Result:    []findings.Issue{},
	}
}

func newTestStore(m Memento) *Store {
	return NewStore(m, hclog.NewNullLogger())
}

func TestStoreUpsertAndGet(t *testing.T) {
	m := newMemoryMemento()
	store := newTestStore(m)

	store.Upsert(record("s1", 0))
	got, ok := store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, StatusProcessing, got.Status)
	assert.Empty(t, got.Result)

	updated := record("s1", 0)
	updated.Status = StatusCompleted
	updated.Result = []findings.Issue{{ID: "i1", Severity: findings.SeverityHigh}}
	store.Upsert(updated)

	got, ok = store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Len(t, got.Result, 1)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, StatusCompleted, m.persisted(t)["s1"].Status)

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestStoreAllSortedNewestFirst(t *testing.T) {
	store := newTestStore(newMemoryMemento())
	store.Upsert(record("old", 0))
	store.Upsert(record("new", 2*time.Hour))
	store.Upsert(record("mid", time.Hour))

	var ids []string
	for _, rec := range store.All() {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)
}

func TestStoreRetentionEvictsOldest(t *testing.T) {
	m := newMemoryMemento()
	store := newTestStore(m)

	for i := 0; i < MaxRecords+5; i++ {
		store.Upsert(record(fmt.Sprintf("s%02d", i), time.Duration(i)*time.Minute))
		assert.LessOrEqual(t, store.Len(), MaxRecords)
	}

	assert.Equal(t, MaxRecords, store.Len())
	for i := 0; i < 5; i++ {
		_, ok := store.Get(fmt.Sprintf("s%02d", i))
		assert.False(t, ok, "record s%02d should be evicted", i)
	}
	_, ok := store.Get("s05")
	assert.True(t, ok)
	assert.Len(t, m.persisted(t), MaxRecords)
}

func TestStoreRetentionTiesAreDeterministic(t *testing.T) {
	store := newTestStore(newMemoryMemento())
	for i := 0; i < MaxRecords+1; i++ {
		store.Upsert(record(fmt.Sprintf("s%02d", i), 0))
	}

	// All records share CreatedAt, the lowest id loses.
	_, ok := store.Get("s00")
	assert.False(t, ok)
	assert.Equal(t, MaxRecords, store.Len())
}

func TestStoreLoadSelfHeals(t *testing.T) {
	m := newMemoryMemento()
	oversized := make(map[string]ScanRecord)
	for i := 0; i < MaxRecords+3; i++ {
		rec := record(fmt.Sprintf("s%02d", i), time.Duration(i)*time.Minute)
		oversized[rec.ID] = rec
	}
	require.NoError(t, m.Update(storageKey, oversized))

	store := newTestStore(m)
	store.Load()

	assert.Equal(t, MaxRecords, store.Len())
	assert.Len(t, m.persisted(t), MaxRecords)
	_, ok := store.Get("s00")
	assert.False(t, ok)
}

func TestStoreRemove(t *testing.T) {
	m := newMemoryMemento()
	poller := &recordingPoller{}
	store := newTestStore(m)
	store.AttachPoller(poller)

	notified := 0
	store.Subscribe(func() { notified++ })

	store.Upsert(record("s1", 0))
	assert.Equal(t, 1, notified)

	assert.True(t, store.Remove("s1"))
	assert.Equal(t, 2, notified)
	assert.Equal(t, []string{"s1"}, poller.stopped)
	assert.Empty(t, m.persisted(t))

	assert.False(t, store.Remove("s1"))
	assert.Equal(t, 2, notified)
}

func TestStoreRemoveAll(t *testing.T) {
	m := newMemoryMemento()
	poller := &recordingPoller{}
	store := newTestStore(m)
	store.AttachPoller(poller)

	notified := 0
	unsubscribe := store.Subscribe(func() { notified++ })

	store.RemoveAll()
	assert.Equal(t, 0, notified, "clearing an empty store must not notify")
	assert.Equal(t, 0, m.writes)

	store.Upsert(record("s1", 0))
	store.Upsert(record("s2", time.Minute))
	store.RemoveAll()

	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 3, notified)
	assert.Equal(t, 2, poller.stopAll)
	assert.Empty(t, m.persisted(t))

	unsubscribe()
	store.Upsert(record("s3", 0))
	assert.Equal(t, 3, notified)
}

func TestStorePersistenceFailuresAreNotFatal(t *testing.T) {
	m := newMemoryMemento()
	m.failRead = errors.New("disk unavailable")
	m.failSave = errors.New("disk unavailable")

	store := newTestStore(m)
	store.Load()
	store.Upsert(record("s1", 0))

	got, ok := store.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "s1", got.ID)
}

func TestStoreReturnsCopies(t *testing.T) {
	store := newTestStore(newMemoryMemento())
	rec := record("s1", 0)
	rec.Metadata = map[string]any{"branch": "main"}
	store.Upsert(rec)

	got, _ := store.Get("s1")
	got.Metadata["branch"] = "dev"
	got.Title = "changed"

	again, _ := store.Get("s1")
	assert.Equal(t, "main", again.Metadata["branch"])
	assert.Equal(t, "Project / s1", again.Title)
}

package results

import (
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
)

const (
	// MaxRecords is the retention cap of the scan history.
	MaxRecords = 20

	storageKey = "scanResults"
)

// Memento is the durable key/value scope the store mirrors its contents to.
type Memento interface {
	Get(key string, value any) (bool, error)
	Update(key string, value any) error
}

// PollStopper stops status polling of scans that leave the store.
type PollStopper interface {
	Stop(id string)
	StopAll()
}

// Store keeps the scan history in memory and mirrors every change to durable storage.
// Persistence failures are logged and the in-memory state stays authoritative.
type Store struct {
	mu        sync.RWMutex
	records   map[string]ScanRecord
	memento   Memento
	poller    PollStopper
	logger    hclog.Logger
	listeners map[int]func()
	nextID    int
}

// NewStore creates an empty store backed by the given memento.
func NewStore(memento Memento, logger hclog.Logger) *Store {
	return &Store{
		records:   make(map[string]ScanRecord),
		memento:   memento,
		logger:    logger,
		listeners: make(map[int]func()),
	}
}

// AttachPoller wires the component whose polls are stopped on removal.
func (s *Store) AttachPoller(p PollStopper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poller = p
}

// Load replaces the in-memory state with the persisted one, trimming it to the retention cap.
func (s *Store) Load() {
	stored := make(map[string]ScanRecord)
	found, err := s.memento.Get(storageKey, &stored)
	if err != nil {
		s.logger.Error("failed to load scan results, continuing without history", "error", err)
		return
	}
	if !found {
		s.logger.Debug("no persisted scan results")
		return
	}

	s.mu.Lock()
	s.records = make(map[string]ScanRecord, len(stored))
	for id, rec := range stored {
		if rec.ID == "" {
			rec.ID = id
		}
		s.records[rec.ID] = rec
	}
	trimmed := s.enforceRetentionLocked()
	if trimmed > 0 {
		s.persistLocked()
	}
	count := len(s.records)
	s.mu.Unlock()

	s.logger.Debug("scan results loaded", "count", count, "evicted", trimmed)
}

// All returns every record, newest first.
func (s *Store) All() []ScanRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ScanRecord, 0, len(s.records))
	for _, rec := range s.sortedLocked() {
		out = append(out, rec.Clone())
	}
	return out
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (ScanRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return ScanRecord{}, false
	}
	return rec.Clone(), true
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Upsert inserts or overwrites the record by id, enforces retention and persists.
func (s *Store) Upsert(rec ScanRecord) {
	s.mu.Lock()
	s.records[rec.ID] = rec.Clone()
	evicted := s.enforceRetentionLocked()
	s.persistLocked()
	s.mu.Unlock()

	if evicted > 0 {
		s.logger.Debug("scan history trimmed", "evicted", evicted)
	}
	s.notify()
}

// Remove deletes the record and stops its polling. It reports whether the record existed.
func (s *Store) Remove(id string) bool {
	// The poll is stopped before taking the store lock, so an in-flight status
	// update cannot write the record back after it is gone.
	if p := s.currentPoller(); p != nil {
		p.Stop(id)
	}

	s.mu.Lock()
	_, ok := s.records[id]
	if ok {
		delete(s.records, id)
		s.persistLocked()
	}
	s.mu.Unlock()

	if ok {
		s.notify()
	}
	return ok
}

// RemoveAll stops every poll and clears the history. Clearing an empty store is a no-op.
func (s *Store) RemoveAll() {
	if p := s.currentPoller(); p != nil {
		p.StopAll()
	}

	s.mu.Lock()
	if len(s.records) == 0 {
		s.mu.Unlock()
		return
	}
	s.records = make(map[string]ScanRecord)
	s.persistLocked()
	s.mu.Unlock()

	s.notify()
}

// Subscribe registers fn to be called after every change. The returned func unregisters it.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) currentPoller() PollStopper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.poller
}

func (s *Store) notify() {
	s.mu.RLock()
	listeners := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}

// sortedLocked orders records by CreatedAt descending, ids descending on ties.
func (s *Store) sortedLocked() []ScanRecord {
	sorted := make([]ScanRecord, 0, len(s.records))
	for _, rec := range s.records {
		sorted = append(sorted, rec)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})
	return sorted
}

// enforceRetentionLocked keeps the newest MaxRecords records and returns how many were evicted.
func (s *Store) enforceRetentionLocked() int {
	if len(s.records) <= MaxRecords {
		return 0
	}
	sorted := s.sortedLocked()
	for _, rec := range sorted[MaxRecords:] {
		delete(s.records, rec.ID)
	}
	return len(sorted) - MaxRecords
}

func (s *Store) persistLocked() {
	if err := s.memento.Update(storageKey, s.records); err != nil {
		s.logger.Error("failed to persist scan results", "error", err)
	}
}

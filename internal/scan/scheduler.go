package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"k8s.io/utils/clock"

	"github.com/scan-io-git/scanio-remote/internal/findings"
	"github.com/scan-io-git/scanio-remote/internal/notify"
	"github.com/scan-io-git/scanio-remote/internal/results"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultTimeout  = 20 * time.Minute
)

// Fetcher reads the current state of a scan from the service.
type Fetcher interface {
	GetScan(ctx context.Context, id string) (*results.ScanRecord, error)
}

// SchedulerOptions configures polling.
type SchedulerOptions struct {
	Interval time.Duration
	Timeout  time.Duration
}

type poll struct {
	cancel  context.CancelFunc
	started time.Time
	done    chan struct{}
}

// Scheduler polls every active scan until it reaches a terminal status or times out.
// Each scan id has at most one loop; loops of different ids are independent.
type Scheduler struct {
	fetcher  Fetcher
	store    *results.Store
	notifier notify.Notifier
	clock    clock.Clock
	logger   hclog.Logger
	interval time.Duration
	timeout  time.Duration

	// mu is taken before the store lock, never after it.
	mu     sync.Mutex
	polls  map[string]*poll
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler and attaches it to the store, so removed scans stop polling.
func NewScheduler(fetcher Fetcher, store *results.Store, notifier notify.Notifier, clk clock.Clock, opts SchedulerOptions, logger hclog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	s := &Scheduler{
		fetcher:  fetcher,
		store:    store,
		notifier: notifier,
		clock:    clk,
		logger:   logger.Named("scheduler"),
		interval: opts.Interval,
		timeout:  opts.Timeout,
		polls:    make(map[string]*poll),
	}
	store.AttachPoller(s)
	return s
}

// Start begins polling id. It is a no-op when id is already polling.
func (s *Scheduler) Start(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Debug("scheduler is shut down, not polling", "id", id)
		return
	}
	if _, ok := s.polls[id]; ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &poll{cancel: cancel, started: s.clock.Now(), done: make(chan struct{})}
	s.polls[id] = p
	s.wg.Add(1)
	go s.run(ctx, id, p)
	s.logger.Debug("polling started", "id", id, "interval", s.interval, "timeout", s.timeout)
}

// Stop cancels polling of id. A fetch in flight completes but its result is discarded.
func (s *Scheduler) Stop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.polls[id]; ok {
		p.cancel()
		delete(s.polls, id)
		s.logger.Debug("polling stopped", "id", id)
	}
}

// StopAll cancels every polling loop.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.polls {
		p.cancel()
		delete(s.polls, id)
	}
}

// Shutdown stops every loop, refuses new ones and waits for the goroutines to exit.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.StopAll()
	s.wg.Wait()
}

// IsActive reports whether id is polling.
func (s *Scheduler) IsActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.polls[id]
	return ok
}

// Done returns a channel closed once the loop of id has exited.
func (s *Scheduler) Done(id string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.polls[id]; ok {
		return p.done
	}
	done := make(chan struct{})
	close(done)
	return done
}

func (s *Scheduler) run(ctx context.Context, id string, p *poll) {
	defer s.wg.Done()
	defer close(p.done)
	defer s.release(id, p)

	for {
		timer := s.clock.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}

		if s.clock.Since(p.started) > s.timeout {
			s.expire(id, p)
			return
		}

		rec, err := s.fetcher.GetScan(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("failed to fetch scan status, retrying on next tick", "id", id, "error", err)
			continue
		}
		if rec.ID == "" {
			rec.ID = id
		}

		if !s.apply(id, p, *rec) {
			s.logger.Debug("discarding status of a scan that is no longer polled", "id", id)
			return
		}
		if rec.Status.IsTerminal() {
			s.complete(*rec)
			return
		}
	}
}

// apply stores rec if p is still the active loop of id.
func (s *Scheduler) apply(id string, p *poll, rec results.ScanRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.polls[id] != p {
		return false
	}
	s.store.Upsert(rec)
	return true
}

// expire marks a still running scan as failed once the polling timeout has passed.
func (s *Scheduler) expire(id string, p *poll) {
	s.logger.Warn("scan polling timed out", "id", id, "timeout", s.timeout)

	s.mu.Lock()
	var (
		rec    results.ScanRecord
		marked bool
	)
	if s.polls[id] == p {
		var ok bool
		rec, ok = s.store.Get(id)
		if ok && !rec.Status.IsTerminal() {
			rec.Status = results.StatusFailed
			rec.UpdatedAt = s.clock.Now()
			if rec.Metadata == nil {
				rec.Metadata = make(map[string]any)
			}
			rec.Metadata["error"] = fmt.Sprintf("Polling timed out after %s without a final status", s.timeout)
			s.store.Upsert(rec)
			marked = true
		}
	}
	s.mu.Unlock()

	if marked {
		s.notifier.Warn(fmt.Sprintf("Scan %q timed out after %s and was marked as failed.", rec.Title, s.timeout))
		s.notifier.RefreshStatus()
	}
}

func (s *Scheduler) complete(rec results.ScanRecord) {
	s.logger.Info("scan finished", "id", rec.ID, "status", rec.Status, "issues", len(rec.Result))

	switch rec.Status {
	case results.StatusCompleted:
		s.notifier.ScanCompleted(rec, findings.Summary(rec.Result))
	case results.StatusFailed:
		s.notifier.ScanFailed(rec)
	case results.StatusCancelled:
		s.notifier.Info(fmt.Sprintf("Scan %q was cancelled.", rec.Title))
	}
	s.notifier.ResultsAvailable()
	s.notifier.RefreshStatus()
}

func (s *Scheduler) release(id string, p *poll) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.polls[id] == p {
		p.cancel()
		delete(s.polls, id)
	}
}

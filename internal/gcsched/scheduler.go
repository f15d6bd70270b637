// Package gcsched drives the manager's incremental garbage collector on a
// cron schedule, forcing it to convergence independent of statement traffic.
// Unlike internal/mvcc, this package logs: it is the operational surface an
// operator watches to see GC keeping up.
package gcsched

import (
	"log"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"github.com/Astronomax/transaction-manager/internal/mvcc"
)

// Manager is the subset of *mvcc.Manager the scheduler needs, so tests can
// supply a fake.
type Manager interface {
	Lock()
	Unlock()
	ForceGCSteps(n int) int
	ActiveStoryCount() int
}

// Scheduler runs a cron-triggered full GC sweep against a Manager. Each
// trigger is debounced so that a slow sweep doesn't pile up overlapping
// runs if the cron expression fires faster than one sweep completes.
type Scheduler struct {
	mgr      Manager
	cron     *cron.Cron
	stepSize int
	verbose  bool

	mu      sync.Mutex
	running bool

	debounced func(func())
}

// New builds a scheduler that, once Start is called, sweeps mgr on the
// given cron expression (seconds-field form, e.g. "*/5 * * * * *"), running
// stepSize steps per debounced trigger until the manager reports no more
// progress.
func New(mgr Manager, cronExpr string, stepSize int, verbose bool) (*Scheduler, error) {
	loc, _ := time.LoadLocation("UTC")
	c := cron.New(cron.WithLocation(loc), cron.WithSeconds())

	s := &Scheduler{
		mgr:       mgr,
		cron:      c,
		stepSize:  stepSize,
		verbose:   verbose,
		debounced: debounce.New(200 * time.Millisecond),
	}

	if _, err := c.AddFunc(cronExpr, s.trigger); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the cron loop. It does not block.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for the in-flight trigger, if any, to
// return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// trigger is the cron callback; it is itself debounced, and additionally
// refuses to overlap with a sweep already in flight (a cron tick landing
// mid-sweep is simply dropped — the next tick will pick up where GC left
// off since the cursor lives in the manager, not here).
func (s *Scheduler) trigger() {
	s.debounced(s.sweepOnce)
}

func (s *Scheduler) sweepOnce() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.mgr.Lock()
	total := 0
	for {
		reclaimed := s.mgr.ForceGCSteps(s.stepSize)
		total += reclaimed
		if reclaimed == 0 {
			break
		}
	}
	remaining := s.mgr.ActiveStoryCount()
	s.mgr.Unlock()

	if s.verbose || total > 0 {
		log.Printf("gcsched: sweep reclaimed %s stories, %s remain active",
			humanize.Comma(int64(total)), humanize.Comma(int64(remaining)))
	}
}

// ============================================================================
// Run Loader Pool - Round-Robin Multi-Run Scheduling
// ============================================================================
//
// Package: internal/loaderpool
// File: pool.go
// Purpose: Host many runloader.Loader instances in one process, scheduling Reload
// cycles across them the way spec.md §5 describes ("a small pool driving
// many loaders round-robin"), and publish into a shared commit.Registry.
//
// Adapted from the teacher's internal/worker.Pool (fixed goroutine count
// pulling from a shared work source, sync.WaitGroup-tracked graceful
// shutdown via a stopCh) combined with internal/jobmanager's queue-of-keys
// round-robin bookkeeping, generalized from "pull one Task off taskCh" to
// "pick the next Run in round-robin order and run one Reload cycle for it".
// Unlike the teacher's Pool, there is no task channel: a run loader's
// Reload is synchronous and long-running by nature (it streams a file to
// exhaustion), so each worker goroutine claims the next due run from one
// round-robin cursor shared by all workers rather than pulling discrete tasks.
//
// ============================================================================

// Package loaderpool schedules Reload cycles across many run loaders.
package loaderpool

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/run-loader/internal/commit"
	"github.com/ChuLiYu/run-loader/internal/logdir"
	"github.com/ChuLiYu/run-loader/internal/metrics"
	"github.com/ChuLiYu/run-loader/internal/runloader"
	"github.com/ChuLiYu/run-loader/pkg/types"
)

var log = slog.Default()

// LogdirFactory opens the Logdir for a run, the pool's narrow view of
// directory discovery (spec.md §6 treats this as external).
type LogdirFactory func(run types.Run) logdir.Logdir

// AgeOutHook decides whether a run whose listed file count has not changed
// for idleFor should be dropped from scheduling. spec.md §9's open question leaves this
// unimplemented: the default NoAgeOut never ages anything out, and the pool
// never invents eviction semantics on its own.
type AgeOutHook func(run types.Run, idleFor time.Duration) bool

// NoAgeOut is the default AgeOutHook: nothing is ever aged out.
func NoAgeOut(types.Run, time.Duration) bool { return false }

// Config controls Pool scheduling.
type Config struct {
	// Workers is the number of goroutines driving Reload cycles concurrently.
	Workers int
	// PollInterval is the minimum gap between two Reload cycles for the same
	// run.
	PollInterval time.Duration
}

// runEntry is one run's scheduling bookkeeping.
type runEntry struct {
	run           types.Run
	loader        *runloader.Loader
	lastReload    time.Time
	lastChange    time.Time
	lastFileCount int
}

// Pool drives Reload cycles for a set of runs on a fixed-size worker pool,
// round-robin over the current run set.
type Pool struct {
	cfg      Config
	registry *commit.Registry
	logdirs  LogdirFactory
	metrics  *metrics.Collector
	ageOut   AgeOutHook

	mu      sync.Mutex
	entries []*runEntry
	cursor  int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New returns a Pool with the given config, publishing into registry and
// resolving each run's Logdir via logdirs.
func New(cfg Config, registry *commit.Registry, logdirs LogdirFactory) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = runloader.CommitInterval
	}
	return &Pool{
		cfg:      cfg,
		registry: registry,
		logdirs:  logdirs,
		ageOut:   NoAgeOut,
		stopCh:   make(chan struct{}),
	}
}

// SetMetrics attaches a Collector every loader added after this call will
// report to. Existing loaders are updated too.
func (p *Pool) SetMetrics(m *metrics.Collector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = m
	for _, e := range p.entries {
		e.loader.SetMetrics(m)
	}
}

// SetAgeOutHook overrides the default no-op AgeOutHook.
func (p *Pool) SetAgeOutHook(hook AgeOutHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ageOut = hook
}

// AddRun registers run for scheduling, creating its Loader if this is the
// first time it's been seen. Safe to call while the pool is running.
func (p *Pool) AddRun(run types.Run) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.entries {
		if e.run == run {
			return
		}
	}

	loader := runloader.New(run)
	if p.metrics != nil {
		loader.SetMetrics(p.metrics)
	}
	now := time.Now()
	p.entries = append(p.entries, &runEntry{run: run, loader: loader, lastChange: now})
	log.Info("run registered with loader pool", "run", run)
}

// Start launches cfg.Workers goroutines, each independently cycling through
// the round-robin run list.
func (p *Pool) Start() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
	log.Info("loader pool started", "workers", p.cfg.Workers, "poll_interval", p.cfg.PollInterval)
}

// Stop signals all workers to exit and waits for them to finish their
// current cycle.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	log.Info("loader pool stopped")
}

// workerLoop repeatedly claims the next due run and drives one Reload cycle
// for it, sleeping briefly when nothing is due.
func (p *Pool) workerLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			entry := p.claimDue()
			if entry == nil {
				continue
			}
			p.runOnce(entry)
		}
	}
}

// claimDue picks the next run in round-robin order whose PollInterval has
// elapsed, marking it claimed by advancing the cursor past it. A run whose
// AgeOutHook fires is dropped from scheduling entirely instead of being
// claimed.
func (p *Pool) claimDue() *runEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < len(p.entries); {
		e := p.entries[i]
		if p.ageOut(e.run, time.Since(e.lastChange)) {
			log.Info("run aged out, dropping from schedule", "run", e.run)
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			continue
		}
		i++
	}

	n := len(p.entries)
	if n == 0 {
		return nil
	}

	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		e := p.entries[idx]
		if time.Since(e.lastReload) >= p.cfg.PollInterval {
			p.cursor = (idx + 1) % n
			return e
		}
	}
	return nil
}

// runOnce performs one Reload cycle for entry against its current file list,
// updating lastChange when the number of listed files changed so the
// AgeOutHook sees idle time rather than reload cadence. A change that keeps
// the count the same (one file replaced by another) is not detected.
func (p *Pool) runOnce(entry *runEntry) {
	ld := p.logdirs(entry.run)
	filenames, err := ld.List()
	if err != nil {
		log.Error("failed to list logdir, skipping this cycle", "run", entry.run, "error", err)
		return
	}

	if len(filenames) != entry.lastFileCount {
		entry.lastChange = time.Now()
		entry.lastFileCount = len(filenames)
	}

	store := p.registry.EnsureRun(entry.run)
	entry.loader.Reload(ld, filenames, store)
	entry.lastReload = time.Now()
}

// Runs returns the runs currently registered, for diagnostics.
func (p *Pool) Runs() []types.Run {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Run, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.run
	}
	return out
}

// ============================================================================
// Run Loader Commit Storage
// ============================================================================
//
// Package: internal/commit
// File: commit.go
// Purpose: Reader-visible committed state for one run: a start time plus one
// TagStore per DataClass, all behind a single sync.RWMutex so a writer holds
// the lock only long enough to swap in freshly staged slices (spec.md §4.5
// /§4.6's "no I/O while the writer lock is held").
//
// Adapted from the teacher's internal/jobmanager.JobManager: a single mutex
// guarding a handful of maps, RLock for readers and Lock for the brief
// mutation, generalized from job-state maps to per-tag committed time
// series. Registry plays the role job_manager's top-level map-of-state does,
// but keyed by Run instead of JobID.
//
// ============================================================================

// Package commit holds the reader-visible, committed state produced by run
// loaders: one Registry of per-run data, each guarded by its own RWMutex.
package commit

import (
	"sync"

	"github.com/ChuLiYu/run-loader/pkg/types"
)

// Point is one committed sample in a time series. Lost marks a position
// whose transform failed at commit time (spec.md §4.4): the slot is kept so
// step ordering and count are preserved, but Value carries no meaning.
type Point[V any] struct {
	Step     types.Step
	WallTime types.WallTime
	Value    V
	Lost     bool
}

// TimeSeries is the committed view of one tag: metadata pinned at first
// sighting (spec.md §4.5) plus whatever the reservoir retained at last
// commit, oldest step first.
type TimeSeries[V any] struct {
	Metadata types.SummaryMetadata
	Points   []Point[V]
}

// TagStore indexes committed time series by tag, for a single DataClass.
type TagStore[V any] struct {
	series map[types.Tag]*TimeSeries[V]
}

// NewTagStore returns an empty TagStore.
func NewTagStore[V any]() *TagStore[V] {
	return &TagStore[V]{series: make(map[types.Tag]*TimeSeries[V])}
}

// EnsureSeries returns the TimeSeries for tag, creating it (pinning metadata)
// on first sighting. Later calls ignore metadata: spec.md §4.5 requires the
// first-seen metadata for a tag to stick for the life of the series.
func (s *TagStore[V]) EnsureSeries(tag types.Tag, metadata types.SummaryMetadata) *TimeSeries[V] {
	if ts, ok := s.series[tag]; ok {
		return ts
	}
	ts := &TimeSeries[V]{Metadata: metadata.Clone()}
	s.series[tag] = ts
	return ts
}

// Get returns the TimeSeries for tag, if any.
func (s *TagStore[V]) Get(tag types.Tag) (*TimeSeries[V], bool) {
	ts, ok := s.series[tag]
	return ts, ok
}

// Tags returns every tag currently present, in no particular order.
func (s *TagStore[V]) Tags() []types.Tag {
	out := make([]types.Tag, 0, len(s.series))
	for tag := range s.series {
		out = append(out, tag)
	}
	return out
}

// Len returns the number of tags currently stored.
func (s *TagStore[V]) Len() int { return len(s.series) }

// RunData is the committed state for one run: a start time plus the two
// TagStores spec.md §6 names (Tensor series are never committed here — they
// are warned-and-dropped entirely at the staging layer).
type RunData struct {
	mu sync.RWMutex

	haveStartTime bool
	startTime     types.WallTime

	Scalars       *TagStore[float64]
	BlobSequences *TagStore[[][]byte]
}

// NewRunData returns an empty, ready-to-use RunData.
func NewRunData() *RunData {
	return &RunData{
		Scalars:       NewTagStore[float64](),
		BlobSequences: NewTagStore[[][]byte](),
	}
}

// Lock acquires the writer side, held only across a commit swap.
func (r *RunData) Lock() { r.mu.Lock() }

// Unlock releases the writer side.
func (r *RunData) Unlock() { r.mu.Unlock() }

// RLock acquires the reader side.
func (r *RunData) RLock() { r.mu.RLock() }

// RUnlock releases the reader side.
func (r *RunData) RUnlock() { r.mu.RUnlock() }

// StartTime returns the run's start time and whether one has been committed
// yet. Must be called while holding RLock or Lock.
func (r *RunData) StartTime() (types.WallTime, bool) {
	return r.startTime, r.haveStartTime
}

// SetStartTime overwrites the committed start time with the loader's
// current value (spec.md §4.6: commit_all unconditionally overwrites, every
// cycle; the monotone "minimum valid wall time seen so far" invariant is
// enforced by the loader, not by this store). Must be called while holding
// Lock.
func (r *RunData) SetStartTime(t types.WallTime) {
	r.startTime = t
	r.haveStartTime = true
}

// Registry indexes RunData by run name. Safe for concurrent use: the map
// itself is guarded independently of any individual RunData's mutex, so
// looking up a run never blocks on that run's own readers or writer.
type Registry struct {
	mu   sync.RWMutex
	runs map[types.Run]*RunData
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[types.Run]*RunData)}
}

// EnsureRun returns the RunData for run, creating it if absent.
func (r *Registry) EnsureRun(run types.Run) *RunData {
	r.mu.RLock()
	data, ok := r.runs[run]
	r.mu.RUnlock()
	if ok {
		return data
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if data, ok := r.runs[run]; ok {
		return data
	}
	data = NewRunData()
	r.runs[run] = data
	return data
}

// Get returns the RunData for run, if it has been created.
func (r *Registry) Get(run types.Run) (*RunData, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.runs[run]
	return data, ok
}

// Runs returns every run name currently registered, in no particular order.
func (r *Registry) Runs() []types.Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Run, 0, len(r.runs))
	for run := range r.runs {
		out = append(out, run)
	}
	return out
}

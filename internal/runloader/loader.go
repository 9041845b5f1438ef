// ============================================================================
// Run Loader Orchestrator
// ============================================================================
//
// Package: internal/runloader
// File: loader.go
// Purpose: Incrementally ingest one run's event files, translate records into
// typed samples, stage them into per-tag reservoirs, and publish stable
// snapshots into the shared commit registry under a readers-writer lock.
//
// Architecture:
//   This is the component the rest of the module exists to support:
//   - internal/logdir: lists and opens event files (external collaborator)
//   - internal/eventfile: decodes a stream into Records (external collaborator)
//   - internal/reservoir: bounded per-series sampling
//   - internal/commit: the shared, lock-guarded publication target
//
// File-set model:
//   Known files live in a key-ordered btree.BTreeG (adapted from
//   bobanetwork-v3-erigon's generic BTreeG[BodyTreeItem] usage), ordered
//   lexicographically by FileID so reads proceed file-by-file in canonical
//   order without an extra sort. Once a FileID is a key it is never removed;
//   its fileState transitions Active->Dead and never back, the same
//   dead-tombstone discipline the teacher's WAL package uses for a
//   terminally failed segment.
//
// Orchestration style: a single Reload call does reconciliation, then a
// streaming read loop, then commit, borrowed from the teacher's
// internal/controller's "one coordinator method drives several well-named
// private steps" shape rather than its multi-goroutine loops (this
// component is explicitly single-threaded-cooperative per design).
//
// ============================================================================

// Package runloader implements the per-run event ingestion loop.
package runloader

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/btree"

	"github.com/ChuLiYu/run-loader/internal/commit"
	"github.com/ChuLiYu/run-loader/internal/eventfile"
	"github.com/ChuLiYu/run-loader/internal/eventpb"
	"github.com/ChuLiYu/run-loader/internal/logdir"
	"github.com/ChuLiYu/run-loader/internal/metrics"
	"github.com/ChuLiYu/run-loader/internal/reservoir"
	"github.com/ChuLiYu/run-loader/pkg/types"
)

var log = slog.Default()

// CommitInterval is the minimum wall-clock gap between opportunistic
// mid-cycle publications (spec.md §6's COMMIT_INTERVAL).
const CommitInterval = 5 * time.Second

// clockCheckStride bounds how often Reload samples the wall clock while
// streaming records, per spec.md §4.1(e)'s "check only every N (~100)
// events" guidance.
const clockCheckStride = 100

// fileStatus is the monotone state of one known file.
type fileStatus int

const (
	statusActive fileStatus = iota
	statusDead
)

// fileState is the loader's private bookkeeping for one known file. Once
// created it is never removed from the file map; status only ever moves
// Active -> Dead.
type fileState struct {
	id     types.FileID
	status fileStatus
	reader *eventfile.Reader
}

// lessFileState orders fileStates lexicographically by FileID, the btree comparator
// passed to btree.NewG.
func lessFileState(a, b *fileState) bool {
	return a.id < b.id
}

// Loader owns one run's file-set state and staged reservoirs. Not safe for
// concurrent use: spec.md §4.1(f) forbids concurrent Reload calls on the
// same loader.
type Loader struct {
	run      types.Run
	files    *btree.BTreeG[*fileState]
	checksum bool
	data     *loaderData
	metrics  *metrics.Collector
}

// loaderData is the RunLoaderData aggregate: earliest wall time observed
// plus one stageTimeSeries per tag ever staged.
type loaderData struct {
	haveStartTime bool
	startTime     types.WallTime
	series        map[types.Tag]*stageTimeSeries
}

func newLoaderData() *loaderData {
	return &loaderData{series: make(map[types.Tag]*stageTimeSeries)}
}

// observeWallTime folds wt into the running minimum, honoring the "None
// counts as +infinity" rule from spec.md §3.
func (d *loaderData) observeWallTime(wt types.WallTime) {
	if !d.haveStartTime || wt.Before(d.startTime) {
		d.startTime = wt
		d.haveStartTime = true
	}
}

// ensureSeries returns the stageTimeSeries for tag, creating it with the
// given metadata (pinned sticky) on first sight.
func (d *loaderData) ensureSeries(tag types.Tag, metadata types.SummaryMetadata) *stageTimeSeries {
	if ts, ok := d.series[tag]; ok {
		return ts
	}
	ts := newStageTimeSeries(metadata)
	d.series[tag] = ts
	return ts
}

// commitAll implements spec.md §4.6: acquire the run's writer lock exactly
// once, overwrite start_time, commit every staged series, release. No I/O
// happens between Lock and Unlock.
func (d *loaderData) commitAll(run types.Run, store *commit.RunData) {
	store.Lock()
	defer store.Unlock()

	if d.haveStartTime {
		store.SetStartTime(d.startTime)
	}
	for tag, series := range d.series {
		series.commit(run, tag, store)
	}
}

// New returns a fresh Loader for run with an empty file map, checksum
// verification enabled by default (spec.md §4.1's create(run) contract).
func New(run types.Run) *Loader {
	return &Loader{
		run:      run,
		files:    btree.NewG[*fileState](32, lessFileState),
		checksum: true,
		data:     newLoaderData(),
	}
}

// SetChecksum toggles CRC verification for files opened after this call;
// already-open readers keep whatever flag was in effect when they opened.
func (l *Loader) SetChecksum(yes bool) {
	l.checksum = yes
}

// SetMetrics attaches a Collector this loader reports to. Optional: a
// Loader with no Collector attached simply skips metrics recording.
func (l *Loader) SetMetrics(m *metrics.Collector) {
	l.metrics = m
}

// Run returns the run this loader was created for.
func (l *Loader) Run() types.Run { return l.run }

// Reload runs one load cycle against the authoritative file list: it
// reconciles the known file set, streams every Active file to exhaustion or
// failure, and publishes to store at least once (and opportunistically
// every CommitInterval of wall time while streaming). Reload must not be
// called concurrently with itself on the same Loader (spec.md §4.1(f)). It
// reports no errors of its own: every failure mode it can hit is handled by
// marking a file Dead or dropping a record, and logging, per the policy
// table in spec.md §7.
func (l *Loader) Reload(ld logdir.Logdir, filenames []types.FileID, store *commit.RunData) {
	cycleStart := time.Now()
	log.Debug("starting load for run", "run", l.run)

	l.reconcileFileSet(ld, filenames)

	lastCommit := time.Now()
	events := 0
	activeCount := 0

	l.files.Ascend(func(fs *fileState) bool {
		if fs.status != statusActive {
			return true
		}
		activeCount++

		for {
			rec, err := fs.reader.ReadEvent()
			if err != nil {
				if errors.Is(err, eventfile.ErrTruncated) {
					break
				}
				log.Warn("event file read failed, marking dead", "run", l.run, "file", fs.id, "error", err)
				fs.status = statusDead
				activeCount--
				if l.metrics != nil {
					l.metrics.RecordFileDead()
				}
				break
			}

			if l.metrics != nil {
				l.metrics.RecordEventRead()
			}
			l.translateRecord(rec)
			events++

			if events%clockCheckStride == 0 && time.Since(lastCommit) >= CommitInterval {
				l.commit(store)
				lastCommit = time.Now()
			}
		}
		return true
	})

	if l.metrics != nil {
		l.metrics.SetFilesActive(string(l.run), activeCount)
		l.metrics.SetSeriesStaged(string(l.run), len(l.data.series))
	}
	l.commit(store)
	log.Debug("finished load for run", "run", l.run, "elapsed", time.Since(cycleStart), "events", events)
}

// commit publishes the current staged view and reports the writer-lock hold
// time to metrics, if attached.
func (l *Loader) commit(store *commit.RunData) {
	start := time.Now()
	l.data.commitAll(l.run, store)
	if l.metrics != nil {
		l.metrics.RecordCommit(time.Since(start).Seconds())
	}
}

// reconcileFileSet implements spec.md §4.2: mark vanished files Dead first,
// then open every newly seen name, before any reading begins this cycle.
func (l *Loader) reconcileFileSet(ld logdir.Logdir, filenames []types.FileID) {
	want := make(map[types.FileID]struct{}, len(filenames))
	for _, id := range filenames {
		want[id] = struct{}{}
	}

	l.files.Ascend(func(fs *fileState) bool {
		if _, ok := want[fs.id]; !ok && fs.status == statusActive {
			log.Warn("event file removed from set, marking dead", "run", l.run, "file", fs.id)
			fs.status = statusDead
			if l.metrics != nil {
				l.metrics.RecordFileDead()
			}
		}
		return true
	})

	for _, id := range filenames {
		if _, ok := l.files.Get(&fileState{id: id}); ok {
			continue // already known: Active stays Active, Dead stays Dead (never resurrected)
		}

		reader, err := ld.Open(id)
		if err != nil {
			log.Warn("failed to open new event file, marking dead", "run", l.run, "file", id, "error", err)
			l.files.ReplaceOrInsert(&fileState{id: id, status: statusDead})
			continue
		}
		reader.SetChecksum(l.checksum)
		l.files.ReplaceOrInsert(&fileState{id: id, status: statusActive, reader: reader})
	}
}

// translateRecord implements spec.md §4.3: validate wall_time, fold it into
// start_time, then dispatch on record kind into the appropriate staged
// series.
func (l *Loader) translateRecord(rec eventpb.Record) {
	wallTime, err := types.NewWallTime(rec.WallTime)
	if err != nil {
		log.Warn("dropping record with invalid wall time", "run", l.run, "wall_time", rec.WallTime)
		if l.metrics != nil {
			l.metrics.RecordEventDropped()
		}
		return
	}
	l.data.observeWallTime(wallTime)

	switch rec.Kind {
	case eventpb.KindFileVersion, eventpb.KindUnknown:
		// No series emitted; only start_time is affected.

	case eventpb.KindGraphDef:
		ts := l.data.ensureSeries(types.GraphTag, types.SummaryMetadata{
			DataClass:  types.DataClassBlobSequence,
			PluginData: types.PluginData{PluginName: types.PluginGraphs},
		})
		ts.reservoir.Offer(stageValue{
			step:     types.Step(rec.Step),
			wallTime: wallTime,
			blob:     [][]byte{rec.GraphDef},
		})

	case eventpb.KindTaggedRunMetadata:
		if rec.TaggedRunMetadata == nil {
			return
		}
		tag := types.Tag(rec.TaggedRunMetadata.Tag)
		ts := l.data.ensureSeries(tag, types.SummaryMetadata{
			DataClass:  types.DataClassBlobSequence,
			PluginData: types.PluginData{PluginName: types.PluginGraphTaggedRunMetadata},
		})
		ts.reservoir.Offer(stageValue{
			step:     types.Step(rec.Step),
			wallTime: wallTime,
			blob:     [][]byte{rec.TaggedRunMetadata.RunMetadata},
		})

	case eventpb.KindSummary:
		if rec.Summary == nil {
			return
		}
		for _, value := range rec.Summary.Values {
			if !value.HasPayload() {
				continue
			}
			l.stageSummaryValue(types.Step(rec.Step), wallTime, value)
		}
	}
}

// classifyPayload infers a SummaryValue's data class from which payload
// variant is present, per spec.md §4.3's enrichment rule.
func classifyPayload(v eventpb.SummaryValue) types.DataClass {
	switch {
	case v.Scalar != nil:
		return types.DataClassScalar
	case v.Tensor != nil:
		return types.DataClassTensor
	case v.BlobSeq != nil:
		return types.DataClassBlobSequence
	default:
		return types.DataClassUnknown
	}
}

// stageSummaryValue routes one Summary value to its tag's series, creating
// the series on first sight with metadata derived from the value's own
// descriptor and enriched with the payload-inferred data class.
func (l *Loader) stageSummaryValue(step types.Step, wallTime types.WallTime, value eventpb.SummaryValue) {
	tag := types.Tag(value.Tag)
	metadata := types.SummaryMetadata{DataClass: classifyPayload(value)}
	if value.Metadata != nil {
		metadata.PluginData = value.Metadata.PluginData
	}

	ts := l.data.ensureSeries(tag, metadata)

	sv := stageValue{step: step, wallTime: wallTime}
	switch {
	case value.Scalar != nil:
		v := *value.Scalar
		sv.scalar = &v
	case value.Tensor != nil:
		sv.tensor = value.Tensor
	case value.BlobSeq != nil:
		sv.blob = value.BlobSeq
	}
	ts.reservoir.Offer(sv)
}

// stageValue is the EventPayload staged into a reservoir: a tagged union
// kept close to the decoded record form (spec.md §3/§9) so staging stays
// cheap. Exactly one of scalar/tensor/blob is populated, per the payload
// variant of the offered record; it can differ from the data class the owning
// series was created with (see scalarPoint).
type stageValue struct {
	step     types.Step
	wallTime types.WallTime
	scalar   *float64
	tensor   []byte
	blob     [][]byte
}

// StepKey implements reservoir.Staged.
func (v stageValue) StepKey() types.Step { return v.step }

// stageTimeSeries is the StageTimeSeries aggregate: captured metadata (sticky
// from first sight) plus a bounded reservoir sized by data class.
type stageTimeSeries struct {
	metadata     types.SummaryMetadata
	reservoir    *reservoir.Reservoir[stageValue]
	warnedTensor bool
}

func newStageTimeSeries(metadata types.SummaryMetadata) *stageTimeSeries {
	return &stageTimeSeries{
		metadata:  metadata,
		reservoir: reservoir.New[stageValue](metadata.DataClass.ReservoirCapacity()),
	}
}

// commit implements spec.md §4.5: route to the matching sink TagStore by
// data class, or warn-once-and-drop for Tensor, or no-op for Unknown.
func (s *stageTimeSeries) commit(run types.Run, tag types.Tag, store *commit.RunData) {
	switch s.metadata.DataClass {
	case types.DataClassScalar:
		sink := store.Scalars.EnsureSeries(tag, s.metadata)
		reservoir.CommitInto(s.reservoir, scalarPoint, &sink.Points)

	case types.DataClassBlobSequence:
		sink := store.BlobSequences.EnsureSeries(tag, s.metadata)
		reservoir.CommitInto(s.reservoir, blobPoint, &sink.Points)

	case types.DataClassTensor:
		if !s.warnedTensor {
			log.Warn("dropping tensor series at commit", "run", run, "tag", tag, "plugin", s.metadata.PluginData.PluginName)
			s.warnedTensor = true
		}

	default:
		// Unknown: no-op, never reaches a series by construction.
	}
}

// scalarPoint transforms a staged scalar value into a committed Point,
// marking DataLoss when the staged payload didn't turn out to carry a
// scalar (e.g. a tag whose data class was pinned Scalar by an earlier
// record but later offers under the same tag carried a different variant).
func scalarPoint(v stageValue) commit.Point[float64] {
	if v.scalar == nil {
		return commit.Point[float64]{Step: v.step, WallTime: v.wallTime, Lost: true}
	}
	return commit.Point[float64]{Step: v.step, WallTime: v.wallTime, Value: *v.scalar}
}

// blobPoint transforms a staged blob-sequence value into a committed Point,
// mirroring scalarPoint's DataLoss handling.
func blobPoint(v stageValue) commit.Point[[][]byte] {
	if v.blob == nil {
		return commit.Point[[][]byte]{Step: v.step, WallTime: v.wallTime, Lost: true}
	}
	return commit.Point[[][]byte]{Step: v.step, WallTime: v.wallTime, Value: v.blob}
}

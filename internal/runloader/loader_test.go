package runloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/run-loader/internal/commit"
	"github.com/ChuLiYu/run-loader/internal/eventfile"
	"github.com/ChuLiYu/run-loader/internal/eventpb"
	"github.com/ChuLiYu/run-loader/internal/logdir"
	"github.com/ChuLiYu/run-loader/pkg/types"
)

// newFixtureFile creates a disk-backed event file under dir named per
// logdir.EventFilePrefix and returns a Writer over it; closing the Writer
// closes the file.
func newFixtureFile(t *testing.T, dir, suffix string) *eventfile.Writer {
	t.Helper()
	path := filepath.Join(dir, logdir.EventFilePrefix+suffix)
	f, err := os.Create(path)
	require.NoError(t, err)
	return eventfile.NewWriter(f)
}

func wallTime(t *testing.T, seconds float64) types.WallTime {
	t.Helper()
	wt, err := types.NewWallTime(seconds)
	require.NoError(t, err)
	return wt
}

// TestTwoFilePreemptionScalar is the seed test from spec.md §8 scenario 1.
func TestTwoFilePreemptionScalar(t *testing.T) {
	dir := t.TempDir()

	w1 := newFixtureFile(t, dir, "123")
	require.NoError(t, w1.WriteFileVersion(wallTime(t, 1234), "brain.Event:2"))
	require.NoError(t, w1.WriteScalar("accuracy", 0, wallTime(t, 1235), 0.25))
	require.NoError(t, w1.WriteScalar("accuracy", 1, wallTime(t, 1236), 0.50))
	require.NoError(t, w1.WriteScalar("accuracy", 2, wallTime(t, 1237), 0.75))
	require.NoError(t, w1.WriteScalar("accuracy", 3, wallTime(t, 1238), 1.00))
	require.NoError(t, w1.Close())

	w2 := newFixtureFile(t, dir, "456")
	require.NoError(t, w2.WriteFileVersion(wallTime(t, 2345), "brain.Event:2"))
	require.NoError(t, w2.WriteScalar("accuracy", 2, wallTime(t, 2346), 0.70))
	require.NoError(t, w2.WriteScalar("accuracy", 3, wallTime(t, 2347), 0.85))
	require.NoError(t, w2.WriteScalar("accuracy", 4, wallTime(t, 2348), 0.90))
	require.NoError(t, w2.Close())

	ld := logdir.NewDiskLogdir("run-1", dir)
	ids, err := ld.List()
	require.NoError(t, err)
	require.Len(t, ids, 2)

	loader := New("run-1")
	store := commit.NewRunData()
	loader.Reload(ld, ids, store)

	store.RLock()
	defer store.RUnlock()

	start, ok := store.StartTime()
	require.True(t, ok)
	assert.Equal(t, 1234.0, start.Seconds())

	series, ok := store.Scalars.Get("accuracy")
	require.True(t, ok)
	assert.Equal(t, "scalars", series.Metadata.PluginData.PluginName)
	assert.Equal(t, types.DataClassScalar, series.Metadata.DataClass)

	require.Len(t, series.Points, 5)
	expected := []struct {
		step     types.Step
		wallTime float64
		value    float64
	}{
		{0, 1235, 0.25},
		{1, 1236, 0.50},
		{2, 2346, 0.70},
		{3, 2347, 0.85},
		{4, 2348, 0.90},
	}
	for i, exp := range expected {
		p := series.Points[i]
		assert.Equal(t, exp.step, p.Step, "position %d step", i)
		assert.Equal(t, exp.wallTime, p.WallTime.Seconds(), "position %d wall time", i)
		assert.InDelta(t, exp.value, p.Value, 1e-9, "position %d value", i)
		assert.False(t, p.Lost, "position %d should not be marked lost", i)
	}
}

// TestGraphDefTagging is spec.md §8 scenario 2.
func TestGraphDefTagging(t *testing.T) {
	dir := t.TempDir()
	w := newFixtureFile(t, dir, "1")
	require.NoError(t, w.WriteGraphDef(0, wallTime(t, 1235), []byte("sample model graph")))
	require.NoError(t, w.Close())

	ld := logdir.NewDiskLogdir("run-2", dir)
	ids, err := ld.List()
	require.NoError(t, err)

	loader := New("run-2")
	store := commit.NewRunData()
	loader.Reload(ld, ids, store)

	store.RLock()
	defer store.RUnlock()

	series, ok := store.BlobSequences.Get(types.GraphTag)
	require.True(t, ok)
	assert.Equal(t, "graphs", series.Metadata.PluginData.PluginName)
	require.Len(t, series.Points, 1)
	assert.Equal(t, types.Step(0), series.Points[0].Step)
	assert.Equal(t, 1235.0, series.Points[0].WallTime.Seconds())
	assert.Equal(t, [][]byte{[]byte("sample model graph")}, series.Points[0].Value)
}

// TestTaggedRunMetadata is spec.md §8 scenario 3.
func TestTaggedRunMetadata(t *testing.T) {
	dir := t.TempDir()
	w := newFixtureFile(t, dir, "1")
	require.NoError(t, w.WriteTaggedRunMetadata("step0000", 0, wallTime(t, 1235), []byte("sample run metadata")))
	require.NoError(t, w.Close())

	ld := logdir.NewDiskLogdir("run-3", dir)
	ids, err := ld.List()
	require.NoError(t, err)

	loader := New("run-3")
	store := commit.NewRunData()
	loader.Reload(ld, ids, store)

	store.RLock()
	defer store.RUnlock()

	series, ok := store.BlobSequences.Get("step0000")
	require.True(t, ok)
	assert.Equal(t, "graph_tagged_run_metadata", series.Metadata.PluginData.PluginName)
	require.Len(t, series.Points, 1)
	assert.Equal(t, [][]byte{[]byte("sample run metadata")}, series.Points[0].Value)
}

// TestTensorSeriesDropped is spec.md §8 scenario 4.
func TestTensorSeriesDropped(t *testing.T) {
	dir := t.TempDir()
	w := newFixtureFile(t, dir, "1")
	require.NoError(t, w.WriteFileVersion(wallTime(t, 1234), "brain.Event:2"))
	require.NoError(t, w.WriteTensor("t", 0, wallTime(t, 1235), "some_plugin", []byte("tensor-bytes")))
	require.NoError(t, w.Close())

	ld := logdir.NewDiskLogdir("run-4", dir)
	ids, err := ld.List()
	require.NoError(t, err)

	loader := New("run-4")
	store := commit.NewRunData()
	loader.Reload(ld, ids, store)

	store.RLock()
	defer store.RUnlock()

	_, ok := store.Scalars.Get("t")
	assert.False(t, ok)
	_, ok = store.BlobSequences.Get("t")
	assert.False(t, ok)

	start, ok := store.StartTime()
	require.True(t, ok)
	assert.Equal(t, 1234.0, start.Seconds(), "start_time must still update even though the tensor series is dropped")
}

// TestInvalidWallTimeDropsRecordOnly is spec.md §8 scenario 5.
func TestInvalidWallTimeDropsRecordOnly(t *testing.T) {
	dir := t.TempDir()
	w := newFixtureFile(t, dir, "1")
	require.NoError(t, w.WriteFileVersion(wallTime(t, 1234), "brain.Event:2"))
	invalidValue := 0.0
	require.NoError(t, w.WriteEvent(eventpb.Record{
		Step:     0,
		WallTime: -1.0, // negative: invalid per types.NewWallTime, and still JSON-representable
		Kind:     eventpb.KindSummary,
		Summary: &eventpb.Summary{Values: []eventpb.SummaryValue{{
			Tag:    "loss",
			Scalar: &invalidValue,
		}}},
	}))
	require.NoError(t, w.WriteScalar("loss", 1, wallTime(t, 1235), 0.5))
	require.NoError(t, w.Close())

	ld := logdir.NewDiskLogdir("run-5", dir)
	ids, err := ld.List()
	require.NoError(t, err)

	loader := New("run-5")
	store := commit.NewRunData()
	loader.Reload(ld, ids, store)

	store.RLock()
	defer store.RUnlock()

	series, ok := store.Scalars.Get("loss")
	require.True(t, ok)
	require.Len(t, series.Points, 1)
	assert.Equal(t, types.Step(1), series.Points[0].Step)

	start, ok := store.StartTime()
	require.True(t, ok)
	assert.Equal(t, 1234.0, start.Seconds(), "the dropped record must not affect start_time")
}

// TestFileDisappearanceNeverReopens is spec.md §8 scenario 6.
func TestFileDisappearanceNeverReopens(t *testing.T) {
	dir := t.TempDir()
	wA := newFixtureFile(t, dir, "1")
	require.NoError(t, wA.WriteScalar("loss", 0, wallTime(t, 1.0), 1.0))
	require.NoError(t, wA.Close())

	wB := newFixtureFile(t, dir, "2")
	require.NoError(t, wB.WriteScalar("loss", 0, wallTime(t, 2.0), 2.0))
	require.NoError(t, wB.Close())

	ld := logdir.NewDiskLogdir("run-6", dir)
	loader := New("run-6")
	store := commit.NewRunData()

	idA := types.FileID(logdir.EventFilePrefix + "1")
	idB := types.FileID(logdir.EventFilePrefix + "2")

	loader.Reload(ld, []types.FileID{idA, idB}, store)
	loader.Reload(ld, []types.FileID{idA}, store)

	fsB, ok := loader.files.Get(&fileState{id: idB})
	require.True(t, ok, "file B must remain a known key once seen")
	assert.Equal(t, statusDead, fsB.status)

	loader.Reload(ld, []types.FileID{idA, idB}, store)

	fsB2, ok := loader.files.Get(&fileState{id: idB})
	require.True(t, ok)
	assert.Equal(t, statusDead, fsB2.status, "a dead file must never be reopened")
}

package commit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/run-loader/pkg/types"
)

func TestEnsureSeriesPinsFirstSightMetadata(t *testing.T) {
	store := NewTagStore[float64]()
	first := types.SummaryMetadata{DataClass: types.DataClassScalar, PluginData: types.PluginData{PluginName: "scalars"}}
	ts := store.EnsureSeries("accuracy", first)
	require.Equal(t, "scalars", ts.Metadata.PluginData.PluginName)

	drifted := types.SummaryMetadata{DataClass: types.DataClassScalar, PluginData: types.PluginData{PluginName: "drifted"}}
	again := store.EnsureSeries("accuracy", drifted)
	assert.Same(t, ts, again)
	assert.Equal(t, "scalars", again.Metadata.PluginData.PluginName, "metadata pinned at first sight must not drift")
}

func TestRunDataStartTimeOverwrittenEachCommit(t *testing.T) {
	run := NewRunData()
	run.Lock()
	t1, _ := types.NewWallTime(10)
	run.SetStartTime(t1)
	run.Unlock()

	run.RLock()
	got, ok := run.StartTime()
	run.RUnlock()
	require.True(t, ok)
	assert.Equal(t, 10.0, got.Seconds())

	run.Lock()
	t2, _ := types.NewWallTime(5)
	run.SetStartTime(t2)
	run.Unlock()

	run.RLock()
	got, ok = run.StartTime()
	run.RUnlock()
	require.True(t, ok)
	assert.Equal(t, 5.0, got.Seconds(), "commit_all overwrites unconditionally with the loader's current value")
}

func TestRegistryEnsureRunReturnsSameInstance(t *testing.T) {
	reg := NewRegistry()
	a := reg.EnsureRun("run-1")
	b := reg.EnsureRun("run-1")
	assert.Same(t, a, b)

	c := reg.EnsureRun("run-2")
	assert.NotSame(t, a, c)
}

func TestRegistryConcurrentEnsureRun(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	results := make([]*RunData, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = reg.EnsureRun("shared-run")
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestRunDataIndependentTagStoresPerClass(t *testing.T) {
	run := NewRunData()
	run.Lock()
	run.Scalars.EnsureSeries("loss", types.SummaryMetadata{DataClass: types.DataClassScalar})
	run.BlobSequences.EnsureSeries("__run_graph__", types.SummaryMetadata{DataClass: types.DataClassBlobSequence})
	run.Unlock()

	run.RLock()
	defer run.RUnlock()
	assert.Equal(t, 1, run.Scalars.Len())
	assert.Equal(t, 1, run.BlobSequences.Len())
}

package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, opts Options) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	Attach(zap.New(core), opts)
	t.Cleanup(func() { Attach(nil, Options{}) })
	return logs
}

func TestCategoryLoggersWriteWhenDebugMode(t *testing.T) {
	logs := observe(t, Options{DebugMode: true})

	Inference("closure reached fixpoint after %d passes", 3)
	Get(CategoryStore).Warn("slow write")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "inference", entries[0].LoggerName)
	assert.Equal(t, "closure reached fixpoint after 3 passes", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "store", entries[1].LoggerName)
}

func TestCategoryFilter(t *testing.T) {
	logs := observe(t, Options{DebugMode: true, Categories: map[string]bool{"diff": false}})

	assert.False(t, IsCategoryEnabled(CategoryDiff))
	assert.True(t, IsCategoryEnabled(CategoryViews), "unlisted categories default to enabled")

	DiffDebug("dropped")
	ViewsDebug("kept")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Message)
}

func TestProductionModeIsSilent(t *testing.T) {
	logs := observe(t, Options{DebugMode: false})

	assert.False(t, IsDebugMode())
	Boot("nothing")
	Get(CategoryBatch).Error("nothing either")
	assert.Zero(t, logs.Len())
}

func TestInitializeWithoutDebugMode(t *testing.T) {
	require.NoError(t, Initialize(Options{Level: "debug"}))
	t.Cleanup(func() { Attach(nil, Options{}) })
	assert.False(t, IsDebugMode())
}

func TestWithAddsContext(t *testing.T) {
	logs := observe(t, Options{DebugMode: true})

	Get(CategoryPlaythrough).With("game", "kitchen").Info("step %d", 2)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "kitchen", entries[0].ContextMap()["game"])
}

func TestTimerThreshold(t *testing.T) {
	logs := observe(t, Options{DebugMode: true})

	timer := StartTimer(CategoryInference, "closure")
	time.Sleep(2 * time.Millisecond)
	elapsed := timer.StopWithThreshold(time.Nanosecond)

	assert.Greater(t, elapsed, time.Duration(0))
	entries := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "closure took")
}

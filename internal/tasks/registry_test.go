package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func TestRegistry_BeginEndCount(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	reg := NewRegistry(clock, 5*time.Minute)

	reg.Begin("conv-1", "查询北京的天气")
	reg.Begin("conv-2", "计算1+1")
	require.Equal(t, 2, reg.Count())

	reg.End("conv-1")
	require.Equal(t, 1, reg.Count())

	// Ending twice is harmless.
	reg.End("conv-1")
	require.Equal(t, 1, reg.Count())
}

func TestRegistry_BeginReplacesExisting(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	reg := NewRegistry(clock, 5*time.Minute)

	reg.Begin("conv-1", "first")
	clock.now = clock.now.Add(10 * time.Second)
	reg.Begin("conv-1", "second")

	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "second", snap[0].UserInput)
	require.Equal(t, 0.0, snap[0].DurationSecs)
}

func TestRegistry_SnapshotMarksStuckTasks(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	reg := NewRegistry(clock, 5*time.Minute)

	reg.Begin("conv-slow", "LLM 写一篇分析")
	clock.now = clock.now.Add(6 * time.Minute)
	reg.Begin("conv-fast", "时间")

	byID := map[string]Info{}
	for _, info := range reg.Snapshot() {
		byID[info.ConversationID] = info
	}

	require.Equal(t, StatusStuck, byID["conv-slow"].Status)
	require.Equal(t, StatusRunning, byID["conv-fast"].Status)
	require.InDelta(t, 360.0, byID["conv-slow"].DurationSecs, 0.11)
}

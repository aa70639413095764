package telemetry

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndStatsComputePercentiles(t *testing.T) {
	s := NewStore(16, 8, nil)
	for _, ms := range []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} {
		s.Record(Event{TaskID: "t", Proxy: "fs", State: EventCompletedOK, LatencyMS: ms, At: time.Now()})
	}

	stats := s.Stats("fs")
	assert.Equal(t, int64(10), stats.Count)
	assert.InDelta(t, 55, stats.P50MS, 5)
	assert.Equal(t, 10.0, stats.MinMS)
	assert.Equal(t, 100.0, stats.MaxMS)
	assert.Equal(t, 1.0, stats.HealthScore)
}

func TestErrorsDegradeHealthScore(t *testing.T) {
	s := NewStore(16, 8, nil)
	for i := 0; i < 5; i++ {
		s.Record(Event{TaskID: "ok", Proxy: "net", State: EventCompletedOK, LatencyMS: 5})
	}
	for i := 0; i < 5; i++ {
		s.Record(Event{TaskID: "err", Proxy: "net", State: EventCompletedError})
	}

	stats := s.Stats("net")
	assert.Equal(t, int64(10), stats.Count)
	assert.Equal(t, int64(5), stats.Errors)
	assert.InDelta(t, 0.5, stats.HealthScore, 0.01)
}

func TestUnknownProxyReportsPerfectHealth(t *testing.T) {
	s := NewStore(16, 8, nil)
	stats := s.Stats("never-seen")
	assert.Equal(t, 1.0, stats.HealthScore)
	assert.Equal(t, int64(0), stats.Count)
}

func TestRecentReturnsNewestEventsInOrder(t *testing.T) {
	s := NewStore(4, 8, nil)
	for i := 0; i < 6; i++ {
		s.Record(Event{TaskID: string(rune('a' + i)), Proxy: "fs", State: EventQueued})
	}
	recent := s.Recent(4)
	require := []string{"c", "d", "e", "f"}
	for i, ev := range recent {
		assert.Equal(t, require[i], ev.TaskID)
	}
}

func TestSnapshotBoundsHistoryWindow(t *testing.T) {
	s := NewStore(16, 2, nil)
	s.Record(Event{Proxy: "fs", State: EventCompletedOK, LatencyMS: 1})
	s.Snapshot()
	s.Snapshot()
	s.Snapshot()

	history := s.History()
	assert.LessOrEqual(t, len(history), 2)
}

func TestResetClearsInvocationsAndRestoresPerfectSuccessRate(t *testing.T) {
	s := NewStore(16, 8, nil)
	for i := 0; i < 3; i++ {
		s.Record(Event{Proxy: "fs", State: EventCompletedOK, LatencyMS: 10})
	}
	s.Record(Event{Proxy: "fs", State: EventCompletedError})

	before := s.Stats("fs")
	assert.Equal(t, int64(4), before.Count)
	assert.Less(t, before.SuccessRate, 1.0)

	s.Reset("fs")

	after := s.Stats("fs")
	assert.Equal(t, int64(0), after.Count)
	assert.Equal(t, int64(0), after.Errors)
	assert.Equal(t, 1.0, after.SuccessRate)
	assert.Equal(t, 0.0, after.MinMS)
	assert.Equal(t, 0.0, after.MaxMS)
}

func TestResetWithNoProxiesClearsEveryKnownProxy(t *testing.T) {
	s := NewStore(16, 8, nil)
	s.Record(Event{Proxy: "fs", State: EventCompletedError})
	s.Record(Event{Proxy: "net", State: EventCompletedError})

	s.Reset()

	assert.Equal(t, int64(0), s.Stats("fs").Count)
	assert.Equal(t, int64(0), s.Stats("net").Count)
}

func TestSnapshotAndResetReturnsPriorStatsThenClearsWindow(t *testing.T) {
	s := NewStore(16, 8, nil)
	s.Record(Event{Proxy: "fs", State: EventCompletedOK, LatencyMS: 20})
	s.Record(Event{Proxy: "fs", State: EventCompletedOK, LatencyMS: 40})

	captured := s.SnapshotAndReset("fs")
	assert.Equal(t, int64(2), captured.Count)
	assert.Equal(t, 20.0, captured.MinMS)

	after := s.Stats("fs")
	assert.Equal(t, int64(0), after.Count)
}

func TestConfigureSummaryHistoryTrimsExistingRingImmediately(t *testing.T) {
	s := NewStore(16, 8, nil)
	s.Record(Event{Proxy: "fs", State: EventCompletedOK, LatencyMS: 1})
	s.Snapshot()
	s.Snapshot()
	s.Snapshot()
	assert.Len(t, s.History(), 3)

	s.ConfigureSummaryHistory(1)
	assert.Len(t, s.History(), 1)
}

func TestClearSummaryHistoryEmptiesRingWithoutTouchingLiveWindow(t *testing.T) {
	s := NewStore(16, 8, nil)
	s.Record(Event{Proxy: "fs", State: EventCompletedOK, LatencyMS: 1})
	s.Snapshot()
	assert.NotEmpty(t, s.History())

	s.ClearSummaryHistory()
	assert.Empty(t, s.History())
	assert.Equal(t, int64(1), s.Stats("fs").Count)
}

func TestStatsReportsLatencyBucketDistribution(t *testing.T) {
	s := NewStore(16, 8, nil, 10, 50, 200)
	for _, ms := range []float64{5, 5, 30, 300} {
		s.Record(Event{Proxy: "fs", State: EventCompletedOK, LatencyMS: ms, At: time.Now()})
	}

	stats := s.Stats("fs")
	require.Len(t, stats.Buckets, 4) // 3 configured bounds + 1 overflow bucket

	assert.Equal(t, 10.0, stats.Buckets[0].UpperBoundMS)
	assert.Equal(t, int64(2), stats.Buckets[0].Count)
	assert.InDelta(t, 0.5, stats.Buckets[0].Fraction, 0.001)

	assert.Equal(t, 50.0, stats.Buckets[1].UpperBoundMS)
	assert.Equal(t, int64(1), stats.Buckets[1].Count)

	assert.Equal(t, 200.0, stats.Buckets[2].UpperBoundMS)
	assert.Equal(t, int64(0), stats.Buckets[2].Count)

	assert.True(t, math.IsInf(stats.Buckets[3].UpperBoundMS, 1))
	assert.Equal(t, int64(1), stats.Buckets[3].Count)
}

func TestStatsUsesDefaultBucketBoundsWhenNoneConfigured(t *testing.T) {
	s := NewStore(16, 8, nil)
	s.Record(Event{Proxy: "fs", State: EventCompletedOK, LatencyMS: 1})

	stats := s.Stats("fs")
	assert.Len(t, stats.Buckets, len(defaultLatencyBucketBoundsMS)+1)
}

func TestSummaryHistoryReturnsMostRecentN(t *testing.T) {
	s := NewStore(16, 8, nil)
	for i := 0; i < 5; i++ {
		s.Record(Event{Proxy: "fs", State: EventCompletedOK, LatencyMS: float64(i)})
		s.Snapshot()
	}
	recent := s.SummaryHistory(2)
	assert.Len(t, recent, 2)
}

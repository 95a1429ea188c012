package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTiming(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpClassify, 10*time.Millisecond)
	c.RecordTiming(OpClassify, 30*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.Classify)
	assert.Equal(t, int64(2), snap.Classify.Count)
	assert.Equal(t, int64(40), snap.Classify.TotalTimeMs)
	assert.Equal(t, float64(20), snap.Classify.AvgTimeMs)
	assert.Equal(t, int64(10), snap.Classify.MinTimeMs)
	assert.Equal(t, int64(30), snap.Classify.MaxTimeMs)
}

func TestSnapshotNilForUnusedOps(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpTurn, time.Millisecond)

	snap := c.Snapshot()
	assert.NotNil(t, snap.Turn)
	assert.Nil(t, snap.Generate)
	assert.Nil(t, snap.Notify)
}

func TestRecordErrorWithoutTiming(t *testing.T) {
	c := NewCollector()

	c.RecordError(OpGenerate)

	snap := c.Snapshot()
	require.NotNil(t, snap.Generate)
	assert.Equal(t, int64(1), snap.Generate.Errors)
	assert.Equal(t, int64(0), snap.Generate.Count)
	assert.Equal(t, int64(0), snap.Generate.MinTimeMs)
}

func TestCounters(t *testing.T) {
	c := NewCollector()

	c.CountCrisisDetection()
	c.CountCrisisDetection()
	c.CountFeedbackLoop()
	c.CountHallucination()
	c.CountFallback()

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.CrisisDetections)
	assert.Equal(t, int64(1), snap.FeedbackLoops)
	assert.Equal(t, int64(1), snap.Hallucinations)
	assert.Equal(t, int64(1), snap.Fallbacks)
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordTiming(OpRetrieve, time.Millisecond)
			c.CountCrisisDetection()
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	require.NotNil(t, snap.Retrieve)
	assert.Equal(t, int64(50), snap.Retrieve.Count)
	assert.Equal(t, int64(50), snap.CrisisDetections)
}

func TestUptime(t *testing.T) {
	c := NewCollector()
	assert.GreaterOrEqual(t, c.Snapshot().UptimeSeconds, 0.0)
}

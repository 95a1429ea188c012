// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Errors    int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	Errors      int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64
}

// Snapshot represents the full runtime statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Classify      *OperationSnapshot
	Generate      *OperationSnapshot
	Retrieve      *OperationSnapshot
	Persist       *OperationSnapshot
	Notify        *OperationSnapshot
	Turn          *OperationSnapshot

	CrisisDetections int64
	FeedbackLoops    int64
	Hallucinations   int64
	Fallbacks        int64
}

// Operation names for the collector.
const (
	OpClassify = "classify"
	OpGenerate = "generate"
	OpRetrieve = "retrieve"
	OpPersist  = "persist"
	OpNotify   = "notify"
	OpTurn     = "turn"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics

	crisisDetections int64
	feedbackLoops    int64
	hallucinations   int64
	fallbacks        int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime: time.Duration(math.MaxInt64),
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordError records a failed operation. The timing of the failed call
// is recorded separately via RecordTiming if the caller measured it.
func (c *Collector) RecordError(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(op).Errors++
}

// CountCrisisDetection increments the crisis detection counter.
func (c *Collector) CountCrisisDetection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crisisDetections++
}

// CountFeedbackLoop increments the feedback loop counter.
func (c *Collector) CountFeedbackLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feedbackLoops++
}

// CountHallucination increments the hallucination flag counter.
func (c *Collector) CountHallucination() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hallucinations++
}

// CountFallback increments the templated-fallback counter.
func (c *Collector) CountFallback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallbacks++
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || (m.Count == 0 && m.Errors == 0) {
		return nil
	}

	snap := &OperationSnapshot{
		Count:  m.Count,
		Errors: m.Errors,
	}
	if m.Count > 0 {
		snap.TotalTimeMs = m.TotalTime.Milliseconds()
		snap.AvgTimeMs = float64(m.TotalTime.Milliseconds()) / float64(m.Count)
		snap.MinTimeMs = m.MinTime.Milliseconds()
		snap.MaxTimeMs = m.MaxTime.Milliseconds()
	}
	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:    time.Since(c.startTime).Seconds(),
		Classify:         snapshotOp(c.ops[OpClassify]),
		Generate:         snapshotOp(c.ops[OpGenerate]),
		Retrieve:         snapshotOp(c.ops[OpRetrieve]),
		Persist:          snapshotOp(c.ops[OpPersist]),
		Notify:           snapshotOp(c.ops[OpNotify]),
		Turn:             snapshotOp(c.ops[OpTurn]),
		CrisisDetections: c.crisisDetections,
		FeedbackLoops:    c.feedbackLoops,
		Hallucinations:   c.hallucinations,
		Fallbacks:        c.fallbacks,
	}
}

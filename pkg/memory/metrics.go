package memory

import "sync/atomic"

// Metrics counts service activity for the lifetime of a Service.
type Metrics struct {
	stored    atomic.Int64
	recalls   atomic.Int64
	recalled  atomic.Int64
	filtered  atomic.Int64
	failures  atomic.Int64
	forgotten atomic.Int64
}

func (m *Metrics) incStored()         { m.stored.Add(1) }
func (m *Metrics) incRecalls()        { m.recalls.Add(1) }
func (m *Metrics) incRecalled(n int)  { m.recalled.Add(int64(n)) }
func (m *Metrics) incFiltered(n int)  { m.filtered.Add(int64(n)) }
func (m *Metrics) incFailures()       { m.failures.Add(1) }
func (m *Metrics) incForgotten(n int) { m.forgotten.Add(int64(n)) }

type MetricsSnapshot struct {
	Stored    int64 `json:"stored"`
	Recalls   int64 `json:"recalls"`
	Recalled  int64 `json:"recalled"`
	Filtered  int64 `json:"filtered"`
	Failures  int64 `json:"failures"`
	Forgotten int64 `json:"forgotten"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Stored:    m.stored.Load(),
		Recalls:   m.recalls.Load(),
		Recalled:  m.recalled.Load(),
		Filtered:  m.filtered.Load(),
		Failures:  m.failures.Load(),
		Forgotten: m.forgotten.Load(),
	}
}

// Package analytics collects in-process usage counters and timing metrics
// and renders them into usage reports.
//
// It is a bounded, in-memory layer: metric series keep at most a fixed
// number of recent points, counters are plain tallies. Nothing here is
// persisted; the journal handles durable run history.
package analytics

import (
	"sort"
	"sync"
	"time"
)

// Point is a single recorded metric value.
type Point struct {
	Value float64
	At    time.Time
}

// MetricStats summarizes one metric series.
type MetricStats struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Summary is a snapshot of every counter and metric series.
type Summary struct {
	Counters map[string]int64       `json:"counters"`
	Metrics  map[string]MetricStats `json:"metrics"`
}

const defaultMaxPoints = 1000

// Collector aggregates named counters and bounded metric series.
// Safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	maxPoints int
	series    map[string][]Point
	counters  map[string]int64
}

// NewCollector creates a collector keeping at most maxPoints recent values
// per metric. Non-positive maxPoints falls back to 1000.
func NewCollector(maxPoints int) *Collector {
	if maxPoints <= 0 {
		maxPoints = defaultMaxPoints
	}
	return &Collector{
		maxPoints: maxPoints,
		series:    make(map[string][]Point),
		counters:  make(map[string]int64),
	}
}

// Record appends a value to the named metric series, dropping the oldest
// point once the series is full.
func (c *Collector) Record(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pts := append(c.series[name], Point{Value: value, At: time.Now()})
	if len(pts) > c.maxPoints {
		pts = pts[len(pts)-c.maxPoints:]
	}
	c.series[name] = pts
}

// Increment adds amount to the named counter.
func (c *Collector) Increment(name string, amount int64) {
	c.mu.Lock()
	c.counters[name] += amount
	c.mu.Unlock()
}

// Counter returns the named counter's value, zero if never incremented.
func (c *Collector) Counter(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[name]
}

// Stats returns count/avg/min/max for the named series. An empty series
// yields all zeros.
func (c *Collector) Stats(name string) MetricStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return statsOf(c.series[name])
}

func statsOf(pts []Point) MetricStats {
	if len(pts) == 0 {
		return MetricStats{}
	}
	st := MetricStats{Count: len(pts), Min: pts[0].Value, Max: pts[0].Value}
	var sum float64
	for _, p := range pts {
		sum += p.Value
		if p.Value < st.Min {
			st.Min = p.Value
		}
		if p.Value > st.Max {
			st.Max = p.Value
		}
	}
	st.Avg = sum / float64(len(pts))
	return st
}

// Summary snapshots all counters and series stats.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Summary{
		Counters: make(map[string]int64, len(c.counters)),
		Metrics:  make(map[string]MetricStats, len(c.series)),
	}
	for k, v := range c.counters {
		out.Counters[k] = v
	}
	for name, pts := range c.series {
		out.Metrics[name] = statsOf(pts)
	}
	return out
}

// UsageReport covers one tracking session.
type UsageReport struct {
	PeriodStart     time.Time      `json:"period_start"`
	PeriodEnd       time.Time      `json:"period_end"`
	TotalTasks      int            `json:"total_tasks"`
	SuccessfulTasks int            `json:"successful_tasks"`
	FailedTasks     int            `json:"failed_tasks"`
	TotalActions    int            `json:"total_actions"`
	AvgTaskDuration time.Duration  `json:"avg_task_duration"`
	MostUsedActions []string       `json:"most_used_actions"`
	ErrorSummary    map[string]int `json:"error_summary"`
}

// Analytics tracks task outcomes, action usage and error occurrences and
// turns them into UsageReports. Safe for concurrent use.
type Analytics struct {
	metrics *Collector

	mu           sync.Mutex
	sessionStart time.Time
	taskTotal    int
	taskOK       int
	durationSum  time.Duration
	actionCounts map[string]int
	actionTotal  int
	errorCounts  map[string]int
}

func New() *Analytics {
	return &Analytics{
		metrics:      NewCollector(0),
		sessionStart: time.Now(),
		actionCounts: make(map[string]int),
		errorCounts:  make(map[string]int),
	}
}

// TrackTask records one task completion.
func (a *Analytics) TrackTask(success bool, duration time.Duration) {
	a.mu.Lock()
	a.taskTotal++
	if success {
		a.taskOK++
	}
	a.durationSum += duration
	a.mu.Unlock()

	a.metrics.Record("task_duration", duration.Seconds())
	a.metrics.Increment("tasks_total", 1)
	if success {
		a.metrics.Increment("tasks_success", 1)
	} else {
		a.metrics.Increment("tasks_failed", 1)
	}
}

// TrackAction records one action execution by type.
func (a *Analytics) TrackAction(actionType string) {
	a.mu.Lock()
	a.actionCounts[actionType]++
	a.actionTotal++
	a.mu.Unlock()

	a.metrics.Increment("action_"+actionType, 1)
	a.metrics.Increment("actions_total", 1)
}

// TrackError records one error occurrence by type.
func (a *Analytics) TrackError(errorType string) {
	a.mu.Lock()
	a.errorCounts[errorType]++
	a.mu.Unlock()

	a.metrics.Increment("error_"+errorType, 1)
	a.metrics.Increment("errors_total", 1)
}

// Report builds a usage report for the session so far. MostUsedActions lists
// up to five action types by descending count; ties break alphabetically so
// the output is stable.
func (a *Analytics) Report() UsageReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := UsageReport{
		PeriodStart:     a.sessionStart,
		PeriodEnd:       time.Now(),
		TotalTasks:      a.taskTotal,
		SuccessfulTasks: a.taskOK,
		FailedTasks:     a.taskTotal - a.taskOK,
		TotalActions:    a.actionTotal,
		ErrorSummary:    make(map[string]int, len(a.errorCounts)),
	}
	if a.taskTotal > 0 {
		r.AvgTaskDuration = a.durationSum / time.Duration(a.taskTotal)
	}
	for k, v := range a.errorCounts {
		r.ErrorSummary[k] = v
	}

	actions := make([]string, 0, len(a.actionCounts))
	for k := range a.actionCounts {
		actions = append(actions, k)
	}
	sort.Slice(actions, func(i, j int) bool {
		ci, cj := a.actionCounts[actions[i]], a.actionCounts[actions[j]]
		if ci != cj {
			return ci > cj
		}
		return actions[i] < actions[j]
	})
	if len(actions) > 5 {
		actions = actions[:5]
	}
	r.MostUsedActions = actions
	return r
}

// Metrics exposes the underlying collector for ad-hoc instrumentation.
func (a *Analytics) Metrics() *Collector { return a.metrics }

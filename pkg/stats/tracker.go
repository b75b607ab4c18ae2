package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// StatusClass maps a status code to its class label, such as "2xx". Codes
// below 200 report as "1xx".
func StatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

// Tracker keeps in-memory request counters for the stats surface of the
// management protocol. Counters are atomics so the request path never
// blocks; the per-upstream map takes a lock only when a new upstream name
// is first seen.
type Tracker struct {
	startTime time.Time

	totalRequests atomic.Int64
	status2xx     atomic.Int64
	status3xx     atomic.Int64
	status4xx     atomic.Int64
	status5xx     atomic.Int64
	bytesSent     atomic.Int64

	mu        sync.RWMutex
	upstreams map[string]*upstreamCounters
}

type upstreamCounters struct {
	requests atomic.Int64
	failures atomic.Int64
}

// NewTracker creates an empty tracker. The start time anchors the uptime
// reported in snapshots.
func NewTracker() *Tracker {
	return &Tracker{
		startTime: time.Now(),
		upstreams: make(map[string]*upstreamCounters),
	}
}

// RecordRequest records one completed request with its response status and
// body size. upstream is empty for static file responses and local errors.
func (t *Tracker) RecordRequest(status int, bytes int64, upstream string) {
	t.totalRequests.Add(1)
	t.bytesSent.Add(bytes)

	switch {
	case status >= 200 && status < 300:
		t.status2xx.Add(1)
	case status >= 300 && status < 400:
		t.status3xx.Add(1)
	case status >= 400 && status < 500:
		t.status4xx.Add(1)
	case status >= 500:
		t.status5xx.Add(1)
	}

	if upstream == "" {
		return
	}
	c := t.counters(upstream)
	c.requests.Add(1)
	if status >= 500 {
		c.failures.Add(1)
	}
}

// RecordUpstreamFailure records a dispatch failure that produced no
// upstream response, such as a refused connection on the final attempt.
func (t *Tracker) RecordUpstreamFailure(upstream string) {
	t.counters(upstream).failures.Add(1)
}

func (t *Tracker) counters(upstream string) *upstreamCounters {
	t.mu.RLock()
	c, ok := t.upstreams[upstream]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok = t.upstreams[upstream]; ok {
		return c
	}
	c = &upstreamCounters{}
	t.upstreams[upstream] = c
	return c
}

// UpstreamStats is the per-upstream slice of a stats snapshot.
type UpstreamStats struct {
	Requests int64 `json:"requests"`
	Failures int64 `json:"failures"`
}

// Snapshot is a point-in-time copy of the tracker counters, shaped for the
// management wire.
type Snapshot struct {
	UptimeSeconds     int64                    `json:"uptime_seconds"`
	TotalRequests     int64                    `json:"total_requests"`
	RequestsPerSecond float64                  `json:"requests_per_second"`
	Status2xx         int64                    `json:"status_2xx"`
	Status3xx         int64                    `json:"status_3xx"`
	Status4xx         int64                    `json:"status_4xx"`
	Status5xx         int64                    `json:"status_5xx"`
	BytesSent         int64                    `json:"bytes_sent"`
	Upstreams         map[string]UpstreamStats `json:"upstreams"`
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() Snapshot {
	uptime := time.Since(t.startTime)
	snap := Snapshot{
		UptimeSeconds: int64(uptime.Seconds()),
		TotalRequests: t.totalRequests.Load(),
		Status2xx:     t.status2xx.Load(),
		Status3xx:     t.status3xx.Load(),
		Status4xx:     t.status4xx.Load(),
		Status5xx:     t.status5xx.Load(),
		BytesSent:     t.bytesSent.Load(),
		Upstreams:     make(map[string]UpstreamStats),
	}
	if uptime > 0 {
		snap.RequestsPerSecond = float64(snap.TotalRequests) / uptime.Seconds()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for name, c := range t.upstreams {
		snap.Upstreams[name] = UpstreamStats{
			Requests: c.requests.Load(),
			Failures: c.failures.Load(),
		}
	}
	return snap
}

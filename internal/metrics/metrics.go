// Package metrics implements the built-in /metrics and /metricsp
// endpoints. The JSON snapshot mirrors metrics.hpp::to_json field for
// field; the Prometheus text exposition wraps the same counters in
// prometheus/client_golang so the same numbers are reachable through
// promhttp as well.
package metrics

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PoolStats is the subset of workerpool.Pool this package needs, kept
// narrow to avoid an import cycle between metrics and workerpool.
type PoolStats interface {
	QueuedTasks() uint64
}

// Metrics is the shared, thread-safe metrics object every shard's worker
// pools register with, matching the source's single process-wide `metrics`
// instance passed by reference to every shard.
type Metrics struct {
	podName      string
	startTime    time.Time
	startTimeFmt string
	poolSize     int
	totalRAMKB   uint64

	totalRequests         atomic.Int64
	totalProcessingTimeUs atomic.Int64
	connections           atomic.Int64
	activeThreads         atomic.Int64

	poolsMu sync.Mutex
	pools   []PoolStats

	registry *prometheus.Registry
}

// New builds a Metrics object. podName is the hostname (k8s pod name);
// poolSize is the configured total worker count across all shards; tz
// names the zone used to format start_time, matching the TZ env var's
// documented-but-unspecified role in spec.md §6.
func New(podName string, poolSize int, tz string) *Metrics {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	now := time.Now()

	m := &Metrics{
		podName:      podName,
		startTime:    now,
		startTimeFmt: now.In(loc).Format("2006-01-02T15:04:05"),
		poolSize:     poolSize,
		totalRAMKB:   readProcToken("/proc/meminfo", "MemTotal:"),
		registry:     prometheus.NewRegistry(),
	}
	m.registerCollectors()
	return m
}

func (m *Metrics) registerCollectors() {
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m.registry.MustRegister(collectors.NewGoCollector())

	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "apiserver_total_requests",
		Help: "Total requests processed since start.",
	}, func() float64 { return float64(m.totalRequests.Load()) }))

	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "apiserver_processing_seconds_total",
		Help: "Cumulative request processing time in seconds.",
	}, func() float64 { return float64(m.totalProcessingTimeUs.Load()) / 1_000_000.0 }))

	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "apiserver_current_connections",
		Help: "Currently open client connections.",
	}, func() float64 { return float64(m.connections.Load()) }))

	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "apiserver_active_threads",
		Help: "Worker threads currently executing a handler.",
	}, func() float64 { return float64(m.activeThreads.Load()) }))

	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "apiserver_pending_tasks",
		Help: "Tasks queued across all registered worker pools.",
	}, func() float64 { return float64(m.pendingTasks()) }))

	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "apiserver_pool_size",
		Help: "Configured total worker count across all shards.",
	}, func() float64 { return float64(m.poolSize) }))

	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "apiserver_memory_usage_kb",
		Help: "Process resident set size in KB, from /proc/self/status VmRSS.",
	}, func() float64 { return float64(readProcToken("/proc/self/status", "VmRSS:")) }))
}

// RegisterPool adds a worker pool to the set whose pending-task counts are
// summed into pending_tasks, mirroring metrics::register_thread_pool.
func (m *Metrics) RegisterPool(p PoolStats) {
	m.poolsMu.Lock()
	defer m.poolsMu.Unlock()
	m.pools = append(m.pools, p)
}

func (m *Metrics) pendingTasks() uint64 {
	m.poolsMu.Lock()
	defer m.poolsMu.Unlock()
	var total uint64
	for _, p := range m.pools {
		total += p.QueuedTasks()
	}
	return total
}

func (m *Metrics) IncrementConnections() { m.connections.Add(1) }
func (m *Metrics) DecrementConnections() { m.connections.Add(-1) }
func (m *Metrics) IncrementActiveThreads() { m.activeThreads.Add(1) }
func (m *Metrics) DecrementActiveThreads() { m.activeThreads.Add(-1) }

// RecordRequestTime accumulates a completed request's duration into the
// running totals backing average_processing_time_seconds.
func (m *Metrics) RecordRequestTime(d time.Duration) {
	m.totalRequests.Add(1)
	m.totalProcessingTimeUs.Add(d.Microseconds())
}

type jsonSnapshot struct {
	PodName                      string  `json:"pod_name"`
	StartTime                    string  `json:"start_time"`
	TotalRequests                int64   `json:"total_requests"`
	AverageProcessingTimeSeconds float64 `json:"average_processing_time_seconds"`
	CurrentConnections           int64   `json:"current_connections"`
	CurrentActiveThreads         int64   `json:"current_active_threads"`
	PendingTasks                 uint64  `json:"pending_tasks"`
	ThreadPoolSize               int     `json:"thread_pool_size"`
	TotalRAMKB                   uint64  `json:"total_ram_kb"`
	MemoryUsageKB                uint64  `json:"memory_usage_kb"`
	MemoryUsagePercentage        float64 `json:"memory_usage_percentage"`
}

// ToJSON renders the /metrics snapshot, field-for-field matching
// metrics.hpp::to_json.
func (m *Metrics) ToJSON() ([]byte, error) {
	total := m.totalRequests.Load()
	totalUs := m.totalProcessingTimeUs.Load()
	var avg float64
	if total > 0 {
		avg = float64(totalUs) / float64(total) / 1_000_000.0
	}

	memUsageKB := readProcToken("/proc/self/status", "VmRSS:")
	var memPct float64
	if m.totalRAMKB > 0 {
		memPct = float64(memUsageKB) / float64(m.totalRAMKB) * 100.0
	}

	snap := jsonSnapshot{
		PodName:                      m.podName,
		StartTime:                    m.startTimeFmt,
		TotalRequests:                total,
		AverageProcessingTimeSeconds: avg,
		CurrentConnections:           m.connections.Load(),
		CurrentActiveThreads:         m.activeThreads.Load(),
		PendingTasks:                 m.pendingTasks(),
		ThreadPoolSize:               m.poolSize,
		TotalRAMKB:                   m.totalRAMKB,
		MemoryUsageKB:                memUsageKB,
		MemoryUsagePercentage:        memPct,
	}
	return json.Marshal(snap)
}

// ToPrometheus renders the registry in Prometheus text exposition format,
// reusing promhttp's own handler via an in-memory request/response pair
// rather than duplicating its format negotiation.
func (m *Metrics) ToPrometheus() ([]byte, string, error) {
	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	req := httptest.NewRequest(http.MethodGet, "/metricsp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Body.Bytes(), rec.Header().Get("Content-Type"), nil
}

// PodName returns the configured pod/hostname, used by the /version
// endpoint.
func (m *Metrics) PodName() string { return m.podName }

func readProcToken(path, token string) uint64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, token) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return v
	}
	return 0
}

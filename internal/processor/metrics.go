package processor

import (
	"sync/atomic"
	"time"

	"github.com/nimasrn/finance-ledger/pkg/prom"
)

// ServiceMetrics keeps in-process job counters for the periodic log line.
// Run durations are also exported through prom by the reminder service.
type ServiceMetrics struct {
	processed  atomic.Int64
	failed     atomic.Int64
	durationNs atomic.Int64
	lastRunNs  atomic.Int64
	startedAt  time.Time
}

func NewServiceMetrics() *ServiceMetrics {
	return &ServiceMetrics{startedAt: time.Now()}
}

func (m *ServiceMetrics) RecordSuccess(duration time.Duration) {
	m.processed.Add(1)
	m.durationNs.Add(int64(duration))
	m.lastRunNs.Store(time.Now().UnixNano())
	prom.IncCounterVec(prom.SystemReminder, prom.MetricReminderJobs, "success")
}

func (m *ServiceMetrics) RecordFailure() {
	m.failed.Add(1)
	prom.IncCounterVec(prom.SystemReminder, prom.MetricReminderJobs, "failed")
}

// LastRun is the zero time until a job succeeds.
func (m *ServiceMetrics) LastRun() time.Time {
	ns := m.lastRunNs.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (m *ServiceMetrics) GetStats() map[string]interface{} {
	processed := m.processed.Load()

	avg := time.Duration(0)
	if processed > 0 {
		avg = time.Duration(m.durationNs.Load() / processed)
	}

	return map[string]interface{}{
		"total_processed": processed,
		"total_failed":    m.failed.Load(),
		"avg_duration_ms": avg.Milliseconds(),
		"uptime_seconds":  time.Since(m.startedAt).Seconds(),
	}
}

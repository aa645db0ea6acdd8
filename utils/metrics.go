package utils

import (
	"sync"
	"time"
)

// Metrics содержит метрики обработки транзакций
type Metrics struct {
	mu sync.RWMutex

	// Метрики приема событий
	TotalEvents     int64
	CommittedEvents int64
	RejectedEvents  int64
	DuplicateEvents int64
	IntakeLatency   time.Duration
	AverageLatency  time.Duration
	LastEventTime   time.Time

	// Метрики маршрутизации
	EdgeDecisions    int64
	CloudDecisions   int64
	FlaggedDecisions int64
	DegradedEvents   int64

	// Метрики ошибок
	ErrorCount    int64
	LastErrorTime time.Time
	ErrorTypes    map[string]int64
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics возвращает экземпляр метрик
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			ErrorTypes: make(map[string]int64),
		}
	})
	return metrics
}

// RecordIntake записывает метрики одного обработанного события
func (m *Metrics) RecordIntake(tier string, committed, duplicate, degraded bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalEvents++
	m.IntakeLatency += duration
	m.AverageLatency = m.IntakeLatency / time.Duration(m.TotalEvents)
	m.LastEventTime = time.Now()

	if committed {
		m.CommittedEvents++
	} else {
		m.RejectedEvents++
	}
	if duplicate {
		m.DuplicateEvents++
	}
	if degraded {
		m.DegradedEvents++
	}

	switch tier {
	case "edge":
		m.EdgeDecisions++
	case "cloud":
		m.CloudDecisions++
	case "flagged":
		m.FlaggedDecisions++
	}
}

// RecordError записывает метрики ошибки
func (m *Metrics) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ErrorCount++
	m.LastErrorTime = time.Now()

	errorType := "unknown"
	if err != nil {
		errorType = err.Error()
	}

	m.ErrorTypes[errorType]++
}

// GetMetricsSnapshot возвращает снимок текущих метрик
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errorTypes := make(map[string]int64, len(m.ErrorTypes))
	for k, v := range m.ErrorTypes {
		errorTypes[k] = v
	}

	return map[string]interface{}{
		"total_events":      m.TotalEvents,
		"committed_events":  m.CommittedEvents,
		"rejected_events":   m.RejectedEvents,
		"duplicate_events":  m.DuplicateEvents,
		"average_latency":   m.AverageLatency.String(),
		"edge_decisions":    m.EdgeDecisions,
		"cloud_decisions":   m.CloudDecisions,
		"flagged_decisions": m.FlaggedDecisions,
		"degraded_events":   m.DegradedEvents,
		"error_count":       m.ErrorCount,
		"last_error_time":   m.LastErrorTime,
		"error_types":       errorTypes,
	}
}

// ResetMetrics сбрасывает все метрики
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalEvents = 0
	m.CommittedEvents = 0
	m.RejectedEvents = 0
	m.DuplicateEvents = 0
	m.IntakeLatency = 0
	m.AverageLatency = 0
	m.EdgeDecisions = 0
	m.CloudDecisions = 0
	m.FlaggedDecisions = 0
	m.DegradedEvents = 0
	m.ErrorCount = 0
	m.ErrorTypes = make(map[string]int64)
}

package usecase

import "time"

// MetricsSummary represents aggregated classification insights.
type MetricsSummary struct {
	TotalRequests              int64   `json:"total_requests"`
	SuccessfulRequests         int64   `json:"successful_requests"`
	SuccessRate                float64 `json:"success_rate"`
	AverageScore               float64 `json:"average_score"`
	AverageProcessingLatencyMs float64 `json:"average_processing_latency_ms"`
}

type metricsCounter struct {
	total      int64
	success    int64
	scoreSum   float64
	latencySum time.Duration
}

func (uc *ClassificationUseCase) record(success bool, score float64, latency time.Duration) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.metrics.total++
	uc.metrics.latencySum += latency
	if success {
		uc.metrics.success++
		uc.metrics.scoreSum += score
	}
}

// GetMetricsSummary aggregates the analyses run since the process started.
func (uc *ClassificationUseCase) GetMetricsSummary() *MetricsSummary {
	uc.mu.Lock()
	m := uc.metrics
	uc.mu.Unlock()

	summary := &MetricsSummary{
		TotalRequests:      m.total,
		SuccessfulRequests: m.success,
	}
	if m.total > 0 {
		summary.SuccessRate = float64(m.success) / float64(m.total)
		summary.AverageProcessingLatencyMs = float64(m.latencySum.Microseconds()) / 1000 / float64(m.total)
	}
	if m.success > 0 {
		summary.AverageScore = m.scoreSum / float64(m.success)
	}
	return summary
}

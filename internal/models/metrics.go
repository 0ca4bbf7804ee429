package models

import "time"

// GatewayMetrics is a lightweight snapshot of gateway activity.
type GatewayMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	PollsApplied             uint64    `json:"polls_applied"`
	PollsDiscarded           uint64    `json:"polls_discarded"`
	ActiveSessions           int64     `json:"active_sessions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

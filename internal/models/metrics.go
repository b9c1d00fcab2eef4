package models

import "time"

// SystemMetrics is a point-in-time aggregate served by the stats endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	LineupsGenerated         uint64    `json:"lineups_generated"`
	EngineIterations         uint64    `json:"engine_iterations"`
	AverageGenerationMs      float64   `json:"average_generation_ms"`
	LastBestScore            float64   `json:"last_best_score"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

package models

import "time"

// Pagination describes a page of a list response.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// NewPagination computes TotalPages from the given page size and item count.
func NewPagination(page, pageSize int, totalItems int64) Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((totalItems + int64(pageSize) - 1) / int64(pageSize))
	}
	return Pagination{Page: page, PageSize: pageSize, TotalItems: totalItems, TotalPages: totalPages}
}

// SystemMetricsSnapshot is a point-in-time read of the service's own
// instrumentation, exposed for operational visibility alongside the raw
// Prometheus endpoint.
type SystemMetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	SolveRunsTotal           uint64    `json:"solve_runs_total"`
	SolveTimeoutsTotal       uint64    `json:"solve_timeouts_total"`
	AverageSolveDurationMs   float64   `json:"average_solve_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

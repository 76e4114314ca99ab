package database

import "context"

// MetricsDatabase stores the metrics recorded for every batch served
type MetricsDatabase interface {
	SaveBatchRequestMetric(ctx context.Context, metric *BatchRequestMetric) error
	ListBatchRequestMetricsWithPagination(ctx context.Context, cursor int64, limit int) ([]*BatchRequestMetric, int64, error)
	DeleteBatchRequestMetricsOlderThanNDays(ctx context.Context, n int64) error
	HealthCheck() error
}

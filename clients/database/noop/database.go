package noop

import (
	"context"

	"github.com/kava-labs/kava-batch-service/clients/database"
)

// Noop is a database client that does nothing,
// used when metric collection is disabled
type Noop struct{}

var _ database.MetricsDatabase = (*Noop)(nil)

func New() *Noop {
	return &Noop{}
}

func (e *Noop) SaveBatchRequestMetric(ctx context.Context, metric *database.BatchRequestMetric) error {
	return nil
}

func (e *Noop) ListBatchRequestMetricsWithPagination(ctx context.Context, cursor int64, limit int) ([]*database.BatchRequestMetric, int64, error) {
	return []*database.BatchRequestMetric{}, 0, nil
}

func (e *Noop) DeleteBatchRequestMetricsOlderThanNDays(ctx context.Context, n int64) error {
	return nil
}

func (e *Noop) HealthCheck() error {
	return nil
}

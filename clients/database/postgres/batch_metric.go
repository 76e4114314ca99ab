package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/kava-labs/kava-batch-service/clients/database"
)

const (
	BatchRequestMetricsTableName = "batch_request_metrics"
)

// BatchRequestMetric is the row stored for every batch
type BatchRequestMetric struct {
	bun.BaseModel `bun:"table:batch_request_metrics,alias:brm"`

	ID                          int64 `bun:",pk,autoincrement"`
	BatchID                     string
	Hostname                    string
	RequestIP                   string `bun:"request_ip"`
	UserAgent                   *string
	Parts                       int64
	FailedParts                 int64
	Groups                      int64 `bun:"nested_groups"`
	Aborted                     bool
	ResponseLatencyMilliseconds int64
	RequestTime                 time.Time
}

func (brm *BatchRequestMetric) toBatchRequestMetric() *database.BatchRequestMetric {
	return &database.BatchRequestMetric{
		ID:                          brm.ID,
		BatchID:                     brm.BatchID,
		Hostname:                    brm.Hostname,
		RequestIP:                   brm.RequestIP,
		UserAgent:                   brm.UserAgent,
		Parts:                       brm.Parts,
		FailedParts:                 brm.FailedParts,
		Groups:                      brm.Groups,
		Aborted:                     brm.Aborted,
		ResponseLatencyMilliseconds: brm.ResponseLatencyMilliseconds,
		RequestTime:                 brm.RequestTime,
	}
}

func convertBatchRequestMetric(metric *database.BatchRequestMetric) *BatchRequestMetric {
	return &BatchRequestMetric{
		ID:                          metric.ID,
		BatchID:                     metric.BatchID,
		Hostname:                    metric.Hostname,
		RequestIP:                   metric.RequestIP,
		UserAgent:                   metric.UserAgent,
		Parts:                       metric.Parts,
		FailedParts:                 metric.FailedParts,
		Groups:                      metric.Groups,
		Aborted:                     metric.Aborted,
		ResponseLatencyMilliseconds: metric.ResponseLatencyMilliseconds,
		RequestTime:                 metric.RequestTime,
	}
}

// SaveBatchRequestMetric saves metric to the database, returning error (if any)
func (c *Client) SaveBatchRequestMetric(ctx context.Context, metric *database.BatchRequestMetric) error {
	row := convertBatchRequestMetric(metric)

	_, err := c.db.NewInsert().Model(row).Exec(ctx)
	if err != nil {
		return err
	}

	metric.ID = row.ID

	return nil
}

// ListBatchRequestMetricsWithPagination returns a page of max
// `limit` BatchRequestMetrics from the offset specified by `cursor`
// error (if any) along with a cursor to use to fetch the next page
// if the cursor is 0 no more pages exists.
func (c *Client) ListBatchRequestMetricsWithPagination(ctx context.Context, cursor int64, limit int) ([]*database.BatchRequestMetric, int64, error) {
	var rows []BatchRequestMetric
	var nextCursor int64

	err := c.db.NewSelect().Model(&rows).Where("id > ?", cursor).Order("id ASC").Limit(limit).Scan(ctx)
	if err != nil {
		return nil, 0, err
	}

	// a full page may be followed by another
	if len(rows) == limit && limit > 0 {
		nextCursor = rows[len(rows)-1].ID
	}

	metrics := make([]*database.BatchRequestMetric, 0, len(rows))
	for i := range rows {
		metrics = append(metrics, rows[i].toBatchRequestMetric())
	}

	return metrics, nextCursor, nil
}

// DeleteBatchRequestMetricsOlderThanNDays deletes all batch request metrics
// older than the specified days, returning error (if any).
// Used during pruning process.
func (c *Client) DeleteBatchRequestMetricsOlderThanNDays(ctx context.Context, n int64) error {
	_, err := c.db.NewDelete().
		Model((*BatchRequestMetric)(nil)).
		Where(fmt.Sprintf("request_time < now() - interval '%d' day", n)).
		Exec(ctx)

	return err
}

package service

import (
	"time"

	"github.com/kava-labs/kava-batch-service/clients/database"
)

// BatchMetricsResponse wraps values
// returned by calls to /status/batches
type BatchMetricsResponse struct {
	Metrics    []BatchMetric `json:"metrics"`
	NextCursor int64         `json:"next_cursor"` // id to pass as cursor for the next page, zero when there is none
}

// BatchMetric is the json representation of the metric for a single batch
type BatchMetric struct {
	ID                          int64     `json:"id"`
	BatchID                     string    `json:"batch_id"`
	Hostname                    string    `json:"hostname"`
	RequestIP                   string    `json:"request_ip"`
	UserAgent                   string    `json:"user_agent,omitempty"`
	Parts                       int64     `json:"parts"`
	FailedParts                 int64     `json:"failed_parts"`
	Groups                      int64     `json:"groups"`
	Aborted                     bool      `json:"aborted"`
	ResponseLatencyMilliseconds int64     `json:"response_latency_milliseconds"`
	RequestTime                 time.Time `json:"request_time"`
}

func newBatchMetric(metric *database.BatchRequestMetric) BatchMetric {
	response := BatchMetric{
		ID:                          metric.ID,
		BatchID:                     metric.BatchID,
		Hostname:                    metric.Hostname,
		RequestIP:                   metric.RequestIP,
		Parts:                       metric.Parts,
		FailedParts:                 metric.FailedParts,
		Groups:                      metric.Groups,
		Aborted:                     metric.Aborted,
		ResponseLatencyMilliseconds: metric.ResponseLatencyMilliseconds,
		RequestTime:                 metric.RequestTime,
	}

	if metric.UserAgent != nil {
		response.UserAgent = *metric.UserAgent
	}

	return response
}

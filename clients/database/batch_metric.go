package database

import (
	"time"
)

// BatchRequestMetric contains request metrics for
// a single batch served by the batch service
type BatchRequestMetric struct {
	ID                          int64
	BatchID                     string
	Hostname                    string
	RequestIP                   string
	UserAgent                   *string
	Parts                       int64
	FailedParts                 int64
	Groups                      int64
	Aborted                     bool
	ResponseLatencyMilliseconds int64
	RequestTime                 time.Time
}

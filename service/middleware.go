package service

import (
	"context"
	"net/http"
	"time"

	"github.com/urfave/negroni"

	"github.com/kava-labs/kava-batch-service/clients/database"
	"github.com/kava-labs/kava-batch-service/logging"
	"github.com/kava-labs/kava-batch-service/service/batchmdw"
)

// createRequestLoggingMiddleware returns a handler that logs every request
// with the status and size of its response and how long it took to serve.
// The wrapped writer keeps flushing so batch responses still stream.
func createRequestLoggingMiddleware(h http.Handler, serviceLogger *logging.ServiceLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestStart := time.Now()

		lrw := negroni.NewResponseWriter(w)

		h.ServeHTTP(lrw, r)

		serviceLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", lrw.Status()).
			Int("size", lrw.Size()).
			Str("batch_id", lrw.Header().Get(batchmdw.BatchIDHeaderKey)).
			Dur("latency", time.Since(requestStart)).
			Msg("served request")
	}
}

// createBatchMetricRecorder returns the callback saving the metric for every
// completed batch, the metric is saved out of band of the request-response
// cycle so a slow database never delays the batch response
func createBatchMetricRecorder(service *BatchService, enabled bool) func(batchmdw.Summary) {
	if !enabled {
		return nil
	}

	return func(summary batchmdw.Summary) {
		metric := newBatchRequestMetric(summary)

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), metricSaveTimeout)
			defer cancel()

			if err := service.Database.SaveBatchRequestMetric(ctx, metric); err != nil {
				service.Error().
					Err(err).
					Str("batch_id", metric.BatchID).
					Msg("error saving batch request metric")
			}
		}()
	}
}

func newBatchRequestMetric(summary batchmdw.Summary) *database.BatchRequestMetric {
	metric := &database.BatchRequestMetric{
		BatchID:                     summary.BatchID,
		Hostname:                    summary.Hostname,
		RequestIP:                   summary.RequestIP,
		Parts:                       int64(summary.Parts),
		FailedParts:                 int64(summary.FailedParts),
		Groups:                      int64(summary.Groups),
		Aborted:                     summary.Aborted,
		ResponseLatencyMilliseconds: summary.Duration.Milliseconds(),
		RequestTime:                 summary.RequestTime,
	}

	if summary.UserAgent != "" {
		userAgent := summary.UserAgent
		metric.UserAgent = &userAgent
	}

	return metric
}

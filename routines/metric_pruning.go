// package routines provides configuration and logic
// for running background routines such as metric pruning
// for removing historical batch request metrics
package routines

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kava-labs/kava-batch-service/clients/database"
	"github.com/kava-labs/kava-batch-service/logging"
)

// MetricPruningRoutineConfig wraps values used
// for creating a new metric pruning routine
type MetricPruningRoutineConfig struct {
	Interval                   time.Duration
	StartDelay                 time.Duration
	MaxBatchMetricsHistoryDays int64
	Database                   database.MetricsDatabase
	Logger                     *logging.ServiceLogger
}

// MetricPruningRoutine can be used to
// run a background routine on a configurable interval
// to prune historical batch request metrics
type MetricPruningRoutine struct {
	id                         string
	interval                   time.Duration
	startDelay                 time.Duration
	maxBatchMetricsHistoryDays int64
	db                         database.MetricsDatabase
	*logging.ServiceLogger
}

// Run runs the metric pruning routine until ctx is done, returning error (if any)
// from starting the routine and an error channel which any errors
// encountered during running will be sent on. The channel is closed
// when the routine stops.
func (mpr *MetricPruningRoutine) Run(ctx context.Context) (<-chan error, error) {
	if mpr.interval <= 0 {
		return nil, fmt.Errorf("invalid pruning interval %s", mpr.interval)
	}

	errorChannel := make(chan error, 1)

	go func() {
		defer close(errorChannel)

		select {
		case <-ctx.Done():
			return
		case <-time.After(mpr.startDelay):
		}

		mpr.prune(ctx, errorChannel)

		ticker := time.NewTicker(mpr.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case tick := <-ticker.C:
				mpr.Trace().Msg(fmt.Sprintf("%s tick at %+v", mpr.id, tick))

				mpr.prune(ctx, errorChannel)
			}
		}
	}()

	return errorChannel, nil
}

func (mpr *MetricPruningRoutine) prune(ctx context.Context, errorChannel chan<- error) {
	err := mpr.db.DeleteBatchRequestMetricsOlderThanNDays(ctx, mpr.maxBatchMetricsHistoryDays)
	if err == nil {
		mpr.Debug().Str("routine", mpr.id).Msg("pruned batch request metrics")
		return
	}

	select {
	case errorChannel <- err:
	default:
		// nobody has read the last error yet
		mpr.Error().Err(err).Str("routine", mpr.id).Msg("error pruning batch request metrics")
	}
}

// NewMetricPruningRoutine creates a new metric pruning routine
// using the provided config, returning the routine and error (if any)
func NewMetricPruningRoutine(config MetricPruningRoutineConfig) (*MetricPruningRoutine, error) {
	if config.Database == nil {
		return nil, fmt.Errorf("metric pruning routine requires a database")
	}

	return &MetricPruningRoutine{
		id:                         uuid.New().String(),
		interval:                   config.Interval,
		startDelay:                 config.StartDelay,
		maxBatchMetricsHistoryDays: config.MaxBatchMetricsHistoryDays,
		db:                         config.Database,
		ServiceLogger:              config.Logger,
	}, nil
}

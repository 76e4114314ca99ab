// package main reads & validates configuration for the batch service
// and if the config is valid starts and monitors an instance of the batch service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kava-labs/kava-batch-service/config"
	"github.com/kava-labs/kava-batch-service/logging"
	"github.com/kava-labs/kava-batch-service/routines"
	"github.com/kava-labs/kava-batch-service/service"
)

const shutdownTimeout = 30 * time.Second

var (
	serviceConfig config.Config
	serviceLogger logging.ServiceLogger
)

func init() {
	serviceConfig = config.ReadConfig()

	err := config.Validate(serviceConfig)

	if err != nil {
		panic(err)
	}

	serviceLogger, err = logging.New(serviceConfig.LogLevel)

	if err != nil {
		panic(err)
	}
}

func startMetricPruningRoutine(ctx context.Context, batchService *service.BatchService) (<-chan error, error) {
	routine, err := routines.NewMetricPruningRoutine(routines.MetricPruningRoutineConfig{
		Interval:                   serviceConfig.MetricPruningRoutineInterval,
		StartDelay:                 serviceConfig.MetricPruningRoutineDelayFirstRun,
		MaxBatchMetricsHistoryDays: int64(serviceConfig.MetricPruningMaxBatchMetricsHistoryDays),
		Database:                   batchService.Database,
		Logger:                     &serviceLogger,
	})
	if err != nil {
		return nil, err
	}

	return routine.Run(ctx)
}

func main() {
	serviceLogger.Debug().Msg(fmt.Sprintf("initial config: %+v", serviceConfig))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batchService, err := service.New(ctx, serviceConfig, &serviceLogger)

	if err != nil {
		serviceLogger.Panic().Msg(fmt.Sprintf("%v", err))
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		serviceLogger.Info().Str("port", serviceConfig.BatchServicePort).Msg("batch service listening")
		return batchService.Run()
	})

	group.Go(func() error {
		<-groupCtx.Done()

		serviceLogger.Info().Msg("shutting down batch service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return batchService.Shutdown(shutdownCtx)
	})

	if serviceConfig.MetricPruningEnabled {
		errs, err := startMetricPruningRoutine(groupCtx, &batchService)
		if err != nil {
			serviceLogger.Panic().Msg(fmt.Sprintf("error %s starting metric pruning routine", err))
		}

		group.Go(func() error {
			for err := range errs {
				serviceLogger.Error().Err(err).Msg("metric pruning routine encountered error")
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		serviceLogger.Error().Err(err).Msg("batch service stopped")
		os.Exit(1)
	}
}

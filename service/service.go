// package service provides functions and methods
// for creating and running the api of the batch service
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kava-labs/kava-batch-service/clients/database"
	"github.com/kava-labs/kava-batch-service/clients/database/noop"
	"github.com/kava-labs/kava-batch-service/clients/database/postgres"
	"github.com/kava-labs/kava-batch-service/clients/database/postgres/migrations"
	"github.com/kava-labs/kava-batch-service/clients/store"
	"github.com/kava-labs/kava-batch-service/config"
	"github.com/kava-labs/kava-batch-service/logging"
	"github.com/kava-labs/kava-batch-service/service/batchmdw"
	"github.com/kava-labs/kava-batch-service/service/resources"
)

const (
	HealthcheckPath   = "/healthcheck"
	ServicecheckPath  = "/servicecheck"
	BatchStatusPath   = "/status/batches"
	BatchPathSuffix   = "/$batch"
	metricSaveTimeout = 10 * time.Second
)

// BatchService represents an instance of the batch service API
type BatchService struct {
	Store    store.Store
	Database database.MetricsDatabase

	httpServer *http.Server
	// closers are released in reverse order on shutdown
	closers []func() error
	*logging.ServiceLogger
}

// New returns a new BatchService with the specified config and error (if any)
func New(ctx context.Context, config config.Config, serviceLogger *logging.ServiceLogger) (BatchService, error) {
	service := BatchService{
		ServiceLogger: serviceLogger,
	}

	var dbClient *postgres.Client
	if config.UsesDatabase() {
		var err error
		dbClient, err = createDatabaseClient(ctx, config, serviceLogger)
		if err != nil {
			return BatchService{}, err
		}
		service.closers = append(service.closers, dbClient.Close)
	}

	if dbClient != nil && (config.MetricCollectionEnabled || config.MetricPruningEnabled) {
		service.Database = dbClient
	} else {
		service.Database = noop.New()
	}

	resourceStore, err := createResourceStore(ctx, config, dbClient, serviceLogger)
	if err != nil {
		service.close()
		return BatchService{}, err
	}
	service.Store = resourceStore
	if closer, ok := resourceStore.(interface{ Close() error }); ok {
		service.closers = append(service.closers, closer.Close)
	}

	engine, engineHandler, err := createEngine(config, resourceStore, serviceLogger)
	if err != nil {
		service.close()
		return BatchService{}, err
	}

	rootPath := strings.TrimSuffix(config.BatchServiceRootPath, "/")

	batchHandler := batchmdw.CreateBatchProcessingHandler(&batchmdw.BatchMiddlewareConfig{
		ServiceLogger:    serviceLogger,
		Engine:           engine,
		MaxNestingDepth:  config.BatchMaxNestingDepth,
		MaxBodySizeBytes: config.BatchMaxBodySizeBytes,
		Timeout:          config.BatchTimeout,
		OnComplete:       createBatchMetricRecorder(&service, config.MetricCollectionEnabled),
	})

	// create an http router for registering handlers for a given route
	mux := http.NewServeMux()

	mux.Handle(rootPath+BatchPathSuffix, batchHandler)
	mux.Handle(rootPath+"/", engineHandler)

	mux.HandleFunc(HealthcheckPath, createHealthcheckHandler(&service))
	mux.HandleFunc(ServicecheckPath, createServicecheckHandler(&service))
	mux.HandleFunc(BatchStatusPath, createBatchStatusHandler(&service))

	// create an http server for the caller to start at their own discretion
	service.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%s", config.BatchServicePort),
		Handler: createRequestLoggingMiddleware(mux, serviceLogger),
	}

	return service, nil
}

func createDatabaseClient(ctx context.Context, config config.Config, logger *logging.ServiceLogger) (*postgres.Client, error) {
	client, err := postgres.NewClient(ctx, postgres.DatabaseConfig{
		DatabaseName:                     config.DatabaseName,
		DatabaseEndpointURL:              config.DatabaseEndpointURL,
		DatabaseUsername:                 config.DatabaseUserName,
		DatabasePassword:                 config.DatabasePassword,
		ReadTimeoutSeconds:               config.DatabaseReadTimeoutSeconds,
		DatabaseMaxIdleConnections:       config.DatabaseMaxIdleConnections,
		DatabaseConnectionMaxIdleSeconds: config.DatabaseConnectionMaxIdleSeconds,
		DatabaseMaxOpenConnections:       config.DatabaseMaxOpenConnections,
		SSLEnabled:                       config.DatabaseSSLEnabled,
		QueryLoggingEnabled:              config.DatabaseQueryLoggingEnabled,
		ConnectMaxElapsed:                config.DependencyConnectMaxElapsed,
		Logger:                           logger,
	})
	if err != nil {
		return nil, err
	}

	if config.RunDatabaseMigrations {
		// wait for migrations to run before serving batches
		// so metrics and resources have their tables
		migrated, err := client.Migrate(ctx, migrations.Migrations)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("error %s running migrations", err)
		}

		logger.Info().Msg(fmt.Sprintf("run migrations %+v", migrated))
	}

	return client, nil
}

func createResourceStore(ctx context.Context, serviceConfig config.Config, dbClient *postgres.Client, logger *logging.ServiceLogger) (store.Store, error) {
	switch serviceConfig.ResourceStoreBackend {
	case "", config.ResourceStoreBackendMemory:
		return store.NewInMemoryStore(), nil
	case config.ResourceStoreBackendRedis:
		return store.NewRedisStore(ctx, &store.RedisConfig{
			Address:           serviceConfig.RedisEndpointURL,
			Password:          serviceConfig.RedisPassword,
			DB:                serviceConfig.RedisDB,
			KeyPrefix:         serviceConfig.RedisKeyPrefix,
			ConnectMaxElapsed: serviceConfig.DependencyConnectMaxElapsed,
		}, logger)
	case config.ResourceStoreBackendPostgres:
		if dbClient == nil {
			return nil, postgres.ErrNoDatabase
		}
		return store.NewPostgresStore(dbClient.DB(), logger), nil
	}

	return nil, fmt.Errorf("unknown resource store backend %s", serviceConfig.ResourceStoreBackend)
}

// createEngine returns the engine executing the parts of every batch
// and the handler serving the same resources outside of a batch
func createEngine(config config.Config, resourceStore store.Store, logger *logging.ServiceLogger) (batchmdw.Engine, http.Handler, error) {
	if config.BatchBackendURL == "" {
		engine := resources.New(resourceStore, config.BatchServiceRootPath, logger)
		return engine, engine, nil
	}

	backendURL, err := url.Parse(config.BatchBackendURL)
	if err != nil {
		return nil, nil, fmt.Errorf("error %s parsing batch backend url %s", err, config.BatchBackendURL)
	}

	proxy := NewReverseProxy(backendURL, logger)

	return batchmdw.NewHandlerEngine(proxy), proxy, nil
}

// Run runs the batch service, returning error (if any) in the event
// the batch service stops
func (s *BatchService) Run() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting new requests, waits for in flight batches
// to complete and releases the connections to the service dependencies
func (s *BatchService) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	return errors.Join(err, s.close())
}

// Handler returns the root handler of the service
func (s *BatchService) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *BatchService) close() error {
	var combinedErrors error

	for i := len(s.closers) - 1; i >= 0; i-- {
		combinedErrors = errors.Join(combinedErrors, s.closers[i]())
	}
	s.closers = nil

	return combinedErrors
}

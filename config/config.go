// package config provides functions and values
// for reading and validating kava batch service configuration
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	LogLevel                                string
	BatchServicePort                        string
	BatchServiceRootPath                    string
	BatchMaxNestingDepth                    int
	BatchMaxBodySizeBytes                   int64
	BatchTimeout                            time.Duration
	BatchBackendURL                         string
	ResourceStoreBackend                    string
	RedisEndpointURL                        string
	RedisPassword                           string
	RedisDB                                 int
	RedisKeyPrefix                          string
	DatabaseName                            string
	DatabaseEndpointURL                     string
	DatabaseUserName                        string
	DatabasePassword                        string
	DatabaseSSLEnabled                      bool
	DatabaseQueryLoggingEnabled             bool
	RunDatabaseMigrations                   bool
	DatabaseReadTimeoutSeconds              int64
	DatabaseMaxIdleConnections              int64
	DatabaseConnectionMaxIdleSeconds        int64
	DatabaseMaxOpenConnections              int64
	MetricCollectionEnabled                 bool
	MetricPruningEnabled                    bool
	MetricPruningRoutineInterval            time.Duration
	MetricPruningRoutineDelayFirstRun       time.Duration
	MetricPruningMaxBatchMetricsHistoryDays int
	DependencyConnectMaxElapsed             time.Duration
}

const (
	LOG_LEVEL_ENVIRONMENT_KEY                                     = "LOG_LEVEL"
	DEFAULT_LOG_LEVEL                                             = "INFO"
	BATCH_SERVICE_PORT_ENVIRONMENT_KEY                            = "BATCH_SERVICE_PORT"
	DEFAULT_BATCH_SERVICE_PORT                                    = "7777"
	BATCH_SERVICE_ROOT_PATH_ENVIRONMENT_KEY                       = "BATCH_SERVICE_ROOT_PATH"
	DEFAULT_BATCH_SERVICE_ROOT_PATH                               = "/odata"
	BATCH_MAX_NESTING_DEPTH_ENVIRONMENT_KEY                       = "BATCH_MAX_NESTING_DEPTH"
	DEFAULT_BATCH_MAX_NESTING_DEPTH                               = 4
	BATCH_MAX_BODY_SIZE_BYTES_ENVIRONMENT_KEY                     = "BATCH_MAX_BODY_SIZE_BYTES"
	DEFAULT_BATCH_MAX_BODY_SIZE_BYTES                             = 10 << 20
	BATCH_TIMEOUT_ENVIRONMENT_KEY                                 = "BATCH_TIMEOUT"
	DEFAULT_BATCH_TIMEOUT                                         = 0
	BATCH_BACKEND_URL_ENVIRONMENT_KEY                             = "BATCH_BACKEND_URL"
	RESOURCE_STORE_BACKEND_ENVIRONMENT_KEY                        = "RESOURCE_STORE_BACKEND"
	DEFAULT_RESOURCE_STORE_BACKEND                                = ResourceStoreBackendMemory
	REDIS_ENDPOINT_URL_ENVIRONMENT_KEY                            = "REDIS_ENDPOINT_URL"
	REDIS_PASSWORD_ENVIRONMENT_KEY                                = "REDIS_PASSWORD"
	REDIS_DB_ENVIRONMENT_KEY                                      = "REDIS_DB"
	REDIS_KEY_PREFIX_ENVIRONMENT_KEY                              = "REDIS_KEY_PREFIX"
	DEFAULT_REDIS_KEY_PREFIX                                      = "batch"
	DATABASE_NAME_ENVIRONMENT_KEY                                 = "DATABASE_NAME"
	DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY                         = "DATABASE_ENDPOINT_URL"
	DATABASE_USERNAME_ENVIRONMENT_KEY                             = "DATABASE_USERNAME"
	DATABASE_PASSWORD_ENVIRONMENT_KEY                             = "DATABASE_PASSWORD"
	DATABASE_SSL_ENABLED_ENVIRONMENT_KEY                          = "DATABASE_SSL_ENABLED"
	DATABASE_QUERY_LOGGING_ENABLED_ENVIRONMENT_KEY                = "DATABASE_QUERY_LOGGING_ENABLED"
	RUN_DATABASE_MIGRATIONS_ENVIRONMENT_KEY                       = "RUN_DATABASE_MIGRATIONS"
	DATABASE_READ_TIMEOUT_SECONDS_ENVIRONMENT_KEY                 = "DATABASE_READ_TIMEOUT_SECONDS"
	DEFAULT_DATABASE_READ_TIMEOUT_SECONDS                         = 60
	DATABASE_MAX_IDLE_CONNECTIONS_ENVIRONMENT_KEY                 = "DATABASE_MAX_IDLE_CONNECTIONS"
	DEFAULT_DATABASE_MAX_IDLE_CONNECTIONS                         = 5
	DATABASE_CONNECTION_MAX_IDLE_SECONDS_ENVIRONMENT_KEY          = "DATABASE_CONNECTION_MAX_IDLE_SECONDS"
	DEFAULT_DATABASE_CONNECTION_MAX_IDLE_SECONDS                  = 5
	DATABASE_MAX_OPEN_CONNECTIONS_ENVIRONMENT_KEY                 = "DATABASE_MAX_OPEN_CONNECTIONS"
	DEFAULT_DATABASE_MAX_OPEN_CONNECTIONS                         = 20
	METRIC_COLLECTION_ENABLED_ENVIRONMENT_KEY                     = "METRIC_COLLECTION_ENABLED"
	METRIC_PRUNING_ENABLED_ENVIRONMENT_KEY                        = "METRIC_PRUNING_ENABLED"
	METRIC_PRUNING_ROUTINE_INTERVAL_SECONDS_ENVIRONMENT_KEY       = "METRIC_PRUNING_ROUTINE_INTERVAL_SECONDS"
	DEFAULT_METRIC_PRUNING_ROUTINE_INTERVAL_SECONDS               = 86400
	METRIC_PRUNING_ROUTINE_DELAY_FIRST_RUN_SECONDS_ENVIRONMENT_KEY = "METRIC_PRUNING_ROUTINE_DELAY_FIRST_RUN_SECONDS"
	DEFAULT_METRIC_PRUNING_ROUTINE_DELAY_FIRST_RUN_SECONDS        = 10
	METRIC_PRUNING_MAX_BATCH_METRICS_HISTORY_DAYS_ENVIRONMENT_KEY = "METRIC_PRUNING_MAX_BATCH_METRICS_HISTORY_DAYS"
	DEFAULT_METRIC_PRUNING_MAX_BATCH_METRICS_HISTORY_DAYS         = 45
	DEPENDENCY_CONNECT_MAX_ELAPSED_ENVIRONMENT_KEY                = "DEPENDENCY_CONNECT_MAX_ELAPSED"
	DEFAULT_DEPENDENCY_CONNECT_MAX_ELAPSED                        = 30 * time.Second
)

const (
	ResourceStoreBackendMemory   = "memory"
	ResourceStoreBackendRedis    = "redis"
	ResourceStoreBackendPostgres = "postgres"
)

// EnvOrDefault fetches an environment variable value, or if not set returns the fallback value
func EnvOrDefault(key string, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// EnvOrDefaultInt fetches an int environment variable value, or if not set
// or not an int returns the fallback value
func EnvOrDefaultInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return fallback
}

// EnvOrDefaultInt64 fetches an int64 environment variable value, or if not set
// or not an int64 returns the fallback value
func EnvOrDefaultInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

// EnvOrDefaultBool fetches a bool environment variable value, or if not set
// or not a bool returns the fallback value
func EnvOrDefaultBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return fallback
}

// EnvOrDefaultDuration fetches a duration environment variable value (e.g. `30s`),
// or if not set or not a duration returns the fallback value
func EnvOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return fallback
}

// ReadConfig attempts to parse service config from environment values
// the returned config may be invalid and should be validated via the `Validate`
// function of the Config package before use
func ReadConfig() Config {
	return Config{
		LogLevel:                                EnvOrDefault(LOG_LEVEL_ENVIRONMENT_KEY, DEFAULT_LOG_LEVEL),
		BatchServicePort:                        EnvOrDefault(BATCH_SERVICE_PORT_ENVIRONMENT_KEY, DEFAULT_BATCH_SERVICE_PORT),
		BatchServiceRootPath:                    EnvOrDefault(BATCH_SERVICE_ROOT_PATH_ENVIRONMENT_KEY, DEFAULT_BATCH_SERVICE_ROOT_PATH),
		BatchMaxNestingDepth:                    EnvOrDefaultInt(BATCH_MAX_NESTING_DEPTH_ENVIRONMENT_KEY, DEFAULT_BATCH_MAX_NESTING_DEPTH),
		BatchMaxBodySizeBytes:                   EnvOrDefaultInt64(BATCH_MAX_BODY_SIZE_BYTES_ENVIRONMENT_KEY, DEFAULT_BATCH_MAX_BODY_SIZE_BYTES),
		BatchTimeout:                            EnvOrDefaultDuration(BATCH_TIMEOUT_ENVIRONMENT_KEY, DEFAULT_BATCH_TIMEOUT),
		BatchBackendURL:                         EnvOrDefault(BATCH_BACKEND_URL_ENVIRONMENT_KEY, ""),
		ResourceStoreBackend:                    EnvOrDefault(RESOURCE_STORE_BACKEND_ENVIRONMENT_KEY, DEFAULT_RESOURCE_STORE_BACKEND),
		RedisEndpointURL:                        EnvOrDefault(REDIS_ENDPOINT_URL_ENVIRONMENT_KEY, ""),
		RedisPassword:                           EnvOrDefault(REDIS_PASSWORD_ENVIRONMENT_KEY, ""),
		RedisDB:                                 EnvOrDefaultInt(REDIS_DB_ENVIRONMENT_KEY, 0),
		RedisKeyPrefix:                          EnvOrDefault(REDIS_KEY_PREFIX_ENVIRONMENT_KEY, DEFAULT_REDIS_KEY_PREFIX),
		DatabaseName:                            EnvOrDefault(DATABASE_NAME_ENVIRONMENT_KEY, ""),
		DatabaseEndpointURL:                     EnvOrDefault(DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY, ""),
		DatabaseUserName:                        EnvOrDefault(DATABASE_USERNAME_ENVIRONMENT_KEY, ""),
		DatabasePassword:                        EnvOrDefault(DATABASE_PASSWORD_ENVIRONMENT_KEY, ""),
		DatabaseSSLEnabled:                      EnvOrDefaultBool(DATABASE_SSL_ENABLED_ENVIRONMENT_KEY, false),
		DatabaseQueryLoggingEnabled:             EnvOrDefaultBool(DATABASE_QUERY_LOGGING_ENABLED_ENVIRONMENT_KEY, false),
		RunDatabaseMigrations:                   EnvOrDefaultBool(RUN_DATABASE_MIGRATIONS_ENVIRONMENT_KEY, true),
		DatabaseReadTimeoutSeconds:              EnvOrDefaultInt64(DATABASE_READ_TIMEOUT_SECONDS_ENVIRONMENT_KEY, DEFAULT_DATABASE_READ_TIMEOUT_SECONDS),
		DatabaseMaxIdleConnections:              EnvOrDefaultInt64(DATABASE_MAX_IDLE_CONNECTIONS_ENVIRONMENT_KEY, DEFAULT_DATABASE_MAX_IDLE_CONNECTIONS),
		DatabaseConnectionMaxIdleSeconds:        EnvOrDefaultInt64(DATABASE_CONNECTION_MAX_IDLE_SECONDS_ENVIRONMENT_KEY, DEFAULT_DATABASE_CONNECTION_MAX_IDLE_SECONDS),
		DatabaseMaxOpenConnections:              EnvOrDefaultInt64(DATABASE_MAX_OPEN_CONNECTIONS_ENVIRONMENT_KEY, DEFAULT_DATABASE_MAX_OPEN_CONNECTIONS),
		MetricCollectionEnabled:                 EnvOrDefaultBool(METRIC_COLLECTION_ENABLED_ENVIRONMENT_KEY, false),
		MetricPruningEnabled:                    EnvOrDefaultBool(METRIC_PRUNING_ENABLED_ENVIRONMENT_KEY, false),
		MetricPruningRoutineInterval:            time.Duration(EnvOrDefaultInt(METRIC_PRUNING_ROUTINE_INTERVAL_SECONDS_ENVIRONMENT_KEY, DEFAULT_METRIC_PRUNING_ROUTINE_INTERVAL_SECONDS)) * time.Second,
		MetricPruningRoutineDelayFirstRun:       time.Duration(EnvOrDefaultInt(METRIC_PRUNING_ROUTINE_DELAY_FIRST_RUN_SECONDS_ENVIRONMENT_KEY, DEFAULT_METRIC_PRUNING_ROUTINE_DELAY_FIRST_RUN_SECONDS)) * time.Second,
		MetricPruningMaxBatchMetricsHistoryDays: EnvOrDefaultInt(METRIC_PRUNING_MAX_BATCH_METRICS_HISTORY_DAYS_ENVIRONMENT_KEY, DEFAULT_METRIC_PRUNING_MAX_BATCH_METRICS_HISTORY_DAYS),
		DependencyConnectMaxElapsed:             EnvOrDefaultDuration(DEPENDENCY_CONNECT_MAX_ELAPSED_ENVIRONMENT_KEY, DEFAULT_DEPENDENCY_CONNECT_MAX_ELAPSED),
	}
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	ValidLogLevels             = [4]string{"TRACE", "DEBUG", "INFO", "ERROR"}
	ValidResourceStoreBackends = [3]string{ResourceStoreBackendMemory, ResourceStoreBackendRedis, ResourceStoreBackendPostgres}
	// deeper nesting than this is never needed to express a batch
	// and bounds the recursion done when parsing one
	MaxBatchNestingDepth = 16
)

// Validate validates the provided config
// returning a list of errors that can be unwrapped with `errors.Unwrap`
// or nil if the config is valid
func Validate(config Config) error {
	var validLogLevel bool
	var allErrs error

	for _, validLevel := range ValidLogLevels {
		if config.LogLevel == validLevel {
			validLogLevel = true
			break
		}
	}

	if !validLogLevel {
		allErrs = fmt.Errorf("invalid %s specified %s, supported values are %v", LOG_LEVEL_ENVIRONMENT_KEY, config.LogLevel, ValidLogLevels)
	}

	_, err := strconv.Atoi(config.BatchServicePort)

	if err != nil {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s", BATCH_SERVICE_PORT_ENVIRONMENT_KEY, config.BatchServicePort))
	}

	if !strings.HasPrefix(config.BatchServiceRootPath, "/") {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must start with /", BATCH_SERVICE_ROOT_PATH_ENVIRONMENT_KEY, config.BatchServiceRootPath))
	}

	if config.BatchMaxNestingDepth < 1 || config.BatchMaxNestingDepth > MaxBatchNestingDepth {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %d, must be between 1 and %d", BATCH_MAX_NESTING_DEPTH_ENVIRONMENT_KEY, config.BatchMaxNestingDepth, MaxBatchNestingDepth))
	}

	if config.BatchMaxBodySizeBytes <= 0 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %d, must be greater than zero", BATCH_MAX_BODY_SIZE_BYTES_ENVIRONMENT_KEY, config.BatchMaxBodySizeBytes))
	}

	if config.BatchTimeout < 0 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be negative", BATCH_TIMEOUT_ENVIRONMENT_KEY, config.BatchTimeout))
	}

	// zero would retry connecting to a dependency forever
	if config.DependencyConnectMaxElapsed <= 0 {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must be greater than zero", DEPENDENCY_CONNECT_MAX_ELAPSED_ENVIRONMENT_KEY, config.DependencyConnectMaxElapsed))
	}

	if config.BatchBackendURL != "" {
		backendURL, err := url.Parse(config.BatchBackendURL)
		if err != nil || backendURL.Scheme == "" || backendURL.Host == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must be an absolute url", BATCH_BACKEND_URL_ENVIRONMENT_KEY, config.BatchBackendURL))
		}
	}

	var validStoreBackend bool
	for _, backend := range ValidResourceStoreBackends {
		if config.ResourceStoreBackend == backend {
			validStoreBackend = true
			break
		}
	}

	if !validStoreBackend {
		allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, supported values are %v", RESOURCE_STORE_BACKEND_ENVIRONMENT_KEY, config.ResourceStoreBackend, ValidResourceStoreBackends))
	}

	if config.ResourceStoreBackend == ResourceStoreBackendRedis {
		if config.RedisEndpointURL == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be empty", REDIS_ENDPOINT_URL_ENVIRONMENT_KEY, config.RedisEndpointURL))
		}
		if strings.Contains(config.RedisKeyPrefix, ":") {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not contain colon symbol", REDIS_KEY_PREFIX_ENVIRONMENT_KEY, config.RedisKeyPrefix))
		}
		if config.RedisKeyPrefix == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be empty", REDIS_KEY_PREFIX_ENVIRONMENT_KEY, config.RedisKeyPrefix))
		}
	}

	if config.UsesDatabase() {
		if config.DatabaseEndpointURL == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be empty", DATABASE_ENDPOINT_URL_ENVIRONMENT_KEY, config.DatabaseEndpointURL))
		}
		if config.DatabaseName == "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must not be empty", DATABASE_NAME_ENVIRONMENT_KEY, config.DatabaseName))
		}
	}

	if config.MetricPruningEnabled {
		if config.MetricPruningRoutineInterval <= 0 {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %s, must be greater than zero", METRIC_PRUNING_ROUTINE_INTERVAL_SECONDS_ENVIRONMENT_KEY, config.MetricPruningRoutineInterval))
		}
		if config.MetricPruningMaxBatchMetricsHistoryDays < 1 {
			allErrs = errors.Join(allErrs, fmt.Errorf("invalid %s specified %d, must be at least 1", METRIC_PRUNING_MAX_BATCH_METRICS_HISTORY_DAYS_ENVIRONMENT_KEY, config.MetricPruningMaxBatchMetricsHistoryDays))
		}
	}

	return allErrs
}

// UsesDatabase reports whether the service needs a postgres connection
func (config Config) UsesDatabase() bool {
	return config.MetricCollectionEnabled || config.MetricPruningEnabled || config.ResourceStoreBackend == ResourceStoreBackendPostgres
}

package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

const (
	DefaultBatchMetricsPageSize = 100
	MaxBatchMetricsPageSize     = 1000
)

// createHealthcheckHandler creates a health check handler function that
// will respond 200 ok if the batch service is able to connect to
// it's dependencies and functioning as expected
func createHealthcheckHandler(service *BatchService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var combinedErrors error

		service.Debug().Msg("/healthcheck called")

		// check that the database is reachable
		err := service.Database.HealthCheck()
		if err != nil {
			service.Error().
				Err(err).
				Msg("database healthcheck failed")

			errMsg := fmt.Errorf("batch service unable to connect to database: %v", err)
			combinedErrors = errors.Join(combinedErrors, errMsg)
		}

		// check that the resource store is reachable
		err = service.Store.Healthcheck(r.Context())
		if err != nil {
			service.Error().
				Err(err).
				Msg("resource store healthcheck failed")

			errMsg := fmt.Errorf("batch service unable to connect to resource store: %v", err)
			combinedErrors = errors.Join(combinedErrors, errMsg)
		}

		if combinedErrors != nil {
			w.WriteHeader(http.StatusInternalServerError)

			w.Write([]byte(combinedErrors.Error()))

			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("batch service is healthy"))
	}
}

// createServicecheckHandler creates a service check handler function that
// will respond 200 ok if the batch service is running
func createServicecheckHandler(service *BatchService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		service.Debug().Msg("/servicecheck called")

		w.WriteHeader(http.StatusOK)

		w.Write([]byte("batch service is in service"))
	}
}

// createBatchStatusHandler creates a handler responding with a page of the
// metrics recorded for served batches, oldest first. The page starts after
// the id given by the `cursor` query parameter and holds at most `limit` metrics.
func createBatchStatusHandler(service *BatchService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		service.Debug().Msg("/status/batches called")

		query := r.URL.Query()

		cursor, err := parseQueryInt(query.Get("cursor"), 0)
		if err != nil || cursor < 0 {
			http.Error(w, fmt.Sprintf("invalid cursor %s", query.Get("cursor")), http.StatusBadRequest)
			return
		}

		limit, err := parseQueryInt(query.Get("limit"), DefaultBatchMetricsPageSize)
		if err != nil || limit <= 0 || limit > MaxBatchMetricsPageSize {
			http.Error(w, fmt.Sprintf("invalid limit %s", query.Get("limit")), http.StatusBadRequest)
			return
		}

		metrics, nextCursor, err := service.Database.ListBatchRequestMetricsWithPagination(r.Context(), cursor, int(limit))
		if err != nil {
			service.Error().Msg(fmt.Sprintf("error %s listing batch request metrics", err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		response := BatchMetricsResponse{
			Metrics:    make([]BatchMetric, 0, len(metrics)),
			NextCursor: nextCursor,
		}
		for _, metric := range metrics {
			response.Metrics = append(response.Metrics, newBatchMetric(metric))
		}

		// return response for client
		if err := MarshalJSONResponse(&response, w); err != nil {
			service.Error().Msg(fmt.Sprintf("error %s encoding %+v to json", err, response))
		}
	}
}

func parseQueryInt(raw string, fallback int64) (int64, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// MarshalJSONResponse marshals an interface into the response body and sets JSON content type headers
func MarshalJSONResponse(obj interface{}, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		return err
	}
	return nil
}

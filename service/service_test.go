package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kava-labs/kava-batch-service/config"
	"github.com/kava-labs/kava-batch-service/logging"
	"github.com/kava-labs/kava-batch-service/multipart"
	"github.com/kava-labs/kava-batch-service/service"
)

var (
	testDefaultContext = context.TODO()

	dummyConfig = config.Config{
		LogLevel:              config.DEFAULT_LOG_LEVEL,
		BatchServicePort:      config.DEFAULT_BATCH_SERVICE_PORT,
		BatchServiceRootPath:  config.DEFAULT_BATCH_SERVICE_ROOT_PATH,
		BatchMaxNestingDepth:  config.DEFAULT_BATCH_MAX_NESTING_DEPTH,
		BatchMaxBodySizeBytes: config.DEFAULT_BATCH_MAX_BODY_SIZE_BYTES,
		ResourceStoreBackend:  config.ResourceStoreBackendMemory,
	}

	dummyLogger = logging.Nop()
)

func newTestService(t *testing.T, serviceConfig config.Config) (*httptest.Server, *service.BatchServiceClient) {
	batchService, err := service.New(testDefaultContext, serviceConfig, dummyLogger)
	require.NoError(t, err)

	server := httptest.NewServer(batchService.Handler())
	t.Cleanup(func() {
		server.Close()
		batchService.Shutdown(context.Background())
	})

	client, err := service.NewBatchServiceClient(service.BatchServiceClientConfig{
		BatchServiceHostname: server.URL,
		BatchServiceRootPath: serviceConfig.BatchServiceRootPath,
	})
	require.NoError(t, err)

	return server, client
}

func batchBody(t *testing.T, root *multipart.Document) (string, []byte) {
	var body strings.Builder
	require.NoError(t, root.WriteBody(&body))

	return root.ContentType(), []byte(body.String())
}

func responseParts(t *testing.T, response service.BatchResponse) []*multipart.ResponseMessage {
	parsed, err := multipart.ParseBatch(response.ContentType, response.Body, 0)
	require.NoError(t, err)

	var responses []*multipart.ResponseMessage
	for _, child := range parsed.Children {
		if child.IsGroup() {
			for _, grandchild := range child.Children {
				message, err := multipart.ParseResponse(grandchild.Body)
				require.NoError(t, err)
				responses = append(responses, message)
			}
			continue
		}

		message, err := multipart.ParseResponse(child.Body)
		require.NoError(t, err)
		responses = append(responses, message)
	}

	return responses
}

func TestUnitTestNewWithValidParamsCreatesBatchServiceWithoutError(t *testing.T) {
	_, err := service.New(testDefaultContext, dummyConfig, dummyLogger)

	assert.Nil(t, err)
}

func TestUnitTestNewWithUnknownStoreBackendReturnsError(t *testing.T) {
	serviceConfig := dummyConfig
	serviceConfig.ResourceStoreBackend = "etcd"

	_, err := service.New(testDefaultContext, serviceConfig, dummyLogger)

	assert.Error(t, err)
}

func TestUnitTestNewWithInvalidBackendURLReturnsError(t *testing.T) {
	serviceConfig := dummyConfig
	serviceConfig.BatchBackendURL = "http://[::1"

	_, err := service.New(testDefaultContext, serviceConfig, dummyLogger)

	assert.Error(t, err)
}

func TestUnitTestBatchServiceServesBatches(t *testing.T) {
	server, client := newTestService(t, dummyConfig)

	create := multipart.NewRequestPart(&multipart.RequestMessage{
		Method: http.MethodPost,
		Target: "Items",
		Header: multipart.Header{"content-type": {"application/json"}},
		Body:   []byte(`{"name":"first"}`),
	}, "1")
	read := multipart.NewRequestPart(&multipart.RequestMessage{Method: http.MethodGet, Target: "$1"}, "")
	missing := multipart.NewRequestPart(&multipart.RequestMessage{Method: http.MethodGet, Target: "Items(42)"}, "")

	contentType, body := batchBody(t, multipart.NewGroupPart("batch_client",
		multipart.NewGroupPart("changeset_client", create),
		read,
		missing,
	))

	response, err := client.PostBatch(testDefaultContext, contentType, body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.NotEmpty(t, response.BatchID)
	assert.True(t, strings.HasPrefix(response.ContentType, "multipart/mixed;boundary=batch_"))

	parts := responseParts(t, response)
	require.Len(t, parts, 3)

	assert.Equal(t, http.StatusCreated, parts[0].StatusCode)
	assert.Equal(t, server.URL+"/odata/Items(1)", parts[0].Header.Get("location"))

	assert.Equal(t, http.StatusOK, parts[1].StatusCode)
	assert.JSONEq(t, `{"id":1,"name":"first"}`, string(parts[1].Body))

	assert.Equal(t, http.StatusNotFound, parts[2].StatusCode)

	// resources created in a batch are served outside of it
	httpResponse, err := http.Get(server.URL + "/odata/Items(1)")
	require.NoError(t, err)
	defer httpResponse.Body.Close()

	assert.Equal(t, http.StatusOK, httpResponse.StatusCode)
}

func TestUnitTestBatchServiceRejectsInvalidBatches(t *testing.T) {
	_, client := newTestService(t, dummyConfig)

	_, err := client.PostBatch(testDefaultContext, "application/json", []byte(`{}`))
	require.Error(t, err)

	var requestErr *service.RequestError
	require.True(t, errors.As(err, &requestErr))
	assert.Equal(t, http.StatusBadRequest, requestErr.StatusCode)
}

func TestUnitTestBatchServiceHealthchecks(t *testing.T) {
	server, _ := newTestService(t, dummyConfig)

	testCases := []struct {
		path string
		body string
	}{
		{path: service.HealthcheckPath, body: "batch service is healthy"},
		{path: service.ServicecheckPath, body: "batch service is in service"},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			response, err := http.Get(server.URL + tc.path)
			require.NoError(t, err)
			defer response.Body.Close()

			body, err := io.ReadAll(response.Body)
			require.NoError(t, err)

			assert.Equal(t, http.StatusOK, response.StatusCode)
			assert.Equal(t, tc.body, string(body))
		})
	}
}

func TestUnitTestBatchServiceStatusWithoutMetricsDatabase(t *testing.T) {
	server, client := newTestService(t, dummyConfig)

	metrics, err := client.GetBatchMetrics(testDefaultContext, 0, 10)
	require.NoError(t, err)

	assert.Empty(t, metrics.Metrics)
	assert.Zero(t, metrics.NextCursor)

	response, err := http.Get(server.URL + service.BatchStatusPath + "?limit=0")
	require.NoError(t, err)
	defer response.Body.Close()

	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestUnitTestBatchServiceProxiesToBackend(t *testing.T) {
	var (
		mu       sync.Mutex
		received []string
	)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		received = append(received, r.Method+" "+r.URL.Path)
		mu.Unlock()

		if r.Method == http.MethodPost {
			w.Header().Set("Location", fmt.Sprintf("http://%s/odata/Items(7)", r.Host))
			w.WriteHeader(http.StatusCreated)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":7}`))
	}))
	defer backend.Close()

	serviceConfig := dummyConfig
	serviceConfig.BatchBackendURL = backend.URL

	_, client := newTestService(t, serviceConfig)

	create := multipart.NewRequestPart(&multipart.RequestMessage{
		Method: http.MethodPost,
		Target: "Items",
		Header: multipart.Header{"content-type": {"application/json"}},
		Body:   []byte(`{}`),
	}, "item")
	read := multipart.NewRequestPart(&multipart.RequestMessage{Method: http.MethodGet, Target: "$item"}, "")

	contentType, body := batchBody(t, multipart.NewGroupPart("batch_client", create, read))

	response, err := client.PostBatch(testDefaultContext, contentType, body)
	require.NoError(t, err)

	parts := responseParts(t, response)
	require.Len(t, parts, 2)

	assert.Equal(t, http.StatusCreated, parts[0].StatusCode)
	assert.Equal(t, http.StatusOK, parts[1].StatusCode)
	assert.JSONEq(t, `{"id":7}`, string(parts[1].Body))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"POST /odata/Items", "GET /odata/Items(7)"}, received)
}

func TestUnitTestBatchServiceReportsUnreachableBackendPerPart(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	backendURL := backend.URL
	// nothing listens on the address once the backend is closed
	backend.Close()

	serviceConfig := dummyConfig
	serviceConfig.BatchBackendURL = backendURL

	_, client := newTestService(t, serviceConfig)

	read := multipart.NewRequestPart(&multipart.RequestMessage{Method: http.MethodGet, Target: "Items"}, "")
	contentType, body := batchBody(t, multipart.NewGroupPart("batch_client", read, read))

	response, err := client.PostBatch(testDefaultContext, contentType, body)
	require.NoError(t, err)

	parts := responseParts(t, response)
	require.Len(t, parts, 2)

	for _, part := range parts {
		assert.Equal(t, http.StatusBadGateway, part.StatusCode)
	}
}

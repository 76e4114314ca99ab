package batchmdw_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kava-labs/kava-batch-service/logging"
	"github.com/kava-labs/kava-batch-service/multipart"
	"github.com/kava-labs/kava-batch-service/service/batchmdw"
)

func newTestHandler(engine batchmdw.Engine, summaries *[]batchmdw.Summary) http.HandlerFunc {
	return batchmdw.CreateBatchProcessingHandler(&batchmdw.BatchMiddlewareConfig{
		ServiceLogger:    logging.Nop(),
		Engine:           engine,
		MaxNestingDepth:  4,
		MaxBodySizeBytes: 1 << 16,
		Timeout:          time.Minute,
		OnComplete: func(summary batchmdw.Summary) {
			*summaries = append(*summaries, summary)
		},
	})
}

func TestUnitTest_BatchHandlerStreamsResponses(t *testing.T) {
	engine := &fakeEngine{}
	var summaries []batchmdw.Summary
	handler := newTestHandler(engine, &summaries)

	root := multipart.NewGroupPart("batch_in",
		multipart.NewGroupPart("changeset_in",
			requestPart("POST", "Items", "1", `{"name":"a"}`),
		),
		requestPart("GET", "$1", "", ""),
	)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, newBatchRequest(t, root))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Len(t, recorder.Header().Get(batchmdw.BatchIDHeaderKey), 26)

	contentType := recorder.Header().Get("Content-Type")
	require.True(t, strings.HasPrefix(contentType, "multipart/mixed;boundary=batch_"), contentType)

	parsed, err := multipart.ParseBatch(contentType, recorder.Body.Bytes(), 0)
	require.NoError(t, err)

	parts := parseLeaves(t, parsed)
	require.Len(t, parts, 2)
	assert.Equal(t, http.StatusCreated, parts[0].response.StatusCode)
	assert.Equal(t, "GET http://example.com/odata/Items(1)", string(parts[1].response.Body))

	require.Len(t, summaries, 1)
	assert.Equal(t, recorder.Header().Get(batchmdw.BatchIDHeaderKey), summaries[0].BatchID)
	assert.Equal(t, 2, summaries[0].Parts)
	assert.Equal(t, 1, summaries[0].Groups)
	assert.False(t, summaries[0].Aborted)
	assert.NoError(t, summaries[0].Err)
}

func TestUnitTest_BatchHandlerAbortsWhenTimeoutExpires(t *testing.T) {
	engine := &fakeEngine{onExecute: func(r *http.Request) { time.Sleep(50 * time.Millisecond) }}

	var summaries []batchmdw.Summary
	handler := batchmdw.CreateBatchProcessingHandler(&batchmdw.BatchMiddlewareConfig{
		ServiceLogger:    logging.Nop(),
		Engine:           engine,
		MaxNestingDepth:  4,
		MaxBodySizeBytes: 1 << 16,
		Timeout:          20 * time.Millisecond,
		OnComplete: func(summary batchmdw.Summary) {
			summaries = append(summaries, summary)
		},
	})

	root := multipart.NewGroupPart("batch_in",
		multipart.NewGroupPart("changeset_in",
			requestPart("GET", "Items(1)", "", ""),
			requestPart("GET", "Items(2)", "", ""),
		),
		requestPart("GET", "Items(3)", "", ""),
	)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, newBatchRequest(t, root))

	require.Equal(t, http.StatusOK, recorder.Code)

	// the stream is closed even though the batch stopped early
	contentType := recorder.Header().Get("Content-Type")
	boundary := strings.TrimPrefix(contentType, "multipart/mixed;boundary=")
	assert.True(t, strings.HasSuffix(recorder.Body.String(), "\r\n--"+boundary+"--\r\n"))

	parsed, err := multipart.ParseBatch(contentType, recorder.Body.Bytes(), 0)
	require.NoError(t, err)
	assert.Len(t, parseLeaves(t, parsed), 1)

	assert.Len(t, engine.requests, 1)

	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].Aborted)
	assert.ErrorIs(t, summaries[0].Err, context.DeadlineExceeded)
	assert.Equal(t, 1, summaries[0].Parts)
}

func TestUnitTest_BatchHandlerRejectsInvalidBatches(t *testing.T) {
	testCases := []struct {
		name           string
		method         string
		contentType    string
		body           string
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "wrong method",
			method:         http.MethodGet,
			contentType:    "multipart/mixed;boundary=b",
			body:           "",
			expectedStatus: http.StatusMethodNotAllowed,
			expectedCode:   "method_not_allowed",
		},
		{
			name:           "missing boundary",
			method:         http.MethodPost,
			contentType:    "multipart/mixed",
			body:           "--b--\r\n",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "missing_boundary",
		},
		{
			name:           "unbalanced delimiters",
			method:         http.MethodPost,
			contentType:    "multipart/mixed;boundary=b",
			body:           "--b\r\ncontent-type: application/http\r\n\r\nGET /odata/Items HTTP/1.1\r\n\r\n",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "malformed_batch",
		},
		{
			name:           "body too large",
			method:         http.MethodPost,
			contentType:    "multipart/mixed;boundary=b",
			body:           strings.Repeat("x", 1<<16+1),
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedCode:   "batch_too_large",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &fakeEngine{}
			var summaries []batchmdw.Summary
			handler := newTestHandler(engine, &summaries)

			request := httptest.NewRequest(tc.method, batchURL, strings.NewReader(tc.body))
			request.Header.Set("Content-Type", tc.contentType)

			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			assert.Equal(t, tc.expectedStatus, recorder.Code)
			assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
			assert.Equal(t, tc.expectedCode, errorCode(t, recorder.Body.Bytes()))
			assert.Empty(t, recorder.Header().Get(batchmdw.BatchIDHeaderKey))

			assert.Empty(t, engine.requests)
			assert.Empty(t, summaries)
		})
	}
}

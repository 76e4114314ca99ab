package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kava-labs/kava-batch-service/service/batchmdw"
)

// BatchServiceClient provides a client
// for making requests and decoding responses
// to the batch service API
type BatchServiceClient struct {
	*http.Client
	config            BatchServiceClientConfig
	DebugLogResponses bool
}

// BatchServiceClientConfig wraps values used to
// create a new BatchServiceClient
type BatchServiceClientConfig struct {
	BatchServiceHostname string
	// BatchServiceRootPath is the root the batch endpoint is served under, e.g. `/odata`
	BatchServiceRootPath string
	DebugLogResponses    bool
}

// BatchResponse is the raw multipart response to a batch
type BatchResponse struct {
	StatusCode  int
	ContentType string
	BatchID     string
	Body        []byte
}

// NewBatchServiceClient creates a new BatchServiceClient
// using the provided config, returning the client and error (if any)
func NewBatchServiceClient(config BatchServiceClientConfig) (*BatchServiceClient, error) {
	if _, err := url.Parse(config.BatchServiceHostname); err != nil {
		return nil, fmt.Errorf("invalid batch service hostname %s: %w", config.BatchServiceHostname, err)
	}

	httpClient := &http.Client{}
	return &BatchServiceClient{
		Client:            httpClient,
		DebugLogResponses: config.DebugLogResponses,
		config:            config,
	}, nil
}

// PostBatch submits a multipart batch with the given content type
// (including its boundary), returning the raw multipart response
// and error (if any). Responses with a status other than 200 are
// returned as a *RequestError.
func (c *BatchServiceClient) PostBatch(ctx context.Context, contentType string, body []byte) (BatchResponse, error) {
	var response BatchResponse
	batchURL := c.config.BatchServiceHostname + c.config.BatchServiceRootPath + BatchPathSuffix

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, batchURL, bytes.NewReader(body))
	if err != nil {
		return response, &RequestError{
			URL:     batchURL,
			message: err.Error(),
		}
	}
	request.Header.Set("Content-Type", contentType)

	httpResponse, err := c.Do(request)
	if err != nil {
		return response, &RequestError{
			URL:     batchURL,
			message: err.Error(),
		}
	}
	defer httpResponse.Body.Close()

	responseBody, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return response, &RequestError{
			URL:     batchURL,
			message: err.Error(),
		}
	}

	if c.DebugLogResponses {
		fmt.Printf("Request Path %s \n Response Body %s \n  Response Status Code %d \n ", batchURL, string(responseBody), httpResponse.StatusCode)
	}

	response = BatchResponse{
		StatusCode:  httpResponse.StatusCode,
		ContentType: httpResponse.Header.Get("Content-Type"),
		BatchID:     httpResponse.Header.Get(batchmdw.BatchIDHeaderKey),
		Body:        responseBody,
	}

	if httpResponse.StatusCode != http.StatusOK {
		return response, &RequestError{
			StatusCode: httpResponse.StatusCode,
			URL:        batchURL,
			message:    fmt.Sprintf("request to %s error server http error %d", batchURL, httpResponse.StatusCode),
		}
	}

	return response, nil
}

// GetBatchMetrics calls `BatchStatusPath` to get a page
// of the metrics recorded for served batches
func (c *BatchServiceClient) GetBatchMetrics(ctx context.Context, cursor int64, limit int) (BatchMetricsResponse, error) {
	var response BatchMetricsResponse

	query := url.Values{}
	query.Set("cursor", strconv.FormatInt(cursor, 10))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	statusURL := c.config.BatchServiceHostname + BatchStatusPath + "?" + query.Encode()

	request, err := CreateRequest(http.MethodGet, statusURL, nil)
	if err != nil {
		return response, err
	}

	err = Call(*c, request.WithContext(ctx), &response)

	return response, err
}

// RequestError provides additional details about the failed request.
type RequestError struct {
	message    string
	URL        string
	StatusCode int
}

// Error implements the error interface for RequestError.
func (err *RequestError) Error() string {
	return err.message
}

// NewError creates a new RequestError
func NewError(message, url string, statusCode int) error {
	return &RequestError{message, url, statusCode}
}

// CreateRequest isolates duplicate code in creating http search request.
func CreateRequest(method string, path string, params interface{}) (*http.Request, error) {
	var buf bytes.Buffer
	var req *http.Request
	err := json.NewEncoder(&buf).Encode(&params)
	if err != nil {
		return req, err
	}
	req, err = http.NewRequest(method, path, &buf)
	if err != nil {
		return req, &RequestError{
			URL:     path,
			message: err.Error(),
		}
	}
	return req, nil
}

// Call makes an http request to a JSON HTTP api
// decoding the JSON response to the result interface if non-nil
// returning error (if any)
func Call(client BatchServiceClient, request *http.Request, result interface{}) error {
	response, err := client.Do(request)

	if err != nil {
		return &RequestError{
			URL:     request.URL.String(),
			message: err.Error(),
		}
	}

	defer response.Body.Close()

	if !(response.StatusCode >= 200 && response.StatusCode <= 299) {
		requestURL := request.URL.String()
		return &RequestError{
			StatusCode: response.StatusCode,
			URL:        requestURL,
			message:    fmt.Sprintf("request to %s error server http error %d", requestURL, response.StatusCode),
		}
	}

	// If no result is expected, don't attempt to decode a potentially
	// empty response stream and avoid incurring EOF errors
	if result == nil {
		return nil
	}

	if client.DebugLogResponses {
		var bodyBytes []byte
		if response.Body != nil {
			bodyBytes, err = io.ReadAll(response.Body)
			if err != nil {
				return &RequestError{
					URL:     request.URL.String(),
					message: err.Error(),
				}
			}
			fmt.Printf("Request Path %s \n Response Body %s \n  Response Status Code %d \n ", request.URL, string(bodyBytes), response.StatusCode)
		}
		// Repopulate body with the data read
		response.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}

	err = json.NewDecoder(response.Body).Decode(&result)
	if err != nil {
		return &RequestError{
			URL:     request.URL.String(),
			message: err.Error(),
		}
	}
	return nil
}

package batchmdw_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kava-labs/kava-batch-service/multipart"
	"github.com/kava-labs/kava-batch-service/protocol"
	"github.com/kava-labs/kava-batch-service/service/batchmdw"
)

const batchURL = "http://example.com/odata/$batch"

var errEngineFailure = errors.New("engine failure")

// fakeEngine creates a resource for every POST, echoes every other request
// and fails requests whose path names the failure
type fakeEngine struct {
	requests  []*http.Request
	bodies    []string
	nextID    int
	onExecute func(r *http.Request)
}

var _ batchmdw.Engine = (*fakeEngine)(nil)

func (e *fakeEngine) Execute(ctx context.Context, r *http.Request) (*protocol.Response, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	e.requests = append(e.requests, r)
	e.bodies = append(e.bodies, string(body))

	if e.onExecute != nil {
		e.onExecute(r)
	}

	switch {
	case strings.Contains(r.URL.Path, "fatal"):
		return nil, errEngineFailure
	case strings.Contains(r.URL.Path, "missing"):
		return nil, protocol.NewNotFoundError("not_found", "no such resource")
	case r.Method == http.MethodPost:
		e.nextID++
		location := fmt.Sprintf("%s(%d)", r.URL.String(), e.nextID)

		response := protocol.NewResponse(http.StatusCreated)
		response.Header.Set("Location", location)
		response.Header.Set("Content-Type", "application/json")
		response.ResourceURL = location
		response.Body = body

		return response, nil
	}

	response := protocol.NewResponse(http.StatusOK)
	response.Header.Set("Content-Type", "text/plain")
	response.Body = []byte(r.Method + " " + r.URL.String())

	return response, nil
}

func requestPart(method string, target string, contentID string, body string) *multipart.Document {
	message := &multipart.RequestMessage{
		Method: method,
		Target: target,
		Header: multipart.Header{},
	}

	if body != "" {
		message.Header.Set("Content-Type", "application/json")
		message.Body = []byte(body)
	}

	return multipart.NewRequestPart(message, contentID)
}

func newBatchRequest(t *testing.T, root *multipart.Document) *http.Request {
	var body strings.Builder
	require.NoError(t, root.WriteBody(&body))

	request := httptest.NewRequest(http.MethodPost, batchURL, strings.NewReader(body.String()))
	request.Header.Set("Content-Type", root.ContentType())

	return request
}

// parsedPart is a part of a batch response with the message it carries
type parsedPart struct {
	document *multipart.Document
	response *multipart.ResponseMessage
}

func parseLeaves(t *testing.T, document *multipart.Document) []parsedPart {
	var parts []parsedPart

	for _, child := range document.Children {
		if child.IsGroup() {
			parts = append(parts, parseLeaves(t, child)...)
			continue
		}

		response, err := multipart.ParseResponse(child.Body)
		require.NoError(t, err)

		parts = append(parts, parsedPart{document: child, response: response})
	}

	return parts
}

package batchmdw_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kava-labs/kava-batch-service/logging"
	"github.com/kava-labs/kava-batch-service/multipart"
	"github.com/kava-labs/kava-batch-service/service/batchmdw"
)

func newTestStream(t *testing.T, engine batchmdw.Engine, root *multipart.Document) *batchmdw.Stream {
	executor := batchmdw.NewExecutor(engine, batchmdw.NewReferenceTable(), newBatchRequest(t, root), logging.Nop())
	return batchmdw.NewStream(root, executor, logging.Nop())
}

func emitAndParse(t *testing.T, stream *batchmdw.Stream) (*multipart.Document, string) {
	var out bytes.Buffer
	require.NoError(t, stream.Emit(context.Background(), &out))

	parsed, err := multipart.ParseBatch(stream.ContentType(), out.Bytes(), 0)
	require.NoError(t, err)

	return parsed, out.String()
}

func TestUnitTest_StreamCreateThenReadByReference(t *testing.T) {
	root := multipart.NewGroupPart("batch_in",
		requestPart("POST", "Items", "1", `{"name":"a"}`),
		requestPart("GET", "$1", "", ""),
	)
	stream := newTestStream(t, &fakeEngine{}, root)

	parsed, _ := emitAndParse(t, stream)
	parts := parseLeaves(t, parsed)
	require.Len(t, parts, 2)

	assert.Equal(t, "1", parts[0].document.ContentID())
	assert.Equal(t, multipart.MediaTypeHTTP, parts[0].document.ContentType())
	assert.Equal(t, http.StatusCreated, parts[0].response.StatusCode)
	assert.Equal(t, "201 Created", parts[0].response.Status)
	assert.Equal(t, "http://example.com/odata/Items(1)", parts[0].response.Header.Get("location"))

	assert.Equal(t, http.StatusOK, parts[1].response.StatusCode)
	assert.Equal(t, "GET http://example.com/odata/Items(1)", string(parts[1].response.Body))

	assert.Equal(t, batchmdw.Stats{Parts: 2}, stream.Stats())
}

func TestUnitTest_StreamFramesNestedGroups(t *testing.T) {
	root := multipart.NewGroupPart("batch_in",
		multipart.NewGroupPart("changeset_in",
			requestPart("POST", "Items", "1", `{}`),
			requestPart("POST", "Items", "2", `{}`),
		),
		requestPart("GET", "Items", "", ""),
	)
	stream := newTestStream(t, &fakeEngine{}, root)

	parsed, out := emitAndParse(t, stream)
	require.Len(t, parsed.Children, 2)

	group := parsed.Children[0]
	require.True(t, group.IsGroup())
	require.Len(t, group.Children, 2)

	inner, err := group.Boundary()
	require.NoError(t, err)
	outer := stream.Boundary()

	assert.True(t, strings.HasPrefix(outer, batchmdw.BatchBoundaryPrefix))
	assert.True(t, strings.HasPrefix(inner, batchmdw.ChangeSetBoundaryPrefix))
	assert.NotEqual(t, outer, inner)
	assert.NotContains(t, []string{"batch_in", "changeset_in"}, outer)
	assert.NotContains(t, []string{"batch_in", "changeset_in"}, inner)

	// open, between the two children, close
	assert.Equal(t, 3, strings.Count(out, "\r\n--"+inner))
	assert.Equal(t, 1, strings.Count(out, "\r\n--"+inner+"--\r\n"))
	assert.Less(t, strings.Index(out, "--"+inner+"--"), strings.Index(out, "--"+outer+"--"))
	assert.True(t, strings.HasSuffix(out, "\r\n--"+outer+"--\r\n"))

	assert.Equal(t, batchmdw.Stats{Parts: 3, Groups: 1}, stream.Stats())
}

func TestUnitTest_StreamRoundTripsDocumentShape(t *testing.T) {
	root := multipart.NewGroupPart("batch_in",
		requestPart("GET", "Items", "a", ""),
		multipart.NewGroupPart("changeset_1",
			requestPart("POST", "Items", "b", `{}`),
			multipart.NewGroupPart("changeset_2",
				requestPart("GET", "$b", "c", ""),
			),
		),
		requestPart("GET", "Items", "d", ""),
	)
	stream := newTestStream(t, &fakeEngine{}, root)

	parsed, _ := emitAndParse(t, stream)

	require.Len(t, parsed.Children, 3)
	require.True(t, parsed.Children[1].IsGroup())
	require.Len(t, parsed.Children[1].Children, 2)
	require.True(t, parsed.Children[1].Children[1].IsGroup())
	require.Len(t, parsed.Children[1].Children[1].Children, 1)

	var contentIDs []string
	for _, part := range parseLeaves(t, parsed) {
		contentIDs = append(contentIDs, part.document.ContentID())
		assert.Equal(t, multipart.MediaTypeHTTP, part.document.ContentType())
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, contentIDs)
	assert.Len(t, parsed.Boundaries(), 3)
}

func TestUnitTest_StreamIsolatesFailedParts(t *testing.T) {
	root := multipart.NewGroupPart("batch_in",
		requestPart("POST", "Items", "1", `{}`),
		requestPart("GET", "missing(1)", "", ""),
		requestPart("GET", "$1", "", ""),
	)
	stream := newTestStream(t, &fakeEngine{}, root)

	parsed, _ := emitAndParse(t, stream)
	parts := parseLeaves(t, parsed)
	require.Len(t, parts, 3)

	assert.Equal(t, http.StatusCreated, parts[0].response.StatusCode)
	assert.Equal(t, http.StatusNotFound, parts[1].response.StatusCode)
	assert.Equal(t, http.StatusOK, parts[2].response.StatusCode)

	assert.Equal(t, batchmdw.Stats{Parts: 3, FailedParts: 1}, stream.Stats())
}

func TestUnitTest_StreamRejectsForwardReferences(t *testing.T) {
	engine := &fakeEngine{}
	root := multipart.NewGroupPart("batch_in",
		requestPart("GET", "$2", "", ""),
		requestPart("POST", "Items", "2", `{}`),
	)
	stream := newTestStream(t, engine, root)

	parsed, _ := emitAndParse(t, stream)
	parts := parseLeaves(t, parsed)
	require.Len(t, parts, 2)

	assert.Equal(t, http.StatusBadRequest, parts[0].response.StatusCode)
	assert.Equal(t, "unresolved_reference", errorCode(t, parts[0].response.Body))
	assert.Equal(t, http.StatusCreated, parts[1].response.StatusCode)

	// the unresolved part never reached the engine
	assert.Len(t, engine.requests, 1)
}

func TestUnitTest_StreamWritesEachPartBeforeExecutingTheNext(t *testing.T) {
	recorder := httptest.NewRecorder()
	var written []string

	engine := &fakeEngine{
		onExecute: func(r *http.Request) {
			written = append(written, recorder.Body.String())
		},
	}
	root := multipart.NewGroupPart("batch_in",
		requestPart("POST", "Items", "1", `{}`),
		requestPart("GET", "Items", "", ""),
	)
	stream := newTestStream(t, engine, root)

	require.NoError(t, stream.Emit(context.Background(), recorder))

	require.Len(t, written, 2)
	assert.NotContains(t, written[0], "HTTP/1.1")
	assert.Contains(t, written[1], "HTTP/1.1 201 Created")
	assert.NotContains(t, written[1], "HTTP/1.1 200 OK")
	assert.True(t, recorder.Flushed)
}

func TestUnitTest_StreamClosesEveryRegionOnFatalError(t *testing.T) {
	engine := &fakeEngine{}
	root := multipart.NewGroupPart("batch_in",
		multipart.NewGroupPart("changeset_in",
			requestPart("POST", "Items", "1", `{}`),
			requestPart("GET", "fatal", "", ""),
		),
		requestPart("GET", "Items", "", ""),
	)
	stream := newTestStream(t, engine, root)

	var out bytes.Buffer
	err := stream.Emit(context.Background(), &out)
	require.ErrorIs(t, err, errEngineFailure)

	// the part after the failure never executed
	assert.Len(t, engine.requests, 2)
	assert.Equal(t, batchmdw.Stats{Parts: 1, Groups: 1, Aborted: true}, stream.Stats())

	parsed, err := multipart.ParseBatch(stream.ContentType(), out.Bytes(), 0)
	require.NoError(t, err)
	require.Len(t, parsed.Children, 1)
	require.Len(t, parsed.Children[0].Children, 1)

	inner, err := parsed.Children[0].Boundary()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out.String(), "\r\n--"+inner+"--\r\n\r\n--"+stream.Boundary()+"--\r\n"))
}

func TestUnitTest_StreamStopsWhenContextIsDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := &fakeEngine{
		onExecute: func(r *http.Request) {
			cancel()
		},
	}
	root := multipart.NewGroupPart("batch_in",
		requestPart("GET", "Items", "", ""),
		requestPart("GET", "Items", "", ""),
	)
	stream := newTestStream(t, engine, root)

	var out bytes.Buffer
	err := stream.Emit(ctx, &out)
	require.ErrorIs(t, err, context.Canceled)

	assert.Len(t, engine.requests, 1)
	assert.True(t, stream.Stats().Aborted)

	parsed, err := multipart.ParseBatch(stream.ContentType(), out.Bytes(), 0)
	require.NoError(t, err)
	assert.Len(t, parsed.Children, 1)
}

func TestUnitTest_StreamEmptyBatch(t *testing.T) {
	root := multipart.NewGroupPart("batch_in")
	stream := newTestStream(t, &fakeEngine{}, root)

	var out bytes.Buffer
	require.NoError(t, stream.Emit(context.Background(), &out))
	assert.Equal(t, "\r\n--"+stream.Boundary()+"--\r\n", out.String())

	require.ErrorIs(t, stream.Emit(context.Background(), &out), batchmdw.ErrBatchConsumed)
}

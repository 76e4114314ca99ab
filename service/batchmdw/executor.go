package batchmdw

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/kava-labs/kava-batch-service/logging"
	"github.com/kava-labs/kava-batch-service/multipart"
	"github.com/kava-labs/kava-batch-service/protocol"
)

// headers of the batch request that every part inherits unless it sets them itself
var inheritedHeaderKeys = []string{
	"Authorization",
}

// Result is the outcome of executing one part of a batch
type Result struct {
	Response *protocol.Response
	// ContentID is the identifier the part was tagged with (if any)
	ContentID string
	// Failed is true when Response was converted from a protocol error
	Failed bool
}

// Executor turns the leaf parts of a batch into requests, executes them
// one at a time against an Engine and records the resources they address
// so later parts can refer to them
type Executor struct {
	engine       Engine
	references   *ReferenceTable
	batchRequest *http.Request
	baseURL      *url.URL
	*logging.ServiceLogger
}

// NewExecutor creates an executor for the parts of batchRequest
func NewExecutor(engine Engine, references *ReferenceTable, batchRequest *http.Request, logger *logging.ServiceLogger) *Executor {
	return &Executor{
		engine:        engine,
		references:    references,
		batchRequest:  batchRequest,
		baseURL:       RequestBaseURL(batchRequest),
		ServiceLogger: logger,
	}
}

// Execute executes the request packaged in document. Protocol errors,
// including unresolved references, are converted into a failed Result.
// The returned error is only set for failures the batch cannot recover from.
func (e *Executor) Execute(ctx context.Context, document *multipart.Document) (Result, error) {
	request, contentID, err := e.buildRequest(ctx, document)
	if err != nil {
		return e.recover(contentID, err)
	}

	response, err := e.engine.Execute(ctx, request)
	if err != nil {
		return e.recover(contentID, err)
	}

	if contentID != "" && response.Successful() && response.ResourceURL != "" {
		e.references.Record(contentID, response.ResourceURL)

		e.Trace().
			Str("content_id", contentID).
			Str("resource_url", response.ResourceURL).
			Msg("recorded batch reference")
	}

	return Result{
		Response:  response,
		ContentID: contentID,
	}, nil
}

func (e *Executor) recover(contentID string, err error) (Result, error) {
	protocolErr, ok := protocol.AsError(err)
	if !ok {
		return Result{ContentID: contentID}, err
	}

	e.Debug().
		Str("content_id", contentID).
		Int("status", protocolErr.StatusCode).
		Str("code", protocolErr.Code).
		Msg(fmt.Sprintf("batch part failed: %s", protocolErr.Message))

	return Result{
		Response:  protocolErr.ToResponse(),
		ContentID: contentID,
		Failed:    true,
	}, nil
}

// buildRequest synthesizes the request packaged in document, substituting references
func (e *Executor) buildRequest(ctx context.Context, document *multipart.Document) (*http.Request, string, error) {
	contentID := document.ContentID()

	message, err := document.Request()
	if err != nil {
		return nil, contentID, protocol.NewBadRequestError("invalid_request", err.Error()).Wrap(err)
	}

	if contentID == "" {
		contentID = message.Header.Get(multipart.ContentIDHeaderKey)
	}

	if contentID != "" {
		if _, exists := e.references.Lookup(contentID); exists {
			return nil, contentID, protocol.NewBadRequestError(
				"duplicate_content_id",
				fmt.Sprintf("the content id %s was already used by an earlier request in the batch", contentID),
			).Wrap(ErrDuplicateReference)
		}
	}

	target, err := e.references.ResolveTarget(message.Target)
	if err != nil {
		return nil, contentID, err
	}

	body := message.Body
	if len(body) > 0 && isJSON(message.Header.Get("content-type")) {
		body, err = e.references.ResolveBody(body)
		if err != nil {
			return nil, contentID, err
		}
	}

	targetURL, err := url.Parse(target)
	if err != nil {
		return nil, contentID, protocol.NewBadRequestError("invalid_target", fmt.Sprintf("invalid request target %s", target)).Wrap(err)
	}

	requestURL := e.baseURL.ResolveReference(targetURL)

	request, err := http.NewRequestWithContext(ctx, message.Method, requestURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, contentID, protocol.NewBadRequestError("invalid_request", err.Error()).Wrap(err)
	}

	for _, name := range message.Header.Names() {
		for _, value := range message.Header.Values(name) {
			request.Header.Add(name, value)
		}
	}

	for _, key := range inheritedHeaderKeys {
		if request.Header.Get(key) == "" && e.batchRequest.Header.Get(key) != "" {
			request.Header.Set(key, e.batchRequest.Header.Get(key))
		}
	}

	request.Host = requestURL.Host
	request.RemoteAddr = e.batchRequest.RemoteAddr

	return request, contentID, nil
}

// RequestBaseURL returns the absolute URL of r as seen by the client
func RequestBaseURL(r *http.Request) *url.URL {
	base := *r.URL

	if base.Scheme == "" {
		base.Scheme = "http"
		if r.TLS != nil {
			base.Scheme = "https"
		}
		if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
			base.Scheme = forwarded
		}
	}

	if base.Host == "" {
		base.Host = r.Host
	}

	return &base
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

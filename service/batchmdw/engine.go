package batchmdw

import (
	"context"
	"net/http"

	"github.com/kava-labs/kava-batch-service/protocol"
)

// headers naming the resource a response addresses, in order of preference
var resourceURLHeaderKeys = []string{
	"Location",
	"OData-EntityId",
	"Content-Location",
}

// Engine executes a single request synthesized from a part of a batch.
// Recognized protocol failures are returned as *protocol.Error, any other
// error aborts the remainder of the batch.
type Engine interface {
	Execute(ctx context.Context, r *http.Request) (*protocol.Response, error)
}

// HandlerEngine is an Engine serving each request with an http.Handler,
// for example a reverse proxy to a backend implementing the protocol
type HandlerEngine struct {
	handler http.Handler
}

var _ Engine = (*HandlerEngine)(nil)

// NewHandlerEngine creates an Engine backed by handler
func NewHandlerEngine(handler http.Handler) *HandlerEngine {
	return &HandlerEngine{
		handler: handler,
	}
}

// Execute implements Engine. The handler's response is captured in full
// and the resource it addresses taken from its headers.
func (e *HandlerEngine) Execute(ctx context.Context, r *http.Request) (*protocol.Response, error) {
	w := newCaptureResponseWriter()

	e.handler.ServeHTTP(w, r.WithContext(ctx))

	response := w.Response()

	if response.Successful() {
		for _, key := range resourceURLHeaderKeys {
			if url := response.Header.Get(key); url != "" {
				response.ResourceURL = url
				break
			}
		}
	}

	return response, nil
}

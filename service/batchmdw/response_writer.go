package batchmdw

import (
	"bytes"
	"net/http"

	"github.com/kava-labs/kava-batch-service/protocol"
)

// captureResponseWriter is a custom implementation of http.ResponseWriter
// it captures the status, headers and body written by a handler
// serving a single part of a batch
type captureResponseWriter struct {
	// body is the response body for the part
	body *bytes.Buffer
	// header is the response headers for the part
	header http.Header
	// status is the first status code written, zero until then
	status int
}

var _ http.ResponseWriter = &captureResponseWriter{}
var _ http.Flusher = &captureResponseWriter{}

// newCaptureResponseWriter creates a new captureResponseWriter
func newCaptureResponseWriter() *captureResponseWriter {
	return &captureResponseWriter{
		header: make(http.Header),
		body:   new(bytes.Buffer),
	}
}

// Write implements the Write method of http.ResponseWriter
// it overrides the Write method to capture the response content for the part
func (w *captureResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

// Header implements the Header method of http.ResponseWriter
func (w *captureResponseWriter) Header() http.Header {
	return w.header
}

// WriteHeader implements the WriteHeader method of http.ResponseWriter
// only the first status written is kept, as with a real connection
func (w *captureResponseWriter) WriteHeader(status int) {
	if w.status != 0 {
		return
	}
	w.status = status
}

// Flush implements http.Flusher, the captured response is only sent once complete
func (w *captureResponseWriter) Flush() {}

// Response returns the captured response
func (w *captureResponseWriter) Response() *protocol.Response {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}

	response := protocol.NewResponse(status)
	response.Header = w.header.Clone()
	response.Body = w.body.Bytes()

	return response
}

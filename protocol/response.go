// package protocol provides the response and error types exchanged
// between the batch engine and the engine executing single requests
package protocol

import (
	"encoding/json"
	"net/http"
	"strconv"
)

const (
	// DefaultProtocolVersion is the HTTP version reported in synthesized status lines
	DefaultProtocolVersion = "1.1"

	ContentTypeHeaderKey = "Content-Type"
	ContentTypeJSON      = "application/json"
)

// Response is the captured outcome of executing a single request
type Response struct {
	ProtocolVersion string
	StatusCode      int
	Header          http.Header
	Body            []byte
	// ResourceURL is the URL of the resource the response addresses,
	// empty when the response does not address a single resource
	ResourceURL string
}

// NewResponse creates an empty response with the given status code
func NewResponse(statusCode int) *Response {
	return &Response{
		ProtocolVersion: DefaultProtocolVersion,
		StatusCode:      statusCode,
		Header:          make(http.Header),
	}
}

// NewJSONResponse creates a response with the JSON encoding of body
func NewJSONResponse(statusCode int, body any) (*Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	response := NewResponse(statusCode)
	response.Header.Set(ContentTypeHeaderKey, ContentTypeJSON)
	response.Body = encoded

	return response, nil
}

// StatusText returns the reason phrase for the response status code
func (r *Response) StatusText() string {
	return http.StatusText(r.StatusCode)
}

// Version returns the protocol version of the response, defaulting to DefaultProtocolVersion
func (r *Response) Version() string {
	if r.ProtocolVersion == "" {
		return DefaultProtocolVersion
	}
	return r.ProtocolVersion
}

// Successful reports whether the status code is in the 2xx range
func (r *Response) Successful() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// Write sends the response headers, status and body to w
func (r *Response) Write(w http.ResponseWriter) error {
	for key, values := range r.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}

	if len(r.Body) > 0 && w.Header().Get("Content-Length") == "" {
		w.Header().Set("Content-Length", strconv.Itoa(len(r.Body)))
	}

	w.WriteHeader(r.StatusCode)

	_, err := w.Write(r.Body)

	return err
}

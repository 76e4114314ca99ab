package service

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/kava-labs/kava-batch-service/logging"
	"github.com/kava-labs/kava-batch-service/protocol"
)

// NewReverseProxy creates a proxy forwarding every request to the backend
// origin server at backendURL. A backend that can not be reached is
// answered with a 502 error response so inside of a batch the failure
// stays confined to the part that caused it.
func NewReverseProxy(backendURL *url.URL, serviceLogger *logging.ServiceLogger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(backendURL)

	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)

		// the backend is addressed by its own name, not the name the client used
		r.Host = backendURL.Host
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		serviceLogger.Error().
			Err(err).
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Msg("error proxying request to backend")

		response := protocol.NewError(
			http.StatusBadGateway,
			"backend_unavailable",
			"the backend origin server could not be reached",
		).ToResponse()

		if writeErr := response.Write(w); writeErr != nil {
			serviceLogger.Error().Err(writeErr).Msg("failed to write proxy error response")
		}
	}

	return proxy
}

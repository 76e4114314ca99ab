// package resources provides an engine serving JSON entities from a store
// so that batches can create, read, update and delete resources
package resources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/kava-labs/kava-batch-service/clients/store"
	"github.com/kava-labs/kava-batch-service/logging"
	"github.com/kava-labs/kava-batch-service/protocol"
	"github.com/kava-labs/kava-batch-service/service/batchmdw"
)

const (
	// KeyField is the entity field holding the key assigned on creation
	KeyField = "id"

	maxEntitySizeBytes = 1 << 20
)

// matches `Set` and `Set(key)`
var resourcePathPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)(?:\((\d+)\))?$`)

// Engine serves the entity sets held by a store under a root path
type Engine struct {
	store    store.Store
	rootPath string
	*logging.ServiceLogger
}

var (
	_ batchmdw.Engine = (*Engine)(nil)
	_ http.Handler    = (*Engine)(nil)
)

// New creates an engine serving the sets of s under rootPath
func New(s store.Store, rootPath string, logger *logging.ServiceLogger) *Engine {
	return &Engine{
		store:         s,
		rootPath:      "/" + strings.Trim(rootPath, "/"),
		ServiceLogger: logger,
	}
}

// ServeHTTP implements http.Handler
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response, err := e.Execute(r.Context(), r)
	if err != nil {
		protocolErr, ok := protocol.AsError(err)
		if !ok {
			e.Error().Err(err).Str("path", r.URL.Path).Msg("resource request failed")
			protocolErr = protocol.NewError(http.StatusInternalServerError, "internal_error", "the request could not be served")
		}
		response = protocolErr.ToResponse()
	}

	if err := response.Write(w); err != nil {
		e.Error().Err(err).Msg("failed to write resource response")
	}
}

// Execute implements batchmdw.Engine
func (e *Engine) Execute(ctx context.Context, r *http.Request) (*protocol.Response, error) {
	set, key, isEntity, err := e.parsePath(r.URL.Path)
	if err != nil {
		return nil, err
	}

	if !isEntity {
		switch r.Method {
		case http.MethodGet:
			return e.list(ctx, set)
		case http.MethodPost:
			return e.create(ctx, r, set)
		}
		return nil, methodNotAllowed(r.Method, r.URL.Path)
	}

	switch r.Method {
	case http.MethodGet:
		data, err := e.get(ctx, set, key)
		if err != nil {
			return nil, err
		}
		return e.entityResponse(r, http.StatusOK, set, key, data), nil
	case http.MethodPatch, http.MethodPut:
		return e.update(ctx, r, set, key, r.Method == http.MethodPatch)
	case http.MethodDelete:
		if err := e.store.Delete(ctx, set, key); err != nil {
			return nil, notFoundOr(err, set, key)
		}
		return protocol.NewResponse(http.StatusNoContent), nil
	}

	return nil, methodNotAllowed(r.Method, r.URL.Path)
}

func (e *Engine) parsePath(path string) (string, int64, bool, error) {
	rest, found := strings.CutPrefix(path, e.rootPath)
	if !found || (rest != "" && !strings.HasPrefix(rest, "/")) {
		return "", 0, false, notFound(path)
	}

	matches := resourcePathPattern.FindStringSubmatch(strings.Trim(rest, "/"))
	if matches == nil {
		return "", 0, false, notFound(path)
	}

	if matches[2] == "" {
		return matches[1], 0, false, nil
	}

	key, err := strconv.ParseInt(matches[2], 10, 64)
	if err != nil {
		return "", 0, false, notFound(path)
	}

	return matches[1], key, true, nil
}

func (e *Engine) list(ctx context.Context, set string) (*protocol.Response, error) {
	entities, err := e.store.List(ctx, set)
	if err != nil {
		return nil, err
	}

	values := make([]json.RawMessage, 0, len(entities))
	for _, entity := range entities {
		values = append(values, entity)
	}

	return protocol.NewJSONResponse(http.StatusOK, map[string]any{"value": values})
}

func (e *Engine) create(ctx context.Context, r *http.Request, set string) (*protocol.Response, error) {
	entity, err := decodeEntity(r.Body)
	if err != nil {
		return nil, err
	}

	key, err := e.store.NextKey(ctx, set)
	if err != nil {
		return nil, err
	}

	entity[KeyField] = key

	data, err := json.Marshal(entity)
	if err != nil {
		return nil, err
	}

	if err := e.store.Put(ctx, set, key, data); err != nil {
		return nil, err
	}

	e.Trace().Str("set", set).Int64("key", key).Msg("created entity")

	response := e.entityResponse(r, http.StatusCreated, set, key, data)
	response.Header.Set("Location", response.ResourceURL)

	return response, nil
}

func (e *Engine) get(ctx context.Context, set string, key int64) ([]byte, error) {
	data, err := e.store.Get(ctx, set, key)
	if err != nil {
		return nil, notFoundOr(err, set, key)
	}
	return data, nil
}

func (e *Engine) update(ctx context.Context, r *http.Request, set string, key int64, merge bool) (*protocol.Response, error) {
	changes, err := decodeEntity(r.Body)
	if err != nil {
		return nil, err
	}

	existing, err := e.get(ctx, set, key)
	if err != nil {
		return nil, err
	}

	entity := map[string]any{}
	if merge {
		entity, err = decodeJSONObject(existing)
		if err != nil {
			return nil, err
		}
	}

	for field, value := range changes {
		entity[field] = value
	}
	entity[KeyField] = key

	data, err := json.Marshal(entity)
	if err != nil {
		return nil, err
	}

	if err := e.store.Put(ctx, set, key, data); err != nil {
		return nil, err
	}

	return e.entityResponse(r, http.StatusOK, set, key, data), nil
}

func (e *Engine) entityResponse(r *http.Request, status int, set string, key int64, data []byte) *protocol.Response {
	entityURL := batchmdw.RequestBaseURL(r)
	entityURL.Path = fmt.Sprintf("%s/%s(%d)", e.rootPath, set, key)
	// keep the key parentheses unescaped
	entityURL.RawPath = entityURL.Path
	entityURL.RawQuery = ""

	response := protocol.NewResponse(status)
	response.Header.Set(protocol.ContentTypeHeaderKey, protocol.ContentTypeJSON)
	response.Header.Set("Content-Location", entityURL.String())
	response.Body = data
	response.ResourceURL = entityURL.String()

	return response
}

func decodeEntity(body io.Reader) (map[string]any, error) {
	if body == nil {
		return nil, protocol.NewBadRequestError("invalid_body", "the request has no body")
	}

	raw, err := io.ReadAll(io.LimitReader(body, maxEntitySizeBytes))
	if err != nil {
		return nil, err
	}

	entity, err := decodeJSONObject(raw)
	if err != nil {
		return nil, protocol.NewBadRequestError("invalid_body", fmt.Sprintf("the request body is not a JSON object: %s", err)).Wrap(err)
	}

	return entity, nil
}

// decodeJSONObject decodes raw keeping numbers as written
func decodeJSONObject(raw []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	entity := map[string]any{}
	if err := decoder.Decode(&entity); err != nil {
		return nil, err
	}

	if entity == nil {
		return nil, errors.New("null is not an object")
	}

	return entity, nil
}

func notFound(path string) *protocol.Error {
	return protocol.NewNotFoundError("not_found", fmt.Sprintf("no resource at %s", path))
}

func notFoundOr(err error, set string, key int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return protocol.NewNotFoundError("not_found", fmt.Sprintf("no entity %s(%d)", set, key)).Wrap(err)
	}
	return err
}

func methodNotAllowed(method string, path string) *protocol.Error {
	return protocol.NewMethodNotAllowedError("method_not_allowed", fmt.Sprintf("%s is not supported for %s", method, path))
}

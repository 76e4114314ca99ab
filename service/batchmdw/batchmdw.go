package batchmdw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kava-labs/kava-batch-service/logging"
	"github.com/kava-labs/kava-batch-service/multipart"
	"github.com/kava-labs/kava-batch-service/protocol"
)

const (
	// BatchIDHeaderKey is the response header identifying a batch in logs and metrics
	BatchIDHeaderKey = "X-Batch-Id"

	DefaultMaxBodySizeBytes = 10 << 20
)

// BatchMiddlewareConfig configures the batch handler
type BatchMiddlewareConfig struct {
	ServiceLogger *logging.ServiceLogger

	// Engine executes every part of a batch
	Engine Engine

	MaxNestingDepth  int
	MaxBodySizeBytes int64
	// Timeout bounds the execution of a whole batch, zero disables it
	Timeout time.Duration

	// OnComplete (if set) is called after the response to every batch that parsed
	OnComplete func(Summary)
}

// Summary describes a completed batch
type Summary struct {
	BatchID     string
	Hostname    string
	RequestIP   string
	UserAgent   string
	Parts       int
	FailedParts int
	Groups      int
	Aborted     bool
	RequestTime time.Time
	Duration    time.Duration
	// Err is the failure that aborted the batch (if any)
	Err error
}

// CreateBatchProcessingHandler returns a handler that parses a multipart
// batch and streams the multipart response while executing each of its
// parts against the configured engine
func CreateBatchProcessingHandler(config *BatchMiddlewareConfig) http.HandlerFunc {
	maxBodySize := config.MaxBodySizeBytes
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySizeBytes
	}

	return func(w http.ResponseWriter, r *http.Request) {
		requestTime := time.Now()

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, config.ServiceLogger, protocol.NewMethodNotAllowedError(
				"method_not_allowed",
				fmt.Sprintf("batch requests must use %s", http.MethodPost),
			))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeError(w, config.ServiceLogger, protocol.NewError(
					http.StatusRequestEntityTooLarge,
					"batch_too_large",
					fmt.Sprintf("batch body larger than %d bytes", maxBytesErr.Limit),
				))
				return
			}

			writeError(w, config.ServiceLogger, protocol.NewBadRequestError("malformed_batch", err.Error()).Wrap(err))
			return
		}

		root, err := multipart.ParseBatch(r.Header.Get("Content-Type"), body, config.MaxNestingDepth)
		if err != nil {
			code := "malformed_batch"
			if errors.Is(err, multipart.ErrMissingBoundary) {
				code = "missing_boundary"
			}

			config.ServiceLogger.Debug().Err(err).Msg("rejecting malformed batch")

			writeError(w, config.ServiceLogger, protocol.NewBadRequestError(code, err.Error()).Wrap(err))
			return
		}

		batchID := ulid.Make().String()

		ctx := r.Context()
		if config.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, config.Timeout)
			defer cancel()
		}

		executor := NewExecutor(config.Engine, NewReferenceTable(), r, config.ServiceLogger)
		stream := NewStream(root, executor, config.ServiceLogger)

		w.Header().Set("Content-Type", stream.ContentType())
		w.Header().Set(BatchIDHeaderKey, batchID)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)

		emitErr := stream.Emit(ctx, w)

		stats := stream.Stats()
		duration := time.Since(requestTime)

		if emitErr != nil {
			config.ServiceLogger.Error().
				Err(emitErr).
				Str("batch_id", batchID).
				Int("parts", stats.Parts).
				Int("leaves", root.Leaves()).
				Msg("batch aborted")
		} else {
			config.ServiceLogger.Debug().
				Str("batch_id", batchID).
				Int("parts", stats.Parts).
				Int("failed_parts", stats.FailedParts).
				Int("groups", stats.Groups).
				Dur("duration", duration).
				Msg("batch completed")
		}

		if config.OnComplete != nil {
			config.OnComplete(Summary{
				BatchID:     batchID,
				Hostname:    r.Host,
				RequestIP:   r.RemoteAddr,
				UserAgent:   r.UserAgent(),
				Parts:       stats.Parts,
				FailedParts: stats.FailedParts,
				Groups:      stats.Groups,
				Aborted:     stats.Aborted,
				RequestTime: requestTime,
				Duration:    duration,
				Err:         emitErr,
			})
		}
	}
}

func writeError(w http.ResponseWriter, logger *logging.ServiceLogger, protocolErr *protocol.Error) {
	if err := protocolErr.ToResponse().Write(w); err != nil {
		logger.Error().Err(err).Msg("failed to write batch error response")
	}
}

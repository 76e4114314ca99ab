package batchmdw

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/kava-labs/kava-batch-service/logging"
	"github.com/kava-labs/kava-batch-service/multipart"
)

// ErrBatchConsumed is returned when a stream is emitted more than once
var ErrBatchConsumed = errors.New("batch stream was already emitted")

// Stats counts what a stream emitted
type Stats struct {
	Parts       int
	FailedParts int
	Groups      int
	// Aborted is true when emission stopped before every part was executed
	Aborted bool
}

// Stream emits the multipart response to a parsed batch, executing
// each part in document order as it goes
type Stream struct {
	root       *multipart.Document
	executor   *Executor
	boundaries *BoundaryStack
	boundary   string
	stats      Stats
	*logging.ServiceLogger
}

// NewStream creates a stream answering root. The boundary of the response
// is chosen here so it can be announced before any of the body is written.
func NewStream(root *multipart.Document, executor *Executor, logger *logging.ServiceLogger) *Stream {
	boundaries := NewBoundaryStack(root.Boundaries()...)

	return &Stream{
		root:          root,
		executor:      executor,
		boundaries:    boundaries,
		boundary:      boundaries.Generate(BatchBoundaryPrefix),
		ServiceLogger: logger,
	}
}

// Boundary returns the boundary of the top-level response region
func (s *Stream) Boundary() string {
	return s.boundary
}

// ContentType returns the content type announcing the response boundary
func (s *Stream) ContentType() string {
	return fmt.Sprintf("%s;boundary=%s", multipart.MediaTypeMultipartMixed, s.boundary)
}

// Stats returns the counts for the parts emitted so far
func (s *Stream) Stats() Stats {
	return s.stats
}

// Emit executes every part of the batch and writes the response to w,
// flushing after each write when w is an http.Flusher. When a part fails
// in a way that cannot be converted into a response, or ctx is done, the
// remaining parts are skipped, every open region is still closed and
// the error is returned.
func (s *Stream) Emit(ctx context.Context, w io.Writer) error {
	root := s.root
	if root == nil {
		return ErrBatchConsumed
	}
	s.root = nil

	sw := newStreamWriter(w)

	err := s.emitRegion(ctx, sw, s.boundary, root.Children)
	if err != nil {
		s.stats.Aborted = true
		return err
	}

	return sw.err
}

// emitRegion writes children framed by boundary followed by the closing delimiter
func (s *Stream) emitRegion(ctx context.Context, sw *streamWriter, boundary string, children []*multipart.Document) error {
	s.boundaries.Push(boundary)
	defer func() {
		sw.printf("\r\n--%s--\r\n", s.boundaries.Pop())
	}()

	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		if child.IsGroup() {
			err = s.emitGroup(ctx, sw, child)
		} else {
			err = s.emitLeaf(ctx, sw, child)
		}

		if err != nil {
			return err
		}

		if sw.err != nil {
			return sw.err
		}
	}

	return nil
}

func (s *Stream) emitGroup(ctx context.Context, sw *streamWriter, group *multipart.Document) error {
	token := s.boundaries.Generate(ChangeSetBoundaryPrefix)

	sw.printf("\r\n--%s\r\n%s: %s;boundary=%s\r\n\r\n",
		s.boundaries.Current(), multipart.ContentTypeHeaderKey, multipart.MediaTypeMultipartMixed, token)

	s.stats.Groups++

	return s.emitRegion(ctx, sw, token, group.Children)
}

// emitLeaf executes the part before anything is written for it so a
// fatal failure never leaves a partially written part behind
func (s *Stream) emitLeaf(ctx context.Context, sw *streamWriter, leaf *multipart.Document) error {
	result, err := s.executor.Execute(ctx, leaf)
	if err != nil {
		return err
	}

	s.stats.Parts++
	if result.Failed {
		s.stats.FailedParts++
	}

	response := result.Response

	s.Debug().
		Str("content_id", result.ContentID).
		Int("status", response.StatusCode).
		Int("depth", s.boundaries.Depth()).
		Msg("emitting batch part")

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "\r\n--%s\r\n", s.boundaries.Current())
	fmt.Fprintf(&buf, "%s: %s\r\n", multipart.ContentTypeHeaderKey, multipart.MediaTypeHTTP)
	fmt.Fprintf(&buf, "%s: binary\r\n", multipart.ContentTransferEncodingHeaderKey)
	if result.ContentID != "" {
		fmt.Fprintf(&buf, "%s: %s\r\n", multipart.ContentIDHeaderKey, result.ContentID)
	}
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "HTTP/%s %d %s\r\n", response.Version(), response.StatusCode, response.StatusText())
	writeResponseHeader(&buf, response.Header)
	buf.WriteString("\r\n")
	buf.Write(response.Body)

	sw.write(buf.Bytes())

	return nil
}

// writeResponseHeader writes header with lower-cased names in a stable order
func writeResponseHeader(buf *bytes.Buffer, header http.Header) {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, value := range header[name] {
			fmt.Fprintf(buf, "%s: %s\r\n", strings.ToLower(name), value)
		}
	}
}

// streamWriter writes to the response sink, flushing after every write.
// The first write error sticks and turns later writes into no-ops.
type streamWriter struct {
	w       io.Writer
	flusher http.Flusher
	written int64
	err     error
}

func newStreamWriter(w io.Writer) *streamWriter {
	flusher, _ := w.(http.Flusher)

	return &streamWriter{
		w:       w,
		flusher: flusher,
	}
}

func (sw *streamWriter) write(b []byte) {
	if sw.err != nil {
		return
	}

	n, err := sw.w.Write(b)
	sw.written += int64(n)
	if err != nil {
		sw.err = err
		return
	}

	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

func (sw *streamWriter) printf(format string, args ...any) {
	sw.write([]byte(fmt.Sprintf(format, args...)))
}

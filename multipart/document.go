// package multipart provides the document model, parser and writer
// for multipart/mixed batch bodies and the http messages packaged in their parts
package multipart

import (
	"fmt"
	"io"
	"mime"
)

const (
	MediaTypeMultipartMixed   = "multipart/mixed"
	MediaTypeMultipartRelated = "multipart/related"
	MediaTypeHTTP             = "application/http"

	ContentTypeHeaderKey             = "content-type"
	ContentIDHeaderKey               = "content-id"
	ContentTransferEncodingHeaderKey = "content-transfer-encoding"

	// MaxBoundaryLength is the longest boundary allowed by RFC 2046
	MaxBoundaryLength = 70
)

// Document is one part of a multipart body. A document is either a leaf
// carrying a raw body or a group whose body was itself multipart and has
// been parsed into child documents.
type Document struct {
	Header   Header
	Body     []byte
	Children []*Document

	group bool
}

// NewLeaf creates a leaf document
func NewLeaf(header Header, body []byte) *Document {
	if header == nil {
		header = Header{}
	}

	return &Document{
		Header: header,
		Body:   body,
	}
}

// NewGroup creates a group document holding children
func NewGroup(header Header, children []*Document) *Document {
	if header == nil {
		header = Header{}
	}

	return &Document{
		Header:   header,
		Children: children,
		group:    true,
	}
}

// IsGroup reports whether the document holds child documents rather than a body
func (d *Document) IsGroup() bool {
	return d.group
}

// ContentType returns the raw content-type header value
func (d *Document) ContentType() string {
	return d.Header.Get(ContentTypeHeaderKey)
}

// ContentID returns the identifier the client attached to the part (if any)
func (d *Document) ContentID() string {
	return d.Header.Get(ContentIDHeaderKey)
}

// Boundary returns the boundary declared by the content-type of a group document
func (d *Document) Boundary() (string, error) {
	return BoundaryFromContentType(d.ContentType())
}

// Boundaries returns every boundary declared by the document and its descendants
func (d *Document) Boundaries() []string {
	var boundaries []string

	if !d.group {
		return boundaries
	}

	if boundary, err := d.Boundary(); err == nil {
		boundaries = append(boundaries, boundary)
	}

	for _, child := range d.Children {
		boundaries = append(boundaries, child.Boundaries()...)
	}

	return boundaries
}

// Leaves returns the number of leaf documents in the tree rooted at d
func (d *Document) Leaves() int {
	if !d.group {
		return 1
	}

	leaves := 0
	for _, child := range d.Children {
		leaves += child.Leaves()
	}

	return leaves
}

// IsMultipartMediaType reports whether mediaType frames nested parts
func IsMultipartMediaType(mediaType string) bool {
	return mediaType == MediaTypeMultipartMixed || mediaType == MediaTypeMultipartRelated
}

// BoundaryFromContentType extracts and validates the boundary parameter
// of a multipart content type
func BoundaryFromContentType(contentType string) (string, error) {
	if contentType == "" {
		return "", malformedf("missing content type")
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", malformedf("invalid content type %q: %s", contentType, err)
	}

	if !IsMultipartMediaType(mediaType) {
		return "", malformedf("content type %s is not multipart", mediaType)
	}

	boundary := params["boundary"]
	if boundary == "" {
		return "", ErrMissingBoundary
	}

	if len(boundary) > MaxBoundaryLength {
		return "", malformedf("boundary longer than %d characters", MaxBoundaryLength)
	}

	return boundary, nil
}

// WriteBody writes the multipart body of a group document to w using
// the boundary declared in its content type
func (d *Document) WriteBody(w io.Writer) error {
	if !d.group {
		_, err := w.Write(d.Body)
		return err
	}

	boundary, err := d.Boundary()
	if err != nil {
		return err
	}

	for _, child := range d.Children {
		if _, err := fmt.Fprintf(w, "--%s\r\n", boundary); err != nil {
			return err
		}

		for _, name := range child.Header.Names() {
			for _, value := range child.Header.Values(name) {
				if _, err := fmt.Fprintf(w, "%s: %s\r\n", name, value); err != nil {
					return err
				}
			}
		}

		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return err
		}

		if err := child.WriteBody(w); err != nil {
			return err
		}

		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return err
		}
	}

	_, err = fmt.Fprintf(w, "--%s--\r\n", boundary)

	return err
}

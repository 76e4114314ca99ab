package multipart

import (
	"bytes"
	"mime"
	"strings"
)

// DefaultMaxNestingDepth is the nesting depth used when the caller does not set one
const DefaultMaxNestingDepth = 4

// ParseBatch parses a batch body framed by the boundary of contentType
// into a group document. maxDepth bounds the number of nested multipart
// regions, the top-level region included.
func ParseBatch(contentType string, body []byte, maxDepth int) (*Document, error) {
	boundary, err := BoundaryFromContentType(contentType)
	if err != nil {
		return nil, err
	}

	header := Header{}
	header.Set(ContentTypeHeaderKey, contentType)

	children, err := parseParts(body, boundary, 1, normalizeDepth(maxDepth))
	if err != nil {
		return nil, err
	}

	return NewGroup(header, children), nil
}

// Parse parses a multipart body framed by boundary into its parts
func Parse(body []byte, boundary string, maxDepth int) ([]*Document, error) {
	if boundary == "" {
		return nil, ErrMissingBoundary
	}

	return parseParts(body, boundary, 1, normalizeDepth(maxDepth))
}

func normalizeDepth(maxDepth int) int {
	if maxDepth < 1 {
		return DefaultMaxNestingDepth
	}
	return maxDepth
}

func parseParts(body []byte, boundary string, depth int, maxDepth int) ([]*Document, error) {
	if depth > maxDepth {
		return nil, malformedf("multipart nesting deeper than %d levels", maxDepth)
	}

	delimiter := []byte("--" + boundary)

	start := indexDelimiter(body, delimiter, 0)
	if start < 0 {
		return nil, malformedf("no opening delimiter for boundary %s", boundary)
	}

	parts := make([]*Document, 0)
	pos := start + len(delimiter)

	for {
		if bytes.HasPrefix(body[pos:], []byte("--")) {
			return parts, nil
		}

		// transport padding may follow a delimiter
		for pos < len(body) && (body[pos] == ' ' || body[pos] == '\t') {
			pos++
		}

		lineBreak := lineBreakLength(body[pos:])
		if lineBreak == 0 {
			return nil, malformedf("delimiter for boundary %s not followed by a line break", boundary)
		}
		pos += lineBreak

		next := indexDelimiter(body, delimiter, pos)
		if next < 0 {
			return nil, malformedf("no terminal delimiter for boundary %s", boundary)
		}

		part, err := parsePart(trimTrailingLineBreak(body[pos:next]), depth, maxDepth)
		if err != nil {
			return nil, err
		}

		parts = append(parts, part)
		pos = next + len(delimiter)
	}
}

// indexDelimiter finds the first delimiter at or after from that starts a line
// and is not merely the prefix of a longer boundary
func indexDelimiter(body []byte, delimiter []byte, from int) int {
	for from <= len(body) {
		i := bytes.Index(body[from:], delimiter)
		if i < 0 {
			return -1
		}

		at := from + i
		end := at + len(delimiter)

		atLineStart := at == 0 || body[at-1] == '\n'
		if atLineStart && isDelimiterEnd(body[end:]) {
			return at
		}

		from = at + 1
	}

	return -1
}

func isDelimiterEnd(rest []byte) bool {
	if len(rest) == 0 {
		return true
	}

	switch rest[0] {
	case '\r', '\n', ' ', '\t':
		return true
	case '-':
		return len(rest) > 1 && rest[1] == '-'
	}

	return false
}

func lineBreakLength(b []byte) int {
	if bytes.HasPrefix(b, []byte("\r\n")) {
		return 2
	}
	if bytes.HasPrefix(b, []byte("\n")) {
		return 1
	}
	return 0
}

// trimTrailingLineBreak removes the line break that belongs to the following delimiter
func trimTrailingLineBreak(b []byte) []byte {
	if bytes.HasSuffix(b, []byte("\r\n")) {
		return b[:len(b)-2]
	}
	if bytes.HasSuffix(b, []byte("\n")) {
		return b[:len(b)-1]
	}
	return b
}

func parsePart(content []byte, depth int, maxDepth int) (*Document, error) {
	header, body, err := readHeaderBlock(content, true)
	if err != nil {
		return nil, err
	}

	contentType := header.Get(ContentTypeHeaderKey)
	if contentType == "" {
		return NewLeaf(header, body), nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, malformedf("invalid part content type %q: %s", contentType, err)
	}

	if !IsMultipartMediaType(mediaType) {
		return NewLeaf(header, body), nil
	}

	boundary := params["boundary"]
	if boundary == "" {
		return nil, ErrMissingBoundary
	}

	if len(boundary) > MaxBoundaryLength {
		return nil, malformedf("boundary longer than %d characters", MaxBoundaryLength)
	}

	children, err := parseParts(body, boundary, depth+1, maxDepth)
	if err != nil {
		return nil, err
	}

	if len(children) == 0 {
		return nil, malformedf("nested group with boundary %s has no parts", boundary)
	}

	return NewGroup(header, children), nil
}

// readHeaderBlock splits content into its header lines and the bytes that follow
// the first blank line. When requireTerminator is false running out of input
// also ends the header block.
func readHeaderBlock(content []byte, requireTerminator bool) (Header, []byte, error) {
	header := Header{}
	lastName := ""
	pos := 0

	for {
		newline := bytes.IndexByte(content[pos:], '\n')
		if newline < 0 {
			if requireTerminator {
				return nil, nil, malformedf("part header block is not terminated by a blank line")
			}

			line := strings.TrimRight(string(content[pos:]), "\r")
			if line != "" {
				if err := addHeaderLine(header, line, &lastName); err != nil {
					return nil, nil, err
				}
			}

			return header, nil, nil
		}

		line := strings.TrimRight(string(content[pos:pos+newline]), "\r")
		pos += newline + 1

		if line == "" {
			return header, content[pos:], nil
		}

		if err := addHeaderLine(header, line, &lastName); err != nil {
			return nil, nil, err
		}
	}
}

func addHeaderLine(header Header, line string, lastName *string) error {
	// folded continuation of the previous header
	if line[0] == ' ' || line[0] == '\t' {
		if *lastName == "" {
			return malformedf("header continuation without a header: %q", line)
		}

		values := header[*lastName]
		values[len(values)-1] += " " + strings.TrimSpace(line)

		return nil
	}

	name, value, found := strings.Cut(line, ":")
	name = strings.TrimSpace(name)
	if !found || name == "" {
		return malformedf("invalid header line %q", line)
	}

	header.Add(name, strings.TrimSpace(value))
	*lastName = strings.ToLower(name)

	return nil
}

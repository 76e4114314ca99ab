package multipart

import (
	"bytes"
	"fmt"
	"mime"
	"strconv"
	"strings"
)

const defaultMessageProto = "HTTP/1.1"

// RequestMessage is a request packaged in an application/http part
type RequestMessage struct {
	Method string
	Target string
	Proto  string
	Header Header
	Body   []byte
}

// ResponseMessage is a response packaged in an application/http part
type ResponseMessage struct {
	Proto      string
	StatusCode int
	Status     string
	Header     Header
	Body       []byte
}

// IsHTTPMessage reports whether the leaf document packages an http message
func (d *Document) IsHTTPMessage() bool {
	contentType := d.ContentType()
	if contentType == "" {
		return false
	}

	mediaType, _, err := mime.ParseMediaType(contentType)

	return err == nil && mediaType == MediaTypeHTTP
}

// Request unpacks the request message carried by a leaf document
func (d *Document) Request() (*RequestMessage, error) {
	if d.group {
		return nil, fmt.Errorf("%w: part is a group, not a request", ErrMalformedMessage)
	}

	if !d.IsHTTPMessage() {
		return nil, fmt.Errorf("%w: part content type %q is not %s", ErrMalformedMessage, d.ContentType(), MediaTypeHTTP)
	}

	return ParseRequest(d.Body)
}

// ParseRequest parses a request line, header block and body
func ParseRequest(raw []byte) (*RequestMessage, error) {
	line, rest, err := readStartLine(raw)
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		return nil, fmt.Errorf("%w: invalid request line %q", ErrMalformedMessage, line)
	}

	proto := defaultMessageProto
	if len(fields) == 3 {
		proto = fields[2]
	}

	header, body, err := readHeaderBlock(rest, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return &RequestMessage{
		Method: strings.ToUpper(fields[0]),
		Target: fields[1],
		Proto:  proto,
		Header: header,
		Body:   body,
	}, nil
}

// ParseResponse parses a status line, header block and body
func ParseResponse(raw []byte) (*ResponseMessage, error) {
	line, rest, err := readStartLine(raw)
	if err != nil {
		return nil, err
	}

	proto, status, _ := strings.Cut(line, " ")
	codeText, _, _ := strings.Cut(status, " ")

	code, err := strconv.Atoi(codeText)
	if err != nil || !strings.HasPrefix(proto, "HTTP/") {
		return nil, fmt.Errorf("%w: invalid status line %q", ErrMalformedMessage, line)
	}

	header, body, err := readHeaderBlock(rest, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return &ResponseMessage{
		Proto:      proto,
		StatusCode: code,
		Status:     status,
		Header:     header,
		Body:       body,
	}, nil
}

// readStartLine skips leading blank lines and returns the first line and what follows it
func readStartLine(raw []byte) (string, []byte, error) {
	for {
		n := lineBreakLength(raw)
		if n == 0 {
			break
		}
		raw = raw[n:]
	}

	if len(raw) == 0 {
		return "", nil, fmt.Errorf("%w: empty message", ErrMalformedMessage)
	}

	newline := bytes.IndexByte(raw, '\n')
	if newline < 0 {
		return strings.TrimRight(string(raw), "\r"), nil, nil
	}

	return strings.TrimRight(string(raw[:newline]), "\r"), raw[newline+1:], nil
}

// Bytes serializes the request message
func (m *RequestMessage) Bytes() []byte {
	proto := m.Proto
	if proto == "" {
		proto = defaultMessageProto
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s %s\r\n", m.Method, m.Target, proto)
	writeHeader(&buf, m.Header)
	buf.WriteString("\r\n")
	buf.Write(m.Body)

	return buf.Bytes()
}

// NewRequestPart packages a request message into an application/http leaf,
// tagging it with contentID when it is not empty
func NewRequestPart(message *RequestMessage, contentID string) *Document {
	header := Header{}
	header.Set(ContentTypeHeaderKey, MediaTypeHTTP)
	header.Set(ContentTransferEncodingHeaderKey, "binary")

	if contentID != "" {
		header.Set(ContentIDHeaderKey, contentID)
	}

	return NewLeaf(header, message.Bytes())
}

// NewGroupPart creates a nested group framed by boundary
func NewGroupPart(boundary string, children ...*Document) *Document {
	header := Header{}
	header.Set(ContentTypeHeaderKey, fmt.Sprintf("%s;boundary=%s", MediaTypeMultipartMixed, boundary))

	return NewGroup(header, children)
}

func writeHeader(buf *bytes.Buffer, header Header) {
	for _, name := range header.Names() {
		for _, value := range header.Values(name) {
			fmt.Fprintf(buf, "%s: %s\r\n", name, value)
		}
	}
}

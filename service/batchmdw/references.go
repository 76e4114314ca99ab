package batchmdw

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kava-labs/kava-batch-service/protocol"
)

// ReferenceMarker starts a reference to the resource created by an earlier part
const ReferenceMarker = "$"

var (
	ErrUnresolvedReference = errors.New("unresolved reference")
	ErrDuplicateReference  = errors.New("duplicate reference")

	// system segments and query options share the reference marker
	// but never refer to an earlier part
	systemSegments = map[string]bool{
		"all": true, "apply": true, "batch": true, "compute": true, "count": true,
		"crossjoin": true, "deltatoken": true, "each": true, "entity": true, "expand": true,
		"filter": true, "format": true, "id": true, "index": true, "levels": true,
		"metadata": true, "orderby": true, "query": true, "ref": true, "root": true,
		"schemaversion": true, "search": true, "select": true, "skip": true,
		"skiptoken": true, "top": true, "value": true,
	}
)

// ReferenceTable maps the content ids of parts that completed successfully
// to the URL of the resource each of them addressed. A table lives for a
// single batch.
type ReferenceTable struct {
	urls map[string]string
}

// NewReferenceTable creates an empty reference table
func NewReferenceTable() *ReferenceTable {
	return &ReferenceTable{
		urls: make(map[string]string),
	}
}

// Record maps id to url, returning false without changing the table if id is already mapped
func (t *ReferenceTable) Record(id string, url string) bool {
	if _, exists := t.urls[id]; exists {
		return false
	}

	t.urls[id] = url

	return true
}

// Lookup returns the url recorded for id
func (t *ReferenceTable) Lookup(id string) (string, bool) {
	url, found := t.urls[id]
	return url, found
}

// Len returns the number of recorded references
func (t *ReferenceTable) Len() int {
	return len(t.urls)
}

// ResolveTarget substitutes a reference in the first path segment of target.
// A target such as `$1/Orders` becomes `<url of 1>/Orders`.
func (t *ReferenceTable) ResolveTarget(target string) (string, error) {
	rest := strings.TrimPrefix(target, "/")
	leadingSlash := len(rest) != len(target)

	if !strings.HasPrefix(rest, ReferenceMarker) {
		return target, nil
	}

	id, suffix := splitIdentifier(rest[len(ReferenceMarker):])
	if id == "" {
		return target, nil
	}

	url, found := t.urls[id]
	if !found {
		if isSystemSegment(id) {
			return target, nil
		}
		return "", unresolvedReferenceError(id)
	}

	if leadingSlash && !strings.HasPrefix(url, "/") && !strings.Contains(url, "://") {
		return "/" + url + suffix, nil
	}

	return url + suffix, nil
}

// ResolveBody substitutes references found at the start of JSON string
// values in body. Object keys and text after the first character of a
// string are left as they are.
func (t *ReferenceTable) ResolveBody(body []byte) ([]byte, error) {
	var resolved bytes.Buffer
	written := 0

	for i := 0; i < len(body); i++ {
		if body[i] != '"' {
			continue
		}

		end := jsonStringEnd(body, i)
		if end < 0 {
			break
		}

		content := body[i+1 : end]
		if bytes.HasPrefix(content, []byte(ReferenceMarker)) && !isObjectKey(body, end+1) {
			id, _ := splitIdentifier(string(content[len(ReferenceMarker):]))

			if id != "" {
				url, found := t.urls[id]
				if !found {
					if !isSystemSegment(id) {
						return nil, unresolvedReferenceError(id)
					}
				} else {
					encoded, err := json.Marshal(url)
					if err != nil {
						return nil, err
					}

					resolved.Write(body[written:i])
					// keep the rest of the string, drop the closing quote of the encoding
					resolved.Write(encoded[:len(encoded)-1])
					written = i + 1 + len(ReferenceMarker) + len(id)
				}
			}
		}

		i = end
	}

	if written == 0 {
		return body, nil
	}

	resolved.Write(body[written:])

	return resolved.Bytes(), nil
}

// jsonStringEnd returns the index of the quote closing the string opened at start, or -1
func jsonStringEnd(body []byte, start int) int {
	for i := start + 1; i < len(body); i++ {
		switch body[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

// isObjectKey reports whether the string ending before from is followed by a colon
func isObjectKey(body []byte, from int) bool {
	for i := from; i < len(body); i++ {
		switch body[i] {
		case ' ', '\t', '\r', '\n':
			continue
		case ':':
			return true
		}
		return false
	}
	return false
}

func splitIdentifier(s string) (string, string) {
	end := strings.IndexFunc(s, func(r rune) bool {
		return !isIdentifierRune(r)
	})
	if end < 0 {
		return s, ""
	}
	return s[:end], s[end:]
}

func isIdentifierRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '~', r == '-':
		return true
	}
	return false
}

func isSystemSegment(id string) bool {
	return systemSegments[strings.ToLower(id)]
}

func unresolvedReferenceError(id string) *protocol.Error {
	return protocol.NewBadRequestError(
		"unresolved_reference",
		fmt.Sprintf("the reference %s%s does not match any earlier request in the batch", ReferenceMarker, id),
	).Wrap(ErrUnresolvedReference)
}

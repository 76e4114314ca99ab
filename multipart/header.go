package multipart

import (
	"sort"
	"strings"
)

// Header maps lower-cased header names to their values in the order they appeared
type Header map[string][]string

// Add appends value to the values of name
func (h Header) Add(name string, value string) {
	key := strings.ToLower(name)
	h[key] = append(h[key], value)
}

// Set replaces the values of name with value
func (h Header) Set(name string, value string) {
	h[strings.ToLower(name)] = []string{value}
}

// Get returns the first value of name or "" if there is none
func (h Header) Get(name string) string {
	values := h[strings.ToLower(name)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Values returns every value of name in order
func (h Header) Values(name string) []string {
	return h[strings.ToLower(name)]
}

// Has reports whether name is present
func (h Header) Has(name string) bool {
	_, ok := h[strings.ToLower(name)]
	return ok
}

// Del removes name
func (h Header) Del(name string) {
	delete(h, strings.ToLower(name))
}

// Names returns the header names sorted
func (h Header) Names() []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the header
func (h Header) Clone() Header {
	clone := make(Header, len(h))
	for name, values := range h {
		clone[name] = append([]string(nil), values...)
	}
	return clone
}

package trigger

import (
	"net/http"
	"sort"
	"strings"
)

// HeaderSource enumerates raw, case-sensitive header names and their values.
// A name may appear more than once with different casing.
type HeaderSource interface {
	Names() []string
	Values(name string) []string
}

// Headers maps lower-cased header names to their values in the order received.
// It is built once per request and must not be mutated afterwards.
type Headers map[string][]string

// First returns the first value for name, looked up case-insensitively.
// An empty value list counts as absent.
func (h Headers) First(name string) (string, bool) {
	values := h[strings.ToLower(name)]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// NormalizeHeaders lower-cases every header name and merges values of names
// that differ only by case. Values are neither trimmed nor validated.
func NormalizeHeaders(src HeaderSource) Headers {
	headers := make(Headers)
	if src == nil {
		return headers
	}
	for _, name := range src.Names() {
		key := strings.ToLower(name)
		headers[key] = append(headers[key], src.Values(name)...)
	}
	return headers
}

// httpHeaderSource exposes a net/http header map without canonicalising names.
// Names are enumerated in sorted order so merges are deterministic.
type httpHeaderSource http.Header

// HTTPHeaders adapts an http.Header for NormalizeHeaders.
func HTTPHeaders(h http.Header) HeaderSource {
	return httpHeaderSource(h)
}

func (s httpHeaderSource) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s httpHeaderSource) Values(name string) []string {
	return s[name]
}

// Package header implements the ordered, case-insensitive header set used
// when building and signing S3 requests.
package header

import (
	"net/http"
	"sort"
	"strings"
)

// Field is a single header line as the caller supplied it.
type Field struct {
	Key   string
	Value string
}

// Headers is a set of header fields keyed by lower-cased name. Fields are
// kept sorted by that name, so iteration order never depends on insertion
// order. The zero value is an empty set ready to use.
type Headers struct {
	fields []Field
}

// New returns an empty header set.
func New() *Headers {
	return &Headers{}
}

// FromHTTP copies an http.Header, keeping the first value of every key.
func FromHTTP(src http.Header) *Headers {
	h := New()
	for k, vv := range src {
		if len(vv) > 0 {
			h.Set(k, vv[0])
		}
	}
	return h
}

func canonical(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// search returns the position of key (or where it would be inserted) and
// whether it is present.
func (h *Headers) search(key string) (int, bool) {
	lk := canonical(key)
	i := sort.Search(len(h.fields), func(i int) bool {
		return canonical(h.fields[i].Key) >= lk
	})
	return i, i < len(h.fields) && canonical(h.fields[i].Key) == lk
}

// Set stores key=value, replacing any existing field with the same name.
func (h *Headers) Set(key, value string) {
	i, ok := h.search(key)
	if ok {
		h.fields[i] = Field{Key: key, Value: value}
		return
	}
	h.fields = append(h.fields, Field{})
	copy(h.fields[i+1:], h.fields[i:])
	h.fields[i] = Field{Key: key, Value: value}
}

// SetDefault stores key=value only when no field with that name exists.
// It reports whether the field was added.
func (h *Headers) SetDefault(key, value string) bool {
	if h.Has(key) {
		return false
	}
	h.Set(key, value)
	return true
}

// Get returns the value stored under key.
func (h *Headers) Get(key string) (string, bool) {
	if h == nil {
		return "", false
	}
	i, ok := h.search(key)
	if !ok {
		return "", false
	}
	return h.fields[i].Value, true
}

// Value returns the value stored under key, or "" when absent.
func (h *Headers) Value(key string) string {
	v, _ := h.Get(key)
	return v
}

// Has reports whether a field with that name exists.
func (h *Headers) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Del removes the field with that name, if any.
func (h *Headers) Del(key string) {
	i, ok := h.search(key)
	if !ok {
		return
	}
	h.fields = append(h.fields[:i], h.fields[i+1:]...)
}

// Len returns the number of fields.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.fields)
}

// Fields returns a copy of the fields in order.
func (h *Headers) Fields() []Field {
	if h == nil {
		return nil
	}
	out := make([]Field, len(h.fields))
	copy(out, h.fields)
	return out
}

// Clone returns an independent copy.
func (h *Headers) Clone() *Headers {
	return &Headers{fields: h.Fields()}
}

// Reset removes every field.
func (h *Headers) Reset() {
	h.fields = nil
}

// Size is the sum of key and value lengths, the figure used for byte
// accounting on the wire.
func (h *Headers) Size() int {
	if h == nil {
		return 0
	}
	n := 0
	for _, f := range h.fields {
		n += len(f.Key) + len(f.Value)
	}
	return n
}

// Apply writes every field onto req. Host is routed to req.Host because
// net/http ignores it in the header map.
func (h *Headers) Apply(req *http.Request) {
	for _, f := range h.Fields() {
		if canonical(f.Key) == "host" {
			req.Host = f.Value
			continue
		}
		req.Header[http.CanonicalHeaderKey(f.Key)] = []string{f.Value}
	}
}

// HTTPSize sums key and value lengths of an http.Header.
func HTTPSize(src http.Header) int {
	n := 0
	for k, vv := range src {
		for _, v := range vv {
			n += len(k) + len(v)
		}
	}
	return n
}

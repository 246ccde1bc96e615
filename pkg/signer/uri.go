package signer

import (
	"net/url"
	"sort"
	"strings"
)

const upperhex = "0123456789ABCDEF"

func unreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// Escape percent-encodes everything outside the S3 unreserved set.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func escapeSegments(path string, decode bool) string {
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		if decode {
			if d, err := url.PathUnescape(seg); err == nil {
				seg = d
			}
		}
		segs[i] = Escape(seg)
	}
	return strings.Join(segs, "/")
}

// EscapePath escapes a raw resource path segment by segment. A query part
// after the first '?' is passed through untouched so sub-resources such as
// "?acl" survive.
func EscapePath(resource string) string {
	path, query, hasQuery := strings.Cut(resource, "?")
	out := escapeSegments(path, false)
	if hasQuery {
		out += "?" + query
	}
	return out
}

// CanonicalURI normalises an already escaped path: every segment is
// decoded and re-encoded so equivalent spellings sign identically.
func CanonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	return escapeSegments(path, true)
}

// CanonicalQuery sorts the query parameters by key, then value, and
// re-encodes them. Valueless parameters render as "key=".
func CanonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}

	type pair struct{ k, v string }
	var pairs []pair
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		if d, err := url.QueryUnescape(k); err == nil {
			k = d
		}
		if d, err := url.QueryUnescape(v); err == nil {
			v = d
		}
		pairs = append(pairs, pair{Escape(k), Escape(v)})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.k + "=" + p.v
	}
	return strings.Join(out, "&")
}

package header_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3conn/pkg/header"
)

func keys(h *header.Headers) []string {
	var out []string
	for _, f := range h.Fields() {
		out = append(out, f.Key)
	}
	return out
}

func TestHeaders_SortedByLowerCaseName(t *testing.T) {
	h := header.New()
	h.Set("x-amz-meta-b", "2")
	h.Set("Content-Type", "text/plain")
	h.Set("X-Amz-Acl", "private")
	h.Set("content-md5", "abc")

	assert.Equal(t, []string{"content-md5", "Content-Type", "X-Amz-Acl", "x-amz-meta-b"}, keys(h))
}

func TestHeaders_SetReplacesCaseInsensitively(t *testing.T) {
	h := header.New()
	h.Set("Content-Type", "text/plain")
	h.Set("content-type", "application/xml")

	require.Equal(t, 1, h.Len())
	v, ok := h.Get("CONTENT-TYPE")
	assert.True(t, ok)
	assert.Equal(t, "application/xml", v)
}

func TestHeaders_SetDefaultKeepsCallerValue(t *testing.T) {
	h := header.New()
	h.Set("host", "custom.example.com")

	assert.False(t, h.SetDefault("Host", "s3.amazonaws.com"))
	assert.True(t, h.SetDefault("Connection", "keep-alive"))
	assert.Equal(t, "custom.example.com", h.Value("Host"))
	assert.Equal(t, "keep-alive", h.Value("connection"))
}

func TestHeaders_DelCloneReset(t *testing.T) {
	h := header.New()
	h.Set("A", "1")
	h.Set("B", "2")

	c := h.Clone()
	h.Del("a")
	assert.False(t, h.Has("A"))
	assert.True(t, c.Has("A"), "clone must be independent")

	h.Reset()
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 2, c.Len())
}

func TestHeaders_ZeroValueAndNil(t *testing.T) {
	var h header.Headers
	h.Set("k", "v")
	assert.Equal(t, 1, h.Len())

	var nilH *header.Headers
	assert.Equal(t, 0, nilH.Len())
	assert.Equal(t, 0, nilH.Size())
	assert.False(t, nilH.Has("k"))
}

func TestHeaders_Size(t *testing.T) {
	h := header.New()
	h.Set("Host", "example.com")
	h.Set("Range", "bytes=0-9")
	assert.Equal(t, len("Host")+len("example.com")+len("Range")+len("bytes=0-9"), h.Size())

	src := http.Header{"Etag": {"abc"}, "X-Multi": {"1", "22"}}
	assert.Equal(t, 4+3+7+1+7+2, header.HTTPSize(src))
}

func TestHeaders_Apply(t *testing.T) {
	h := header.New()
	h.Set("Host", "bucket.example.com")
	h.Set("x-amz-date", "20130524T000000Z")

	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1/obj", http.NoBody)
	require.NoError(t, err)
	h.Apply(req)

	assert.Equal(t, "bucket.example.com", req.Host)
	assert.Empty(t, req.Header.Get("Host"))
	assert.Equal(t, "20130524T000000Z", req.Header.Get("X-Amz-Date"))
}

func TestFromHTTP(t *testing.T) {
	h := header.FromHTTP(http.Header{"Location": {"http://a", "http://b"}, "Empty": {}})
	assert.Equal(t, "http://a", h.Value("location"))
	assert.False(t, h.Has("Empty"))
}

package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEndpoint(t *testing.T, srvURL string) {
	t.Helper()
	u, err := url.Parse(srvURL)
	require.NoError(t, err)
	t.Setenv("S3CONN_HOST", u.Hostname())
	t.Setenv("S3CONN_PORT", u.Port())
	t.Setenv("S3CONN_SSL", "false")
	t.Setenv("S3CONN_BUCKET", "bucket")
	t.Setenv("S3CONN_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("S3CONN_SECRET_ACCESS_KEY", "secret")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders([]string{"Range: bytes=0-9", "x-amz-meta-a:b "})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Range": "bytes=0-9", "x-amz-meta-a": "b"}, h)

	_, err = parseHeaders([]string{"no colon"})
	assert.Error(t, err)
}

func TestReadBody(t *testing.T) {
	b, err := readBody("")
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = readBody("inline")
	require.NoError(t, err)
	assert.Equal(t, []byte("inline"), b)

	path := filepath.Join(t.TempDir(), "body.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o644))
	b, err = readBody("@" + path)
	require.NoError(t, err)
	assert.Equal(t, []byte("from file"), b)

	_, err = readBody("@" + filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestObjectPath(t *testing.T) {
	assert.Equal(t, "/a/b", objectPath("a/b"))
	assert.Equal(t, "/a/b", objectPath("/a/b"))
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()

	got, err := outputPath(dir, "/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a", "b.txt"), got)

	for _, key := range []string{"../../x", "/a/../../x", "..", ""} {
		_, err := outputPath(dir, key)
		assert.Error(t, err, key)
	}
}

func TestSignCommand(t *testing.T) {
	setEndpoint(t, "http://127.0.0.1:9000")

	out, err := execute(t, "sign", "GET", "/key", "--date", "20240506T070809Z")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out,
		"AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20240506/us-east-1/s3/aws4_request"), out)

	again, err := execute(t, "sign", "GET", "/key", "--date", "20240506T070809Z")
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestRequestCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bucket/key", r.URL.Path)
		assert.Equal(t, "bytes=0-4", r.Header.Get("Range"))
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()
	setEndpoint(t, srv.URL)

	out, err := execute(t, "request", "get", "/key", "-H", "Range: bytes=0-4")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestGetCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("body of " + strings.TrimPrefix(r.URL.Path, "/bucket/")))
	}))
	defer srv.Close()
	setEndpoint(t, srv.URL)

	dir := t.TempDir()
	out, err := execute(t, "get", "a.txt", "dir/b.txt", "-o", dir, "-j", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "dir/b.txt")

	data, err := os.ReadFile(filepath.Join(dir, "dir", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "body of dir/b.txt", string(data))
}

func TestGetCommand_RejectsEscapingKey(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()
	setEndpoint(t, srv.URL)

	parent := t.TempDir()
	dir := filepath.Join(parent, "out")
	_, err := execute(t, "get", "../../escaped.txt", "-o", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes the output directory")
	assert.Zero(t, hits)
	assert.NoFileExists(t, filepath.Join(parent, "escaped.txt"))
}

func TestProbeCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
	}))
	defer srv.Close()
	setEndpoint(t, srv.URL)

	out, err := execute(t, "probe")
	require.NoError(t, err)
	assert.Contains(t, out, "reachable")
	assert.Contains(t, out, srv.URL)
}

func TestHistoryCommand_NoPath(t *testing.T) {
	setEndpoint(t, "http://127.0.0.1:9000")

	out, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No history file configured")
}

package signer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/s3conn/pkg/header"
)

// AlgorithmV4 tags the V4 string-to-sign and Authorization header.
const AlgorithmV4 = "AWS4-HMAC-SHA256"

// V4 is the canonical-request scheme.
type V4 struct {
	Credentials
	Region string
}

// Name implements Signer.
func (s *V4) Name() string {
	return "v4"
}

func (s *V4) region() string {
	if s.Region == "" {
		return defaultRegion
	}
	return s.Region
}

// requestTime prefers the x-amz-date header so the scope always matches
// what the server sees.
func requestTime(h *header.Headers, t time.Time) time.Time {
	if v := h.Value("x-amz-date"); v != "" {
		if parsed, err := time.Parse(TimeFormatV4, v); err == nil {
			return parsed
		}
	}
	return t.UTC()
}

// Sign implements Signer.
func (s *V4) Sign(req *Request, t time.Time) (string, error) {
	if err := s.validate(); err != nil {
		return "", err
	}

	t = requestTime(req.Header, t)
	_, signed := CanonicalHeaders(req.Header)
	scope := CredentialScope(t, s.region())
	sts := StringToSign(t, scope, CanonicalRequest(req))
	key := SigningKey(s.SecretAccessKey, t, s.region())
	signature := hex.EncodeToString(hmacSHA256(key, sts))

	return fmt.Sprintf("%s Credential=%s/%s,SignedHeaders=%s,Signature=%s",
		AlgorithmV4, s.AccessKeyID, scope, signed, signature), nil
}

// CanonicalHeaders returns the canonical header block (one lower-cased,
// trimmed name:value line per header, sorted by name, each line newline
// terminated) and the matching semicolon-separated signed header list.
func CanonicalHeaders(h *header.Headers) (block, signed string) {
	fields := h.Fields()
	names := make([]string, 0, len(fields))
	values := make(map[string]string, len(fields))

	for _, f := range fields {
		name := strings.ToLower(strings.TrimSpace(f.Key))
		if hopByHop[name] {
			continue
		}
		names = append(names, name)
		values[name] = strings.Join(strings.Fields(f.Value), " ")
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name + ":" + values[name] + "\n")
	}

	return b.String(), strings.Join(names, ";")
}

// hopByHop headers may be dropped or rewritten between client and server
// (HTTP/2 never carries them), so they are never signed.
var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-connection":    true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"te":                  true,
	"trailer":             true,
	"proxy-authorization": true,
}

// CanonicalRequest builds the V4 canonical request string.
func CanonicalRequest(req *Request) string {
	path, query, _ := strings.Cut(req.URI, "?")
	block, signed := CanonicalHeaders(req.Header)

	payload := req.Header.Value("x-amz-content-sha256")
	if payload == "" {
		payload = EmptyPayloadHash
	}

	return strings.Join([]string{
		req.Method,
		CanonicalURI(path),
		CanonicalQuery(query),
		block,
		signed,
		payload,
	}, "\n")
}

// CredentialScope returns date/region/s3/aws4_request.
func CredentialScope(t time.Time, region string) string {
	return strings.Join([]string{t.UTC().Format(DateFormatV4), region, ServiceName, "aws4_request"}, "/")
}

// StringToSign hashes the canonical request into the V4 string-to-sign.
func StringToSign(t time.Time, scope, canonicalRequest string) string {
	sum := sha256.Sum256([]byte(canonicalRequest))
	return strings.Join([]string{
		AlgorithmV4,
		t.UTC().Format(TimeFormatV4),
		scope,
		hex.EncodeToString(sum[:]),
	}, "\n")
}

// SigningKey derives the per-day, per-region signing key.
func SigningKey(secret string, t time.Time, region string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), t.UTC().Format(DateFormatV4))
	k = hmacSHA256(k, region)
	k = hmacSHA256(k, ServiceName)
	return hmacSHA256(k, "aws4_request")
}

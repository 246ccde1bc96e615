// Package signer computes the Authorization header value for S3 requests.
//
// Two schemes are supported: the legacy HMAC-SHA1 scheme (V2) and the
// canonical-request scheme (V4). Both are pure: the only time source is the
// timestamp passed by the caller, so identical inputs always produce
// identical output.
package signer

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/s3conn/pkg/header"
)

const (
	// ServiceName is the fixed service component of the V4 credential scope.
	ServiceName = "s3"

	// EmptyPayloadHash is hex(sha256("")).
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	// TimeFormatV4 is the ISO 8601 basic format used by x-amz-date.
	TimeFormatV4 = "20060102T150405Z"
	// DateFormatV4 is the date component of the credential scope.
	DateFormatV4 = "20060102"

	defaultRegion = "us-east-1"
)

// ErrMissingCredentials is returned when the access key or secret is empty.
// It is a configuration error and never worth retrying.
var ErrMissingCredentials = errors.New("signer: missing access key id or secret access key")

// Credentials is a static access key pair.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

func (c Credentials) validate() error {
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Request is the signing input.
type Request struct {
	Method string
	// Resource is the escaped resource path relative to the bucket,
	// optionally followed by a sub-resource query ("/key", "/?acl").
	Resource string
	// URI is the escaped path and query exactly as sent on the wire.
	URI    string
	Header *header.Headers
}

// Signer produces an Authorization header value.
type Signer interface {
	Sign(req *Request, t time.Time) (string, error)
	Name() string
}

// New returns the V4 signer when useV4 is set and the legacy signer otherwise.
func New(useV4 bool, creds Credentials, bucket, region string) Signer {
	if useV4 {
		return &V4{Credentials: creds, Region: region}
	}
	return &V2{Credentials: creds, Bucket: bucket}
}

// FormatDate renders t the way the legacy scheme and the Date header expect.
func FormatDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// FormatAmzDate renders t as an x-amz-date value.
func FormatAmzDate(t time.Time) string {
	return t.UTC().Format(TimeFormatV4)
}

// HashPayload returns hex(sha256(body)), the x-amz-content-sha256 value.
func HashPayload(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	m := hmac.New(sha256.New, key)
	m.Write([]byte(data))
	return m.Sum(nil)
}

func hmacSHA1(key []byte, data string) []byte {
	m := hmac.New(sha1.New, key)
	m.Write([]byte(data))
	return m.Sum(nil)
}

package signer

import (
	"encoding/base64"
	"strings"
	"time"
)

// V2 is the legacy HMAC-SHA1 scheme.
type V2 struct {
	Credentials
	Bucket string
}

// Name implements Signer.
func (s *V2) Name() string {
	return "v2"
}

// Sign implements Signer. The date line is taken from the Date header when
// present, otherwise t is formatted.
func (s *V2) Sign(req *Request, t time.Time) (string, error) {
	if err := s.validate(); err != nil {
		return "", err
	}

	date := req.Header.Value("Date")
	if date == "" {
		date = FormatDate(t)
	}

	mac := hmacSHA1([]byte(s.SecretAccessKey), s.StringToSign(req, date))
	return "AWS " + s.AccessKeyID + ":" + base64.StdEncoding.EncodeToString(mac), nil
}

// StringToSign builds the legacy string-to-sign.
func (s *V2) StringToSign(req *Request, date string) string {
	var b strings.Builder

	b.WriteString(req.Method + "\n")
	b.WriteString(req.Header.Value("Content-MD5") + "\n")
	b.WriteString(req.Header.Value("Content-Type") + "\n")
	b.WriteString(date + "\n")

	for _, f := range req.Header.Fields() {
		if strings.HasPrefix(strings.ToLower(f.Key), "x-amz-") {
			b.WriteString(f.Key + ":" + f.Value + "\n")
		}
	}

	b.WriteString(s.CanonicalResource(req.Resource))
	return b.String()
}

// CanonicalResource returns /bucket + resource. A bare sub-resource query
// is kept only for acl, versioning and versions; any other one collapses
// to the bucket root.
func (s *V2) CanonicalResource(resource string) string {
	if len(resource) > 2 && resource[1] == '?' {
		if strings.Contains(resource, "?acl") ||
			strings.Contains(resource, "?versioning") ||
			strings.Contains(resource, "?versions") {
			return "/" + s.Bucket + resource
		}
		return "/" + s.Bucket + "/"
	}
	return "/" + s.Bucket + resource
}

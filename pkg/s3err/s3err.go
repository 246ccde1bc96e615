// Package s3err pulls the two fields the client cares about out of an S3
// XML error document. Anything that does not parse simply yields no value.
package s3err

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// Document mirrors the <Error> element returned by S3.
type Document struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Endpoint  string   `xml:"Endpoint"`
	Bucket    string   `xml:"Bucket"`
	RequestID string   `xml:"RequestId"`
}

// Parse decodes body as an error document.
func Parse(body []byte) (*Document, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, false
	}

	var doc Document
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, false
	}
	return &doc, true
}

func field(body []byte, get func(*Document) string) (string, bool) {
	doc, ok := Parse(body)
	if !ok {
		return "", false
	}
	v := strings.TrimSpace(get(doc))
	return v, v != ""
}

// ExtractErrorMessage returns /Error/Message.
func ExtractErrorMessage(body []byte) (string, bool) {
	return field(body, func(d *Document) string { return d.Message })
}

// ExtractRedirectEndpoint returns /Error/Endpoint.
func ExtractRedirectEndpoint(body []byte) (string, bool) {
	return field(body, func(d *Document) string { return d.Endpoint })
}

// Parser is the extraction seam used by the connection.
type Parser interface {
	ErrorMessage(body []byte) (string, bool)
	RedirectEndpoint(body []byte) (string, bool)
}

type xmlParser struct{}

func (xmlParser) ErrorMessage(body []byte) (string, bool)     { return ExtractErrorMessage(body) }
func (xmlParser) RedirectEndpoint(body []byte) (string, bool) { return ExtractRedirectEndpoint(body) }

// Default is the encoding/xml backed Parser.
var Default Parser = xmlParser{}

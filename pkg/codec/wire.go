package codec

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/tapedeck/pkg/tape"
)

// Body encodings.
const (
	EncodingUTF8   = "utf8"
	EncodingBase64 = "base64"
)

// text is a free-form value (a body or header value) that must read back
// byte for byte. yaml.v3 picks a block style for multi-line strings that it
// cannot always parse again, so anything outside the safe subset is
// written double-quoted.
type text string

func (t text) MarshalYAML() (interface{}, error) {
	s := string(t)
	if yamlSafe(s) {
		return s, nil
	}
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!str",
		Style: yaml.DoubleQuotedStyle,
		Value: s,
	}, nil
}

// yamlSafe reports whether yaml.v3's default style for s round-trips:
// printable runes and line feeds only, no leading or trailing blanks, and at
// most one trailing line feed.
func yamlSafe(s string) bool {
	if s == "" {
		return true
	}
	if s[0] == ' ' || s[0] == '\n' || strings.HasSuffix(s, " ") || strings.HasSuffix(s, "\n\n") {
		return false
	}
	for _, r := range s {
		if r != '\n' && !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

type wireDocument struct {
	Version      string            `json:"version" yaml:"version"`
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	Interactions []wireInteraction `json:"interactions" yaml:"interactions"`
}

type wireInteraction struct {
	ID       string       `json:"id" yaml:"id"`
	Recorded string       `json:"recorded" yaml:"recorded"`
	Duration string       `json:"duration,omitempty" yaml:"duration,omitempty"`
	Request  wireRequest  `json:"request" yaml:"request"`
	Response wireResponse `json:"response" yaml:"response"`
}

type wireRequest struct {
	Method       string            `json:"method" yaml:"method"`
	URL          string            `json:"url" yaml:"url"`
	Headers      map[string][]text `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body         text              `json:"body,omitempty" yaml:"body,omitempty"`
	BodyEncoding string            `json:"bodyEncoding,omitempty" yaml:"bodyEncoding,omitempty"`
}

type wireResponse struct {
	Status       int               `json:"status" yaml:"status"`
	StatusText   string            `json:"statusText,omitempty" yaml:"statusText,omitempty"`
	Headers      map[string][]text `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body         text              `json:"body,omitempty" yaml:"body,omitempty"`
	BodyEncoding string            `json:"bodyEncoding,omitempty" yaml:"bodyEncoding,omitempty"`
}

func toWire(doc *tape.Document) *wireDocument {
	w := &wireDocument{
		Version:      doc.Version,
		Name:         doc.Name,
		Interactions: make([]wireInteraction, 0, len(doc.Interactions)),
	}
	if w.Version == "" {
		w.Version = tape.FormatVersion
	}

	for _, in := range doc.Interactions {
		wi := wireInteraction{
			ID:       in.ID,
			Recorded: in.Recorded.UTC().Format(time.RFC3339Nano),
			Request: wireRequest{
				Method:  in.Request.Method,
				URL:     in.Request.URL,
				Headers: fromHeader(in.Request.Headers),
			},
			Response: wireResponse{
				Status:     in.Response.StatusCode,
				StatusText: in.Response.Status,
				Headers:    fromHeader(in.Response.Headers),
			},
		}
		if in.Duration != 0 {
			wi.Duration = in.Duration.String()
		}
		wi.Request.Body, wi.Request.BodyEncoding = encodeBody(in.Request.Body)
		wi.Response.Body, wi.Response.BodyEncoding = encodeBody(in.Response.Body)
		w.Interactions = append(w.Interactions, wi)
	}
	return w
}

func fromWire(w *wireDocument) (*tape.Document, error) {
	doc := &tape.Document{
		Version:      w.Version,
		Name:         w.Name,
		Interactions: make([]tape.Interaction, 0, len(w.Interactions)),
	}

	for i, wi := range w.Interactions {
		recorded, err := time.Parse(time.RFC3339Nano, wi.Recorded)
		if err != nil {
			return nil, fmt.Errorf("interaction %d: invalid recorded time: %w", i, err)
		}

		var duration time.Duration
		if wi.Duration != "" {
			if duration, err = time.ParseDuration(wi.Duration); err != nil {
				return nil, fmt.Errorf("interaction %d: invalid duration: %w", i, err)
			}
		}

		reqBody, err := decodeBody(wi.Request.Body, wi.Request.BodyEncoding)
		if err != nil {
			return nil, fmt.Errorf("interaction %d: request body: %w", i, err)
		}
		respBody, err := decodeBody(wi.Response.Body, wi.Response.BodyEncoding)
		if err != nil {
			return nil, fmt.Errorf("interaction %d: response body: %w", i, err)
		}

		doc.Interactions = append(doc.Interactions, tape.Interaction{
			ID:       wi.ID,
			Recorded: recorded.UTC(),
			Duration: duration,
			Request: tape.Request{
				Method:  wi.Request.Method,
				URL:     wi.Request.URL,
				Headers: toHeader(wi.Request.Headers),
				Body:    reqBody,
			},
			Response: tape.Response{
				StatusCode: wi.Response.Status,
				Status:     wi.Response.StatusText,
				Headers:    toHeader(wi.Response.Headers),
				Body:       respBody,
			},
		})
	}
	return doc, nil
}

func encodeBody(b []byte) (text, string) {
	if len(b) == 0 {
		return "", ""
	}
	if utf8.Valid(b) {
		return text(b), ""
	}
	return text(base64.StdEncoding.EncodeToString(b)), EncodingBase64
}

func decodeBody(s text, encoding string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	switch encoding {
	case "", EncodingUTF8:
		return []byte(s), nil
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(string(s))
	default:
		return nil, fmt.Errorf("unknown body encoding %q", encoding)
	}
}

// fromHeader converts headers to their wire form. A name with no values is
// written as an empty list.
func fromHeader(h http.Header) map[string][]text {
	if len(h) == 0 {
		return nil
	}
	m := make(map[string][]text, len(h))
	for k, v := range h {
		vals := make([]text, len(v))
		for i, s := range v {
			vals[i] = text(s)
		}
		m[k] = vals
	}
	return m
}

func toHeader(m map[string][]text) http.Header {
	if len(m) == 0 {
		return nil
	}
	h := make(http.Header, len(m))
	for k, v := range m {
		vals := make([]string, len(v))
		for i, s := range v {
			vals[i] = string(s)
		}
		h[k] = vals
	}
	return h
}

package tape

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Request describes a recorded or live HTTP request.
type Request struct {
	Method  string      `json:"method"`
	URL     string      `json:"url"`
	Headers http.Header `json:"headers,omitempty"`
	Body    []byte      `json:"body,omitempty"`
}

// Response describes a recorded HTTP response.
type Response struct {
	StatusCode int         `json:"statusCode"`
	Status     string      `json:"statusText,omitempty"`
	Headers    http.Header `json:"headers,omitempty"`
	Body       []byte      `json:"body,omitempty"`
}

// Interaction is one captured request/response exchange. It is immutable once
// it has been appended to a tape.
type Interaction struct {
	ID       string        `json:"id"`
	Recorded time.Time     `json:"recorded"`
	Request  Request       `json:"request"`
	Response Response      `json:"response"`
	Duration time.Duration `json:"duration"`
}

// CaptureRequest builds a Request from an outbound HTTP request. The body is
// passed separately because reading it is the caller's concern.
func CaptureRequest(req *http.Request, body []byte) Request {
	u := *req.URL
	if u.Scheme == "" {
		u.Scheme = "http"
		if req.TLS != nil {
			u.Scheme = "https"
		}
	}
	if u.Host == "" {
		u.Host = req.Host
	}

	return Request{
		Method:  req.Method,
		URL:     u.String(),
		Headers: cloneHeader(req.Header),
		Body:    cloneBytes(body),
	}
}

// CaptureResponse builds a Response from an upstream HTTP response.
func CaptureResponse(resp *http.Response, body []byte) Response {
	return Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    cloneHeader(resp.Header),
		Body:       cloneBytes(body),
	}
}

// HTTP synthesizes an *http.Response answering req from the recorded response.
func (r Response) HTTP(req *http.Request) *http.Response {
	status := r.Status
	if status == "" {
		status = strconv.Itoa(r.StatusCode) + " " + http.StatusText(r.StatusCode)
	}

	header := cloneHeader(r.Headers)
	if header == nil {
		header = make(http.Header)
	}

	return &http.Response{
		Status:        strings.TrimSpace(status),
		StatusCode:    r.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(cloneBytes(r.Body))),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}

// Clone returns a deep copy of the request.
func (r Request) Clone() Request {
	r.Headers = cloneHeader(r.Headers)
	r.Body = cloneBytes(r.Body)
	return r
}

// Clone returns a deep copy of the response.
func (r Response) Clone() Response {
	r.Headers = cloneHeader(r.Headers)
	r.Body = cloneBytes(r.Body)
	return r
}

// Clone returns a deep copy of the interaction.
func (i Interaction) Clone() Interaction {
	i.Request = i.Request.Clone()
	i.Response = i.Response.Clone()
	return i
}

// cloneHeader copies h, normalising an empty header to nil so that recorded
// and reloaded interactions compare equal.
func cloneHeader(h http.Header) http.Header {
	if len(h) == 0 {
		return nil
	}
	return h.Clone()
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

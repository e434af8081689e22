package exchange

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"sort"
)

const DefaultContentType = "text/html"

// Response is written to the wire exactly once per connection.
type Response struct {
	StatusCode  int
	ContentType string
	Headers     map[string]string
	Body        []byte
}

// NewResponse creates a status-only response with the default content type.
func NewResponse(statusCode int) *Response {
	return &Response{
		StatusCode:  statusCode,
		ContentType: DefaultContentType,
		Headers:     make(map[string]string),
	}
}

// NewHTMLResponse creates a response with an HTML body.
func NewHTMLResponse(statusCode int, body string) *Response {
	resp := NewResponse(statusCode)
	resp.Body = []byte(body)
	return resp
}

// SetHeader sets an additional response header. Content-Type and
// Content-Length are managed by the response itself.
func (r *Response) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[textproto.CanonicalMIMEHeaderKey(name)] = value
}

// GetHeader returns an additional response header by case-insensitive name.
func (r *Response) GetHeader(name string) string {
	return r.Headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// Header renders the status line and header block, including the blank line
// that separates it from the body.
func (r *Response) Header() []byte {
	reason := http.StatusText(r.StatusCode)
	if reason == "" {
		reason = "Unknown"
	}
	contentType := r.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.StatusCode, reason)
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(r.Body))
	b.WriteString("Connection: close\r\n")

	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		switch name {
		case "Content-Type", "Content-Length", "Connection":
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\r\n", name, r.Headers[name])
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// WriteTo writes the header block followed by the body, if any.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.Header())
	total := int64(n)
	if err != nil {
		return total, fmt.Errorf("failed to write response header: %w", err)
	}
	if r.Body != nil {
		n, err = w.Write(r.Body)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("failed to write response body: %w", err)
		}
	}
	return total, nil
}

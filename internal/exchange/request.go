package exchange

import (
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// Well-known request property keys.
const (
	PropertyRemoteEndPoint = "RemoteEndPoint"
	PropertyConnectionID   = "ConnectionID"
)

// Request is a parsed HTTP request. Status is http.StatusOK when the request
// is well formed and can be served; any other value short-circuits processing.
type Request struct {
	Method  string
	URL     string
	Target  string
	Query   string
	Version string
	Status  int

	Headers    map[string]string
	Properties map[string]string
}

// ParseRequest parses the raw bytes read off a connection. It never fails;
// problems are reported through the Status field.
func ParseRequest(raw string) *Request {
	req := &Request{
		Status:     http.StatusOK,
		Headers:    make(map[string]string),
		Properties: make(map[string]string),
	}

	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	requestLine := strings.Fields(lines[0])
	if len(requestLine) != 3 || !strings.HasPrefix(requestLine[2], "HTTP/") {
		req.Status = http.StatusBadRequest
		return req
	}
	req.Method = requestLine[0]
	req.URL = requestLine[1]
	req.Version = requestLine[2]

	u, err := url.ParseRequestURI(req.URL)
	if err != nil {
		req.Status = http.StatusBadRequest
		return req
	}
	req.Target = strings.TrimPrefix(u.Path, "/")
	req.Query = u.RawQuery

	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			req.Status = http.StatusBadRequest
			return req
		}
		req.Headers[textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	if req.Method != http.MethodGet {
		req.Status = http.StatusNotImplemented
	}
	return req
}

// AddProperty stashes metadata for plugin consumption.
func (r *Request) AddProperty(key, value string) {
	if r.Properties == nil {
		r.Properties = make(map[string]string)
	}
	r.Properties[key] = value
}

// Property returns a previously stored property, or the empty string.
func (r *Request) Property(key string) string {
	return r.Properties[key]
}

// Header returns a request header by case-insensitive name.
func (r *Request) Header(name string) string {
	return r.Headers[textproto.CanonicalMIMEHeaderKey(name)]
}

package exchange

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantStatus int
		wantTarget string
		wantURL    string
		wantQuery  string
	}{
		{
			name:       "root document",
			raw:        "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n",
			wantStatus: http.StatusOK,
			wantTarget: "",
			wantURL:    "/",
		},
		{
			name:       "nested file with query",
			raw:        "GET /img/a.png?v=2 HTTP/1.1\r\n\r\n",
			wantStatus: http.StatusOK,
			wantTarget: "img/a.png",
			wantURL:    "/img/a.png?v=2",
			wantQuery:  "v=2",
		},
		{
			name:       "bare newlines",
			raw:        "GET /stat HTTP/1.0\nAccept: */*\n\n",
			wantStatus: http.StatusOK,
			wantTarget: "stat",
			wantURL:    "/stat",
		},
		{
			name:       "empty payload",
			raw:        "",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing version",
			raw:        "GET /\r\n\r\n",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "garbage",
			raw:        "hello there friend\r\n\r\n",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "relative target",
			raw:        "GET index.html HTTP/1.1\r\n\r\n",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed header",
			raw:        "GET / HTTP/1.1\r\nno-colon-here\r\n\r\n",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unsupported method",
			raw:        "POST /form HTTP/1.1\r\n\r\nbody",
			wantStatus: http.StatusNotImplemented,
			wantTarget: "form",
			wantURL:    "/form",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ParseRequest(tt.raw)
			assert.Equal(t, tt.wantStatus, req.Status)
			if tt.wantStatus == http.StatusBadRequest {
				return
			}
			assert.Equal(t, tt.wantTarget, req.Target)
			assert.Equal(t, tt.wantURL, req.URL)
			assert.Equal(t, tt.wantQuery, req.Query)
		})
	}
}

func TestRequest_HeadersAndProperties(t *testing.T) {
	req := ParseRequest("GET / HTTP/1.1\r\nuser-agent: curl/8.0\r\nX-Forwarded-For:  10.0.0.1 \r\n\r\n")

	assert.Equal(t, "curl/8.0", req.Header("User-Agent"))
	assert.Equal(t, "10.0.0.1", req.Header("x-forwarded-for"))

	req.AddProperty(PropertyRemoteEndPoint, "127.0.0.1:5555")
	assert.Equal(t, "127.0.0.1:5555", req.Property(PropertyRemoteEndPoint))
	assert.Empty(t, req.Property("missing"))

	var zero Request
	zero.AddProperty("k", "v")
	assert.Equal(t, "v", zero.Property("k"))
}

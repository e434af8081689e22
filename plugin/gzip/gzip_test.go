package gzip

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnws-project/dnws-go/internal/exchange"
	"github.com/dnws-project/dnws-go/plugin"
)

func TestGzipPlugin_Compresses(t *testing.T) {
	p, err := New(plugin.Dependencies{})
	require.NoError(t, err)

	original := exchange.NewHTMLResponse(http.StatusOK, strings.Repeat("<p>hello</p>", 200))
	original.SetHeader("X-Served-By", "dnws")

	resp, err := p.PostProcess(original)
	require.NoError(t, err)
	assert.Equal(t, "gzip", resp.GetHeader("Content-Encoding"))
	assert.Equal(t, "dnws", resp.GetHeader("X-Served-By"))
	assert.Equal(t, "text/html", resp.ContentType)
	assert.Less(t, len(resp.Body), len(original.Body))
	assert.Empty(t, original.GetHeader("Content-Encoding"), "input must not be mutated")

	zr, err := gzip.NewReader(bytes.NewReader(resp.Body))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, original.Body, plain)
}

func TestGzipPlugin_PassThrough(t *testing.T) {
	p, err := New(plugin.Dependencies{})
	require.NoError(t, err)

	small := exchange.NewHTMLResponse(http.StatusOK, "tiny")
	resp, err := p.PostProcess(small)
	require.NoError(t, err)
	assert.Same(t, small, resp)

	statusOnly := exchange.NewResponse(http.StatusNotFound)
	resp, err = p.PostProcess(statusOnly)
	require.NoError(t, err)
	assert.Same(t, statusOnly, resp)

	encoded := exchange.NewHTMLResponse(http.StatusOK, strings.Repeat("x", 4096))
	encoded.SetHeader("Content-Encoding", "br")
	resp, err = p.PostProcess(encoded)
	require.NoError(t, err)
	assert.Same(t, encoded, resp)
}

func TestGzipPlugin_PostOnly(t *testing.T) {
	p, err := New(plugin.Dependencies{})
	require.NoError(t, err)

	_, err = p.GetResponse(&exchange.Request{})
	assert.ErrorIs(t, err, plugin.ErrUnsupportedPhase)
	assert.True(t, p.(plugin.PhaseSupporter).Supports(plugin.PhasePostProcess))
}

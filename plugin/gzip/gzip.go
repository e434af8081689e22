// Package gzip compresses response bodies in the post-processing phase.
//
// The post-processing contract only sees the response, so the plugin cannot
// negotiate with Accept-Encoding. Enable it only for clients known to accept gzip.
package gzip

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"

	"github.com/dnws-project/dnws-go/internal/exchange"
	"github.com/dnws-project/dnws-go/plugin"
)

const (
	Identifier     = "GzipPlugin"
	DefaultMinSize = 1024
)

type Plugin struct {
	plugin.Base
	MinSize int
	Level   int
}

func New(plugin.Dependencies) (plugin.Plugin, error) {
	return &Plugin{MinSize: DefaultMinSize, Level: gzip.DefaultCompression}, nil
}

func (p *Plugin) Supports(phase plugin.Phase) bool {
	return phase == plugin.PhasePostProcess
}

// PostProcess returns a compressed copy of resp. Small, empty and already
// encoded bodies pass through unchanged.
func (p *Plugin) PostProcess(resp *exchange.Response) (*exchange.Response, error) {
	if resp == nil || len(resp.Body) < p.MinSize || resp.GetHeader("Content-Encoding") != "" {
		return resp, nil
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, p.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := zw.Write(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to compress response: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress response: %w", err)
	}

	out := &exchange.Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Headers:     make(map[string]string, len(resp.Headers)+2),
		Body:        buf.Bytes(),
	}
	for k, v := range resp.Headers {
		out.Headers[k] = v
	}
	out.SetHeader("Content-Encoding", "gzip")
	out.SetHeader("Vary", "Accept-Encoding")
	return out, nil
}

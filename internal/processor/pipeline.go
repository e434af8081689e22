package processor

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/dnws-project/dnws-go/internal/exchange"
	"github.com/dnws-project/dnws-go/internal/static"
	"github.com/dnws-project/dnws-go/pkg/logger"
	"github.com/dnws-project/dnws-go/plugin"
)

// Pipeline applies pre-processing, routing and post-processing to one request.
// It holds no per-request state and is shared by every connection.
type Pipeline struct {
	Registry *plugin.Registry
	Files    *static.FileServer
}

// NewPipeline creates a pipeline over a loaded registry and a static file fallback.
func NewPipeline(registry *plugin.Registry, files *static.FileServer) *Pipeline {
	return &Pipeline{Registry: registry, Files: files}
}

// Run produces the response for req. A request that failed to parse
// short-circuits to a status-only response without invoking any plugin.
// An error means the request was aborted and no response should be written.
func (p *Pipeline) Run(req *exchange.Request) (*exchange.Response, error) {
	return p.run(req, func(State) {})
}

// run is Run reporting each completed stage to advance.
func (p *Pipeline) run(req *exchange.Request, advance func(State)) (*exchange.Response, error) {
	if req.Status != http.StatusOK {
		advance(StateShortCircuited)
		return exchange.NewResponse(req.Status), nil
	}
	if err := p.PreProcess(req); err != nil {
		return nil, err
	}
	advance(StatePreProcessed)

	resp := p.Route(req)
	advance(StateRouted)

	resp, err := p.PostProcess(resp)
	if err != nil {
		return nil, err
	}
	advance(StatePostProcessed)
	return resp, nil
}

// PreProcess invokes every pre-processing plugin once, in registry order.
func (p *Pipeline) PreProcess(req *exchange.Request) error {
	return p.Registry.Each(func(reg plugin.Registration) error {
		if !reg.PreProcessing {
			return nil
		}
		if err := reg.Plugin.PreProcess(req); err != nil {
			return fmt.Errorf("pre-processing by %s failed: %w", reg.Identifier, err)
		}
		return nil
	})
}

// Route invokes every plugin whose prefix matches the target. When several
// match, the last one in registry order provides the response. With no
// match the target is served from the document root.
func (p *Pipeline) Route(req *exchange.Request) *exchange.Response {
	var resp *exchange.Response
	processed := false

	_ = p.Registry.Each(func(reg plugin.Registration) error {
		if !strings.HasPrefix(req.Target, reg.Prefix) {
			return nil
		}
		resp = p.invoke(reg, req)
		processed = true
		return nil
	})

	if !processed {
		if p.Files == nil {
			return exchange.NewHTMLResponse(http.StatusNotFound, "<h1>404 Not found</h1>")
		}
		resp = p.Files.Lookup(req.Target)
	}
	return resp
}

func (p *Pipeline) invoke(reg plugin.Registration, req *exchange.Request) *exchange.Response {
	resp, err := reg.Plugin.GetResponse(req)
	if err == nil && resp == nil {
		err = fmt.Errorf("plugin %s returned no response", reg.Identifier)
	}
	if err != nil {
		logger.Errorf("plugin %s failed to handle %s: %v", reg.Identifier, req.URL, err)
		return exchange.NewHTMLResponse(http.StatusInternalServerError,
			"<h1>500 Internal Server Error</h1>"+html.EscapeString(err.Error()))
	}
	return resp
}

// PostProcess threads resp through every post-processing plugin in registry
// order; each one receives the previous one's output.
func (p *Pipeline) PostProcess(resp *exchange.Response) (*exchange.Response, error) {
	err := p.Registry.Each(func(reg plugin.Registration) error {
		if !reg.PostProcessing {
			return nil
		}
		next, err := reg.Plugin.PostProcess(resp)
		if err != nil {
			return fmt.Errorf("post-processing by %s failed: %w", reg.Identifier, err)
		}
		if next == nil {
			return fmt.Errorf("post-processing by %s returned no response", reg.Identifier)
		}
		resp = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

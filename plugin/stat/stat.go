// Package stat counts requests per URL and reports the counts as an HTML page.
package stat

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"

	"github.com/dnws-project/dnws-go/internal/exchange"
	"github.com/dnws-project/dnws-go/internal/store"
	"github.com/dnws-project/dnws-go/pkg/logger"
	"github.com/dnws-project/dnws-go/plugin"
)

const (
	Identifier = "StatPlugin"
	StoreName  = "stat"
)

// Plugin counts requests in pre-processing and renders the counts when routed to.
type Plugin struct {
	plugin.Base
	counts *store.Store
}

// New is the plugin factory.
func New(deps plugin.Dependencies) (plugin.Plugin, error) {
	if deps.Stores == nil {
		return nil, errors.New("stat plugin requires a store provider")
	}
	return &Plugin{counts: store.Open(StoreName, deps.Stores)}, nil
}

func (p *Plugin) Supports(phase plugin.Phase) bool {
	return phase == plugin.PhasePreProcess || phase == plugin.PhaseRoute
}

// PreProcess increments the counter for the request URL. A store failure is
// logged and does not fail the request.
func (p *Plugin) PreProcess(req *exchange.Request) error {
	if _, err := p.counts.Increment(req.URL, 1); err != nil {
		logger.Warnf("failed to count request for %s: %v", req.URL, err)
	}
	return nil
}

func (p *Plugin) GetResponse(req *exchange.Request) (*exchange.Response, error) {
	values := p.counts.GetAllCounters("")
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("<html><body><h1>Stat:</h1>")
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %d<br />", html.EscapeString(k), values[k])
	}
	sb.WriteString("</body></html>")

	return exchange.NewHTMLResponse(http.StatusOK, sb.String()), nil
}

// Package client reports what the server knows about the calling client.
package client

import (
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"

	"github.com/dnws-project/dnws-go/internal/exchange"
	"github.com/dnws-project/dnws-go/plugin"
)

const Identifier = "ClientPlugin"

type Plugin struct {
	plugin.Base
}

func New(plugin.Dependencies) (plugin.Plugin, error) {
	return &Plugin{}, nil
}

func (p *Plugin) Supports(phase plugin.Phase) bool {
	return phase == plugin.PhaseRoute
}

func (p *Plugin) GetResponse(req *exchange.Request) (*exchange.Response, error) {
	var sb strings.Builder
	sb.WriteString("<html><body><h1>Client:</h1>")
	fmt.Fprintf(&sb, "Client IP: %s<br />", html.EscapeString(req.Property(exchange.PropertyRemoteEndPoint)))
	fmt.Fprintf(&sb, "Connection: %s<br />", html.EscapeString(req.Property(exchange.PropertyConnectionID)))
	fmt.Fprintf(&sb, "Request: %s %s %s<br />", html.EscapeString(req.Method), html.EscapeString(req.URL), html.EscapeString(req.Version))

	names := make([]string, 0, len(req.Headers))
	for name := range req.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "%s: %s<br />", html.EscapeString(name), html.EscapeString(req.Headers[name]))
	}
	sb.WriteString("</body></html>")

	return exchange.NewHTMLResponse(http.StatusOK, sb.String()), nil
}

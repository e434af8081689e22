package tcpserver

import (
	"context"

	"github.com/dnws-project/dnws-go/internal/adapter"
	"github.com/dnws-project/dnws-go/internal/config"
)

// tcpServer serves the configured pipeline on a raw TCP listener.
type tcpServer struct {
	cfg *config.ServerConfig
}

// NewAdapter creates an adapter for cfg.
func NewAdapter(cfg *config.ServerConfig) adapter.Adapter {
	return &tcpServer{cfg: cfg}
}

// Start builds the runtime and serves until ctx is cancelled.
func (s *tcpServer) Start(ctx context.Context) error {
	rt, err := adapter.InitialiseServer(s.cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.Server.Serve(ctx)
}

package adapter

import (
	"io"
	"net"

	"github.com/dnws-project/dnws-go/internal/config"
	"github.com/dnws-project/dnws-go/internal/processor"
	"github.com/dnws-project/dnws-go/internal/server"
	"github.com/dnws-project/dnws-go/internal/static"
	"github.com/dnws-project/dnws-go/internal/store"
	"github.com/dnws-project/dnws-go/pkg/logger"
	"github.com/dnws-project/dnws-go/plugin"
	"github.com/dnws-project/dnws-go/plugin/client"
	"github.com/dnws-project/dnws-go/plugin/gzip"
	"github.com/dnws-project/dnws-go/plugin/stat"
)

// Runtime holds everything built from a server configuration.
type Runtime struct {
	Config   *config.ServerConfig
	Stores   store.StoreProvider
	Registry *plugin.Registry
	Pipeline *processor.Pipeline
	Server   *server.Server
}

// Builtins returns the catalogue of plugins that configuration may name.
func Builtins() plugin.Catalogue {
	c := plugin.Catalogue{}
	c.Register(stat.Identifier, stat.New)
	c.Register(client.Identifier, client.New)
	c.Register(gzip.Identifier, gzip.New)
	return c
}

// InitialiseServer performs common initialisation tasks for all adapters
func InitialiseServer(cfg *config.ServerConfig) (*Runtime, error) {
	return InitialiseServerWith(cfg, Builtins())
}

// InitialiseServerWith is InitialiseServer with a caller-supplied catalogue.
func InitialiseServerWith(cfg *config.ServerConfig, catalogue plugin.Catalogue) (*Runtime, error) {
	logger.Infoln("starting dnws...")

	stores, err := store.NewStoreProvider(cfg.Store)
	if err != nil {
		return nil, err
	}

	deps := plugin.Dependencies{Stores: stores, DocumentRoot: cfg.DocumentRoot}
	registry, err := plugin.LoadRegistry(cfg.Plugins, catalogue, deps)
	if err != nil {
		closeStores(stores)
		return nil, err
	}
	logger.Infof("loaded %d plugins", registry.Len())

	files := static.NewFileServer(cfg.DocumentRoot)
	logger.Infof("serving static files from %s", files)

	pipeline := processor.NewPipeline(registry, files)
	opts := processor.OptionsFromConfig(cfg)
	srv := server.New(cfg, func(conn net.Conn) server.Job {
		return processor.NewConnection(conn, pipeline, opts)
	})

	return &Runtime{
		Config:   cfg,
		Stores:   stores,
		Registry: registry,
		Pipeline: pipeline,
		Server:   srv,
	}, nil
}

// Close releases the listener and any store connections.
func (r *Runtime) Close() error {
	err := r.Server.Close()
	closeStores(r.Stores)
	return err
}

func closeStores(stores store.StoreProvider) {
	if c, ok := stores.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warnf("failed to close store: %v", err)
		}
	}
}

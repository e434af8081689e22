package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnws-project/dnws-go/internal/config"
	"github.com/dnws-project/dnws-go/internal/store"
	"github.com/dnws-project/dnws-go/plugin"
	"github.com/dnws-project/dnws-go/plugin/client"
	"github.com/dnws-project/dnws-go/plugin/gzip"
	"github.com/dnws-project/dnws-go/plugin/stat"
)

func TestBuiltins(t *testing.T) {
	c := Builtins()
	for _, id := range []string{stat.Identifier, client.Identifier, gzip.Identifier} {
		assert.Contains(t, c, id)
	}
}

func TestInitialiseServer(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.ServerConfig
		wantPlugins int
		wantMode    string
		wantErr     error
	}{
		{
			name: "builtin plugins with in-memory store",
			cfg: config.ServerConfig{
				DocumentRoot: t.TempDir(),
				Mode:         config.ModeThreadPool,
				MaxThreads:   2,
				Plugins: []config.PluginConfig{
					{Path: "statistics", Class: stat.Identifier, Preprocessing: true},
					{Path: "client", Class: client.Identifier},
					{Path: "", Class: gzip.Identifier, Postprocessing: true},
				},
			},
			wantPlugins: 3,
			wantMode:    "ThreadPool",
		},
		{
			name:        "no plugins",
			cfg:         config.ServerConfig{DocumentRoot: t.TempDir(), Mode: config.ModeThread},
			wantPlugins: 0,
			wantMode:    "Thread",
		},
		{
			name: "unknown plugin identifier",
			cfg: config.ServerConfig{
				Plugins: []config.PluginConfig{{Path: "x", Class: "MissingPlugin"}},
			},
			wantErr: plugin.ErrUnknownPlugin,
		},
		{
			name: "phase flag the plugin cannot honour",
			cfg: config.ServerConfig{
				Plugins: []config.PluginConfig{{Path: "client", Class: client.Identifier, Preprocessing: true}},
			},
			wantErr: plugin.ErrUnsupportedPhase,
		},
		{
			name:    "unknown store driver",
			cfg:     config.ServerConfig{Store: config.StoreConfig{Driver: "etcd"}},
			wantErr: store.ErrUnknownDriver,
		},
		{
			name:        "unknown mode runs single",
			cfg:         config.ServerConfig{DocumentRoot: t.TempDir(), Mode: "Forking"},
			wantPlugins: 0,
			wantMode:    "Single Process",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			rt, err := InitialiseServer(&cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, rt)
				return
			}
			require.NoError(t, err)
			defer rt.Close()

			assert.Equal(t, tt.wantPlugins, rt.Registry.Len())
			assert.Equal(t, tt.wantMode, rt.Server.Strategy().Name())
			assert.NotNil(t, rt.Pipeline)
			assert.NotNil(t, rt.Stores)
		})
	}
}

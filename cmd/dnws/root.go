package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dnws-project/dnws-go/internal/adapter/tcpserver"
	"github.com/dnws-project/dnws-go/internal/config"
	"github.com/dnws-project/dnws-go/pkg/logger"
)

var (
	configPath string
	logLevel   string
	port       int
	mode       string
)

var rootCmd = &cobra.Command{
	Use:   "dnws",
	Short: "Minimal plugin-driven HTTP server",
	Long: `dnws serves static files from a document root and routes requests
to plugins registered under URL prefixes. Concurrency is controlled by the
Mode setting: Single, Thread or ThreadPool.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "Path to the configuration file (JSON or YAML)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn or error")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "Override the configured port")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "", "Override the configured mode")
}

func runServer(cmd *cobra.Command, args []string) error {
	if logLevel != "" {
		logger.SetLevel(logger.ParseLevel(logLevel))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = port
	}
	if cmd.Flags().Changed("mode") {
		cfg.Mode = config.Mode(mode)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// A second signal during shutdown terminates the process.
	context.AfterFunc(ctx, stop)

	return tcpserver.NewAdapter(cfg).Start(ctx)
}

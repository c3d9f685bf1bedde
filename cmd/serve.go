package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/toolgate/toolgate/internal/accounting"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/mcp"
	"github.com/toolgate/toolgate/internal/proxy"
	"github.com/toolgate/toolgate/internal/signal"
	"github.com/toolgate/toolgate/internal/tools"
)

var (
	serveHost     string
	servePort     int
	serveUpstream string
	serveHybrid   bool
	serveNoTools  bool
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
	serveCmd.Flags().StringVar(&serveUpstream, "upstream", "", "Backend base URL (overrides config)")
	serveCmd.Flags().BoolVar(&serveHybrid, "hybrid", false, "Enable hybrid streaming")
	serveCmd.Flags().BoolVar(&serveNoTools, "no-tools", false, "Disable tool injection")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyServeFlags(cmd, cfg)
		return runServe(cfg)
	},
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Listen.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Listen.Port = servePort
	}
	if cmd.Flags().Changed("upstream") {
		cfg.Upstream.BaseURL = serveUpstream
	}
	if cmd.Flags().Changed("hybrid") {
		cfg.Hybrid.Enabled = serveHybrid
	}
	if cmd.Flags().Changed("no-tools") {
		cfg.Tools.Enabled = !serveNoTools
	}
}

func runServe(cfg *config.Config) error {
	log := newLogger()
	ctx, stop := signal.NotifyContext()
	defer stop()

	registry := tools.NewRegistry()

	manager := mcp.NewManager(registry, log)
	if cfg.Tools.Enabled {
		serversCfg, err := mcp.LoadConfigFromPath(cfg.Tools.ServersFile)
		if err != nil {
			return fmt.Errorf("load servers config: %w", err)
		}
		manager.Connect(ctx, serversCfg)
	}
	defer manager.Shutdown()

	var store accounting.Store = accounting.Noop{}
	if cfg.Accounting.Enabled {
		sqlStore, err := accounting.NewSQLiteStore(cfg.Accounting.Path)
		if err != nil {
			log.Warn("accounting disabled", "error", err)
		} else {
			store = sqlStore
			defer sqlStore.Close()
		}
	}

	upstream := proxy.NewUpstream(proxy.UpstreamOptions{
		BaseURL:        cfg.Upstream.BaseURL,
		APIKey:         cfg.Upstream.APIKey,
		RequestTimeout: cfg.Upstream.RequestTimeout,
		MaxConns:       cfg.Upstream.MaxConns,
	})
	augmenter := proxy.NewAugmenter(registry, cfg.Tools, log)
	runner := proxy.NewRunner(registry, upstream, cfg.Tools, log)
	finalizer := proxy.NewFinalizer(cfg.Modify.Response, log)
	synthesizer := proxy.NewSynthesizer(cfg.Hybrid)

	orchestrator := proxy.NewOrchestrator(cfg, upstream, augmenter, runner, finalizer, synthesizer, store, log)
	server := proxy.NewServer(cfg, orchestrator, registry, store, log)

	if err := server.Start(); err != nil {
		return err
	}
	log.Info("proxy started",
		"tools", registry.Len(),
		"hybrid", cfg.Hybrid.Enabled,
		"max_rounds", cfg.Tools.MaxRounds)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/mcp"
	"github.com/toolgate/toolgate/internal/signal"
	"github.com/toolgate/toolgate/internal/tools"
)

func init() {
	rootCmd.AddCommand(toolsCmd)
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Connect to configured MCP servers and list discovered tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		log := newLogger()
		ctx, stop := signal.NotifyContext()
		defer stop()

		registry := tools.NewRegistry()
		manager := mcp.NewManager(registry, log)
		serversCfg, err := mcp.LoadConfigFromPath(cfg.Tools.ServersFile)
		if err != nil {
			return fmt.Errorf("load servers config: %w", err)
		}
		manager.Connect(ctx, serversCfg)
		defer manager.Shutdown()

		descriptors := registry.List()
		if len(descriptors) == 0 {
			fmt.Println("No tools discovered.")
			return nil
		}
		for _, d := range descriptors {
			fmt.Printf("%s (%s)\n    %s\n", d.Name, d.Provider, d.Description)
		}
		return nil
	},
}

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"uiagent/internal/infra/config"
	"uiagent/internal/infra/logger"
)

var toolsVerbose bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools offered to the model",
	Long: `List the built-in tools and every tool reported by the configured MCP
servers, in registration order.

Examples:
  agent tools            # names and descriptions
  agent tools --verbose  # include parameter schemas`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTools(cmd.Context())
	},
}

func init() {
	toolsCmd.Flags().BoolVarP(&toolsVerbose, "verbose", "v", false, "Show parameter schemas")
}

func runTools(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	registry, cleanup, err := initTools(ctx, cfg, logger.Discard())
	if err != nil {
		return err
	}
	defer cleanup()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, s := range registry.Schemas() {
		fmt.Fprintf(w, "%s\t%s\n", s.Name, s.Description)
		if toolsVerbose {
			fmt.Fprintf(w, "\t%s\n", s.Parameters)
		}
	}
	return w.Flush()
}

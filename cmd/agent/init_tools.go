package main

import (
	"context"
	"fmt"
	"log/slog"

	"uiagent/internal/adapter/tool"
	"uiagent/internal/infra/config"
)

// initTools registers the built-in tools, then every tool reported by the
// configured MCP servers. The registry is read-only once this returns.
func initTools(ctx context.Context, cfg *config.Config, log *slog.Logger) (*tool.Registry, func(), error) {
	var opts []tool.RegistryOption
	if cfg.Agent.StrictTools {
		opts = append(opts, tool.WithStrictNames())
	}
	registry := tool.NewRegistry(log, opts...)

	if err := registry.Register(tool.NewWeatherTool(log)); err != nil {
		return nil, nil, err
	}
	if err := registry.Register(tool.NewSumTool(log)); err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	if len(cfg.MCP.Servers) > 0 {
		bridge, err := tool.NewMCPBridge(ctx, cfg.MCP.Servers, log)
		if err != nil {
			return nil, nil, fmt.Errorf("mcp: %w", err)
		}
		if err := bridge.RegisterAll(registry); err != nil {
			bridge.Close()
			return nil, nil, err
		}
		log.Info("mcp tools registered", "servers", len(cfg.MCP.Servers), "tools", len(bridge.Tools()))
		cleanup = bridge.Close
	}

	return registry, cleanup, nil
}

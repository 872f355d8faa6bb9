package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"uiagent/internal/infra/config"
	"uiagent/internal/infra/logger"
	"uiagent/internal/infra/tracer"
	"uiagent/internal/usecase/eventbus"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	// 1. Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	tracerShutdown, err := tracer.Setup(parent, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 3. LLM provider
	llmComp, err := initLLM(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	// 4. Event bus
	bus := eventbus.New(log)
	defer bus.Close()

	// 5. Tools
	tools, toolsCleanup, err := initTools(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	defer toolsCleanup()

	// 6. Agent, sessions, publisher and gateway
	rt, err := initRuntime(cfg, llmComp, tools, bus, log)
	if err != nil {
		return fmt.Errorf("runtime: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			log.Error("runtime cleanup error", "error", err)
		}
	}()

	go rt.Sessions.RunJanitor(ctx, cfg.Session.SweepInterval)

	log.Info("uiagent starting",
		"addr", cfg.Server.Addr,
		"provider", llmComp.Selection.Name,
		"model", llmComp.Selection.Model,
		"tools", tools.Len(),
	)
	if err := rt.Gateway.Start(ctx); err != nil {
		return err
	}
	log.Info("uiagent stopped")
	return nil
}

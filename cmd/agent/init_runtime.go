package main

import (
	"context"
	"errors"
	"log/slog"

	"uiagent/internal/adapter/gateway"
	"uiagent/internal/adapter/publisher"
	"uiagent/internal/adapter/tool"
	"uiagent/internal/domain"
	"uiagent/internal/infra/config"
	"uiagent/internal/infra/middleware"
	"uiagent/internal/usecase"
)

// Runtime holds the long-lived request-serving components.
type Runtime struct {
	Sessions  *usecase.SessionStore
	Agent     *usecase.Agent // nil when the provider cannot stream
	Legacy    *usecase.LegacyResponder
	Forwarder *publisher.Forwarder // nil when no pubsub backend is configured
	Gateway   *gateway.Server
}

// Close stops the gateway and flushes pending publishes.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if err := r.Gateway.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.Forwarder != nil {
		if err := r.Forwarder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func initRuntime(cfg *config.Config, llmComp *LLMComponents, tools *tool.Registry,
	bus domain.EventBus, log *slog.Logger) (*Runtime, error) {
	sel := llmComp.Selection
	prompts := usecase.NewPromptBuilder(sel.Model, llmComp.Temperature, llmComp.MaxTokens, sel.Think)
	parser := usecase.NewActionParser(log)

	rt := &Runtime{
		Sessions: usecase.NewSessionStore(cfg.Session.IdleTimeout, bus, log),
		Legacy:   usecase.NewLegacyResponder(sel.Legacy, prompts, parser, bus, log, cfg.Agent.TurnTimeout),
	}

	if llmComp.Streaming != nil {
		var executor domain.ToolExecutor
		if sel.Tools {
			executor = tools
		}
		rt.Agent = usecase.NewAgent(usecase.AgentDeps{
			LLM:            llmComp.Streaming,
			Tools:          executor,
			Prompts:        prompts,
			Parser:         parser,
			Bus:            bus,
			Logger:         log,
			Model:          sel.Model,
			MaxIterations:  cfg.Agent.MaxIterations,
			TurnTimeout:    cfg.Agent.TurnTimeout,
			ToolTimeout:    cfg.Agent.ToolTimeout,
			RequestTimeout: cfg.Agent.RequestTimeout,
			ResultCap:      cfg.Agent.ResultCapBytes,
		})
	}

	if cfg.PubSub.Enabled() {
		pub, err := publisher.New(cfg.PubSub, log)
		if err != nil {
			return nil, err
		}
		rt.Forwarder = publisher.NewForwarder(pub, cfg.PubSub.Channel, cfg.PubSub.PerEvent, log)
		rt.Forwarder.Attach(bus)
		log.Info("publisher enabled",
			"backend", cfg.PubSub.Backend,
			"channel", cfg.PubSub.Channel,
			"per_event", cfg.PubSub.PerEvent,
		)
	}

	deps := gateway.HandlerDeps{
		Legacy:          rt.Legacy,
		Sessions:        rt.Sessions,
		Tools:           tools,
		Logger:          log,
		Pacing:          cfg.Server.Pacing,
		ProviderName:    sel.Name,
		ProviderHealthy: llmComp.healthProbe(),
	}
	if rt.Agent != nil {
		deps.Agent = rt.Agent
	}

	opts := gateway.Options{
		Addr:        cfg.Server.Addr,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerMin: cfg.Server.RateLimit.RequestsPerMin,
			BurstSize:      cfg.Server.RateLimit.Burst,
		},
	}
	if cfg.Server.Monitor.Enabled {
		opts.MonitorAuth = gateway.NewStaticTokenAuth(cfg.Server.Monitor.Tokens)
	}
	rt.Gateway = gateway.NewServer(deps, bus, opts, log)

	return rt, nil
}

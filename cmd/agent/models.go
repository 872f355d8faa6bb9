package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"uiagent/internal/adapter/llm"
	"uiagent/internal/infra/config"
	"uiagent/internal/infra/logger"
)

var modelsWarmup bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available on the Ollama server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runModels(cmd.Context())
	},
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsWarmup, "warmup", false, "Load the configured model into memory")
}

func runModels(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ollama := llm.NewOllamaProvider(config.ProviderOllama, cfg.LLM.Ollama, logger.Discard())
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	models, err := ollama.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models at %s: %w", cfg.LLM.Ollama.BaseURL, err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED\tCONFIGURED")
	for _, m := range models {
		mark := ""
		if m.Name == cfg.LLM.Ollama.Model {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Name, humanBytes(m.Size), m.ModifiedAt.Format(time.DateOnly), mark)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if modelsWarmup {
		if err := ollama.Warmup(ctx); err != nil {
			return fmt.Errorf("warmup %s: %w", cfg.LLM.Ollama.Model, err)
		}
		fmt.Printf("warmed up %s\n", cfg.LLM.Ollama.Model)
	}
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

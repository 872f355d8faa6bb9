// Command agent runs the UI agent gateway and its maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"uiagent/internal/infra/config"
)

var (
	configPath string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Agentic chat gateway for browser UI automation",
	Long: `agent serves a streaming chat endpoint that lets a language model call
tools and plan UI actions against a DOM snapshot sent by the browser.

Usage:
  agent serve                     # start the HTTP gateway
  agent tools                     # list built-in and MCP tools
  agent models                    # list models on the Ollama server
  agent encrypt <secret>          # produce an enc: value for config.yaml
  agent doctor                    # check configuration and connectivity`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(envFiles...)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Dotenv files to load (default .env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(encryptCmd)
	rootCmd.AddCommand(doctorCmd)
}

func defaultConfigPath() string {
	if p := os.Getenv("UIAGENT_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

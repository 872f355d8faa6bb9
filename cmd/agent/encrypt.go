package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"uiagent/internal/infra/config"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt [secret]",
	Short: "Encrypt a secret for config.yaml",
	Long: `Encrypt a secret with the passphrase in UIAGENT_CONFIG_KEY. The output
can replace llm.huggingface.api_key, pubsub.key or a monitor token.
Without an argument the secret is read from the first line of stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase := os.Getenv(config.EnvConfigKey)
		if passphrase == "" {
			return fmt.Errorf("%s is not set", config.EnvConfigKey)
		}

		var secret string
		if len(args) == 1 {
			secret = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read secret: %w", err)
			}
			secret = strings.TrimRight(line, "\r\n")
		}
		if secret == "" {
			return fmt.Errorf("empty secret")
		}

		enc, err := config.EncryptValue(secret, passphrase)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "enc:"+enc)
		return nil
	},
}

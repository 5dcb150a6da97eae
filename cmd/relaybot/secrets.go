package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"relaybot/pkg/config"
)

func newSecretsCmd(opts *rootOptions) *cobra.Command {
	secrets := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted secrets file",
	}
	secrets.AddCommand(newSecretsSetCmd(opts))
	return secrets
}

func newSecretsSetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set NAME",
		Short: "Store one secret (e.g. TELEGRAM_TOKEN, OPENAI_API_KEY)",
		Long: `Store one secret in the encrypted secrets file. The value is read from
stdin: hidden when stdin is a terminal, otherwise the first line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			name := strings.TrimSpace(args[0])
			if name == "" {
				return errors.New("secret name must not be empty")
			}

			out := cmd.ErrOrStderr()
			interactive := term.IsTerminal(syscall.Stdin)

			value, err := readSecretValue(cmd.InOrStdin(), out, name, interactive)
			if err != nil {
				return err
			}

			password := os.Getenv(EnvSecretsPassword)
			if password == "" {
				if !interactive {
					return fmt.Errorf("%s must be set when stdin is not a terminal", EnvSecretsPassword)
				}
				if password, err = promptNewPassword(out); err != nil {
					return err
				}
			}

			if err := config.SaveSecret(cfg.Secrets.File, password, name, value); err != nil {
				return err
			}
			fmt.Fprintf(out, "✅ %s saved to %s\n", name, cfg.Secrets.File)
			return nil
		},
	}
}

func readSecretValue(in io.Reader, out io.Writer, name string, interactive bool) (string, error) {
	var value string
	if interactive {
		fmt.Fprintf(out, "Value for %s: ", name)
		raw, err := term.ReadPassword(syscall.Stdin)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		value = string(raw)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		value = line
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("empty value for %s", name)
	}
	return value, nil
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"relaybot/pkg/config"
	"relaybot/pkg/logx"
)

// EnvSecretsPassword supplies the secrets file password non-interactively.
const EnvSecretsPassword = "RELAY_SECRETS_PASSWORD"

type rootOptions struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "relaybot",
		Short: "Telegram relay to chat, code and image models with paginated answers",
		Long: `relaybot forwards Telegram messages to an LLM and delivers the answer
as pages navigable with inline buttons.

Run without a subcommand to start polling.`,
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logx.SetDebug(opts.debug)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd, opts)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a JSON or YAML config file")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newUsageCmd())
	root.AddCommand(newSecretsCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig reads the configuration and unlocks the secrets file when a
// password is available.
func loadConfig(opts *rootOptions, stdin *os.File, out io.Writer) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	password, err := secretsPassword(cfg.Secrets.File, stdin, out)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return cfg, nil
	}
	if err := config.LoadSecrets(cfg.Secrets.File, password); err != nil {
		return nil, fmt.Errorf("unlock %s: %w", cfg.Secrets.File, err)
	}
	return cfg, nil
}

// secretsPassword returns the password from the environment, or prompts for
// it when the file exists and stdin is a terminal. An empty result means the
// secrets file is not used.
func secretsPassword(path string, stdin *os.File, out io.Writer) (string, error) {
	if pw := os.Getenv(EnvSecretsPassword); pw != "" {
		return pw, nil
	}
	if _, err := os.Stat(path); err != nil {
		return "", nil //nolint:nilerr // no secrets file, environment credentials only
	}
	if stdin == nil || !term.IsTerminal(int(stdin.Fd())) {
		return "", nil
	}

	fmt.Fprintf(out, "Password for %s: ", path)
	pw, err := term.ReadPassword(int(stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// promptNewPassword asks twice and requires both entries to match.
func promptNewPassword(out io.Writer) (string, error) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Fprint(out, "Secrets password: ")
		first, err := term.ReadPassword(syscall.Stdin)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		fmt.Fprint(out, "Confirm password: ")
		second, err := term.ReadPassword(syscall.Stdin)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		if string(first) == string(second) && strings.TrimSpace(string(first)) != "" {
			return string(first), nil
		}
		fmt.Fprintln(out, "❌ Passwords are empty or do not match.")
	}
	return "", errors.New("no matching password entered")
}

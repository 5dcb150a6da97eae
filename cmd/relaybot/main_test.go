package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/term"

	"relaybot/pkg/config"
	"relaybot/pkg/metrics"
	"relaybot/pkg/version"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, secretsFile string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	body := "secrets:\n  file: " + secretsFile + "\nmetrics:\n  address: \"off\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, version.String()+"\n", out)
}

func TestSubcommandsRegistered(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "usage", "secrets", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	set, _, err := root.Find([]string{"secrets", "set"})
	require.NoError(t, err)
	assert.Equal(t, "set", set.Name())
}

func TestSecretsSetFromPipe(t *testing.T) {
	if term.IsTerminal(syscall.Stdin) {
		t.Skip("stdin is a terminal")
	}
	config.SetDecryptedSecrets(nil)
	t.Cleanup(func() { config.SetDecryptedSecrets(nil) })

	secretsFile := filepath.Join(t.TempDir(), "secrets.json.enc")
	cfgPath := writeConfig(t, secretsFile)
	t.Setenv(EnvSecretsPassword, "pw")

	out, err := execute(t, "123:abc\n", "--config", cfgPath, "secrets", "set", config.EnvTelegramToken)
	require.NoError(t, err)
	assert.Contains(t, out, "TELEGRAM_TOKEN saved")

	cfg, err := loadConfig(&rootOptions{configPath: cfgPath}, nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, config.MetricsDisabled, cfg.Metrics.Address)

	token, err := config.GetTelegramToken()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", token)
}

func TestSecretsSetRequiresPasswordWithoutTerminal(t *testing.T) {
	if term.IsTerminal(syscall.Stdin) {
		t.Skip("stdin is a terminal")
	}
	t.Setenv(EnvSecretsPassword, "")
	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "secrets.json.enc"))

	_, err := execute(t, "value\n", "--config", cfgPath, "secrets", "set", "OPENAI_API_KEY")
	assert.ErrorContains(t, err, EnvSecretsPassword)
}

func TestReadSecretValueRejectsEmpty(t *testing.T) {
	_, err := readSecretValue(strings.NewReader("  \n"), &bytes.Buffer{}, "X", false)
	assert.Error(t, err)

	value, err := readSecretValue(strings.NewReader("secret"), &bytes.Buffer{}, "X", false)
	require.NoError(t, err)
	assert.Equal(t, "secret", value)
}

func TestSecretsPassword(t *testing.T) {
	t.Setenv(EnvSecretsPassword, "from-env")
	pw, err := secretsPassword("/nonexistent", nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)

	t.Setenv(EnvSecretsPassword, "")
	pw, err = secretsPassword(filepath.Join(t.TempDir(), "absent"), nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Empty(t, pw)
}

func TestLoadConfigWrongPassword(t *testing.T) {
	config.SetDecryptedSecrets(nil)
	t.Cleanup(func() { config.SetDecryptedSecrets(nil) })

	secretsFile := filepath.Join(t.TempDir(), "secrets.json.enc")
	require.NoError(t, config.SaveSecret(secretsFile, "right", "OPENAI_API_KEY", "k"))
	cfgPath := writeConfig(t, secretsFile)

	t.Setenv(EnvSecretsPassword, "wrong")
	_, err := loadConfig(&rootOptions{configPath: cfgPath}, nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unlock")
}

func TestPrintUsage(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printUsage(&out, nil))
	assert.Equal(t, "No usage recorded.\n", out.String())

	out.Reset()
	require.NoError(t, printUsage(&out, []*metrics.ModelUsage{{
		Model:            "gpt-4o-mini",
		PromptTokens:     120,
		CompletionTokens: 30,
		TotalTokens:      150,
		Calls:            map[string]int64{"timeout": 1, "ok": 4},
	}}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "MODEL"))
	assert.Contains(t, lines[1], "gpt-4o-mini")
	assert.Contains(t, lines[1], "ok=4 timeout=1")
}

func TestFormatCalls(t *testing.T) {
	assert.Equal(t, "-", formatCalls(nil))
	assert.Equal(t, "error=2 ok=1", formatCalls(map[string]int64{"ok": 1, "error": 2}))
}

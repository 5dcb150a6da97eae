// Package config provides configuration loading, validation, and credential lookup for the relay.
//
// Configuration is resolved in three layers, later layers winning:
//
//  1. Built-in defaults (see applyDefaults).
//  2. An optional JSON or YAML file, with ${VAR} placeholders substituted from the environment.
//  3. Environment overrides: RELAY_<SECTION>_<FIELD> for every field, plus the short
//     legacy names (PAGE_SIZE, HISTORY_TURNS, MAX_CONCURRENT, REQUEST_TIMEOUT, ...).
//
// Credentials are never stored in Config. They are looked up per provider through
// GetAPIKey, which consults the encrypted secrets file before the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"relaybot/pkg/logx"
)

const (
	// Provider constants.
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"

	// API key environment variable names.
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
	EnvTelegramToken   = "TELEGRAM_TOKEN"

	// Model name constants.
	ModelClaudeSonnet4 = "claude-sonnet-4-5"
	ModelGPT4o         = "gpt-4o"
	ModelGPT4oMini     = "gpt-4o-mini"
	ModelGemini25Flash = "gemini-2.5-flash"
	ModelDallE3        = "dall-e-3"

	DefaultChatModel  = ModelGPT4oMini
	DefaultCodeModel  = ModelClaudeSonnet4
	DefaultFileModel  = ModelGPT4oMini
	DefaultImageModel = ModelDallE3

	// Pager store backends.
	PagerStoreMemory = "memory"
	PagerStoreSQLite = "sqlite"

	DefaultPagerCapacity        = 1024
	DefaultConversationCapacity = 4096

	// MetricsDisabled as metrics.address turns off the exposition server.
	MetricsDisabled = "off"

	// TelegramMessageLimit is the hard size limit of one Telegram message.
	TelegramMessageLimit = 4096

	// MaxFenceLanguage bounds the language tag written on a code fence.
	MaxFenceLanguage = 16
	// FenceOverhead is what a code fence adds to a page: three backticks, the tag,
	// a newline, then a newline and three backticks.
	FenceOverhead = 7 + MaxFenceLanguage
	// MaxPageSize is the largest page that still fits one message once fenced.
	MaxPageSize = TelegramMessageLimit - FenceOverhead
)

// ErrMissingCredential is returned when no credential is available for a provider.
var ErrMissingCredential = errors.New("credential not configured")

// ModelInfo contains static information about a known LLM model.
type ModelInfo struct {
	Provider        string
	MaxOutputTokens int
}

// KnownModels registry. Unknown models are inferred via ProviderPatterns.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	"claude-sonnet-4-5":        {Provider: ProviderAnthropic, MaxOutputTokens: 8192},
	"claude-sonnet-4-20250514": {Provider: ProviderAnthropic, MaxOutputTokens: 8192},
	"claude-opus-4-5":          {Provider: ProviderAnthropic, MaxOutputTokens: 16384},
	"gpt-4o":                   {Provider: ProviderOpenAI, MaxOutputTokens: 16384},
	"gpt-4o-mini":              {Provider: ProviderOpenAI, MaxOutputTokens: 16384},
	"gpt-5":                    {Provider: ProviderOpenAI, MaxOutputTokens: 128000},
	"gemini-2.5-flash":         {Provider: ProviderGoogle, MaxOutputTokens: 65536},
	"gemini-2.5-pro":           {Provider: ProviderGoogle, MaxOutputTokens: 65536},
}

// ProviderPattern represents a pattern for inferring provider from model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model names.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"ollama:", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"phi", ProviderOllama},
	{"deepseek", ProviderOllama},
}

// Config is the complete relay configuration.
type Config struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Models   ModelsConfig   `json:"models" yaml:"models"`
	Pager    PagerConfig    `json:"pager" yaml:"pager"`
	History  HistoryConfig  `json:"history" yaml:"history"`
	Gate     GateConfig     `json:"gate" yaml:"gate"`
	Budgets  BudgetsConfig  `json:"budgets" yaml:"budgets"`
	Files    FilesConfig    `json:"files" yaml:"files"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	Secrets  SecretsConfig  `json:"secrets" yaml:"secrets"`
}

// TelegramConfig holds transport settings. The bot token itself is a secret.
type TelegramConfig struct {
	PollTimeoutSeconds int  `json:"poll_timeout_seconds" yaml:"poll_timeout_seconds"`
	Verbose            bool `json:"verbose" yaml:"verbose"`
}

// ModelsConfig names the model used by each surface.
type ModelsConfig struct {
	Chat  string `json:"chat" yaml:"chat"`
	Code  string `json:"code" yaml:"code"`
	File  string `json:"file" yaml:"file"`
	Image string `json:"image" yaml:"image"`
}

// PagerConfig controls chunking and pager state retention.
type PagerConfig struct {
	PageSize   int    `json:"page_size" yaml:"page_size"`     // characters per page
	Store      string `json:"store" yaml:"store"`             // "memory" or "sqlite"
	Capacity   int    `json:"capacity" yaml:"capacity"`       // max retained pager states
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"` // used when Store is "sqlite"
}

// HistoryConfig controls the per-conversation rolling history.
type HistoryConfig struct {
	Turns         int `json:"turns" yaml:"turns"`
	MaxChars      int `json:"max_chars" yaml:"max_chars"`
	Conversations int `json:"conversations" yaml:"conversations"`
}

// GateConfig controls the model call gate.
type GateConfig struct {
	MaxConcurrent         int `json:"max_concurrent" yaml:"max_concurrent"`
	RequestTimeoutSeconds int `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	GraceSeconds          int `json:"grace_seconds" yaml:"grace_seconds"`
	MaxAttempts           int `json:"max_attempts" yaml:"max_attempts"`
	TokensPerMinute       int `json:"tokens_per_minute" yaml:"tokens_per_minute"` // 0 disables the token bucket
}

// BudgetsConfig holds per-surface token budgets and temperatures.
type BudgetsConfig struct {
	ChatMaxTokens   int     `json:"chat_max_tokens" yaml:"chat_max_tokens"`
	CodeMaxTokens   int     `json:"code_max_tokens" yaml:"code_max_tokens"`
	FileMaxTokens   int     `json:"file_max_tokens" yaml:"file_max_tokens"`
	ChatTemperature float64 `json:"chat_temperature" yaml:"chat_temperature"`
	CodeTemperature float64 `json:"code_temperature" yaml:"code_temperature"`
}

// FilesConfig controls the plain-text document surface.
type FilesConfig struct {
	MaxBytes int `json:"max_bytes" yaml:"max_bytes"`
}

// MetricsConfig controls the Prometheus exposition server.
type MetricsConfig struct {
	Address string `json:"address" yaml:"address"` // MetricsDisabled turns the server off
}

// SecretsConfig locates the encrypted secrets file.
type SecretsConfig struct {
	File string `json:"file" yaml:"file"`
}

// RequestTimeout returns the configured per-call timeout.
func (g GateConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutSeconds) * time.Second
}

// Grace returns the margin added on top of RequestTimeout.
func (g GateConfig) Grace() time.Duration {
	return time.Duration(g.GraceSeconds) * time.Second
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration.
func applyDefaults(cfg *Config) {
	if cfg.Telegram.PollTimeoutSeconds == 0 {
		cfg.Telegram.PollTimeoutSeconds = 10
	}

	if cfg.Models.Chat == "" {
		cfg.Models.Chat = DefaultChatModel
	}
	if cfg.Models.Code == "" {
		cfg.Models.Code = DefaultCodeModel
	}
	if cfg.Models.File == "" {
		cfg.Models.File = DefaultFileModel
	}
	if cfg.Models.Image == "" {
		cfg.Models.Image = DefaultImageModel
	}

	if cfg.Pager.PageSize == 0 {
		cfg.Pager.PageSize = 3200
	}
	if cfg.Pager.Store == "" {
		cfg.Pager.Store = PagerStoreMemory
	}
	if cfg.Pager.Capacity == 0 {
		cfg.Pager.Capacity = DefaultPagerCapacity
	}
	if cfg.Pager.SQLitePath == "" {
		cfg.Pager.SQLitePath = "relaybot.db"
	}

	if cfg.History.Turns == 0 {
		cfg.History.Turns = 12
	}
	if cfg.History.MaxChars == 0 {
		cfg.History.MaxChars = 4000
	}
	if cfg.History.Conversations == 0 {
		cfg.History.Conversations = DefaultConversationCapacity
	}

	if cfg.Gate.MaxConcurrent == 0 {
		cfg.Gate.MaxConcurrent = 3
	}
	if cfg.Gate.RequestTimeoutSeconds == 0 {
		cfg.Gate.RequestTimeoutSeconds = 90
	}
	if cfg.Gate.GraceSeconds == 0 {
		cfg.Gate.GraceSeconds = 10
	}
	if cfg.Gate.MaxAttempts == 0 {
		cfg.Gate.MaxAttempts = 3
	}

	if cfg.Budgets.ChatMaxTokens == 0 {
		cfg.Budgets.ChatMaxTokens = 1500
	}
	if cfg.Budgets.CodeMaxTokens == 0 {
		cfg.Budgets.CodeMaxTokens = 4000
	}
	if cfg.Budgets.FileMaxTokens == 0 {
		cfg.Budgets.FileMaxTokens = 2000
	}
	if cfg.Budgets.ChatTemperature == 0 {
		cfg.Budgets.ChatTemperature = 0.7
	}
	if cfg.Budgets.CodeTemperature == 0 {
		cfg.Budgets.CodeTemperature = 0.2
	}

	if cfg.Files.MaxBytes == 0 {
		cfg.Files.MaxBytes = 200_000
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9464"
	}
	if cfg.Secrets.File == "" {
		cfg.Secrets.File = "secrets.json.enc"
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	var problems []string

	if c.Pager.PageSize <= 0 || c.Pager.PageSize > MaxPageSize {
		problems = append(problems, fmt.Sprintf("pager.page_size must be in 1..%d, got %d", MaxPageSize, c.Pager.PageSize))
	}
	if c.Pager.Store != PagerStoreMemory && c.Pager.Store != PagerStoreSQLite {
		problems = append(problems, fmt.Sprintf("pager.store must be %q or %q, got %q", PagerStoreMemory, PagerStoreSQLite, c.Pager.Store))
	}
	if c.Pager.Capacity <= 0 {
		problems = append(problems, "pager.capacity must be positive")
	}
	if c.History.Turns <= 0 {
		problems = append(problems, "history.turns must be positive")
	}
	if c.History.MaxChars <= 0 {
		problems = append(problems, "history.max_chars must be positive")
	}
	if c.History.Conversations <= 0 {
		problems = append(problems, "history.conversations must be positive")
	}
	if c.Gate.MaxConcurrent <= 0 {
		problems = append(problems, "gate.max_concurrent must be positive")
	}
	if c.Gate.RequestTimeoutSeconds <= 0 {
		problems = append(problems, "gate.request_timeout_seconds must be positive")
	}
	if c.Gate.GraceSeconds < 0 {
		problems = append(problems, "gate.grace_seconds cannot be negative")
	}
	if c.Gate.MaxAttempts <= 0 {
		problems = append(problems, "gate.max_attempts must be positive")
	}
	if c.Gate.TokensPerMinute < 0 {
		problems = append(problems, "gate.tokens_per_minute cannot be negative")
	}
	for surface, budget := range map[string]int{
		"chat": c.Budgets.ChatMaxTokens,
		"code": c.Budgets.CodeMaxTokens,
		"file": c.Budgets.FileMaxTokens,
	} {
		if budget <= 0 {
			problems = append(problems, fmt.Sprintf("budgets.%s_max_tokens must be positive", surface))
		}
	}
	for surface, temp := range map[string]float64{
		"chat": c.Budgets.ChatTemperature,
		"code": c.Budgets.CodeTemperature,
	} {
		if temp < 0 || temp > 2 {
			problems = append(problems, fmt.Sprintf("budgets.%s_temperature must be between 0 and 2", surface))
		}
	}
	for surface, model := range map[string]string{
		"chat": c.Models.Chat,
		"code": c.Models.Code,
		"file": c.Models.File,
	} {
		if _, err := GetModelProvider(model); err != nil {
			problems = append(problems, fmt.Sprintf("models.%s: %v", surface, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GetModelProvider returns the API provider for a given model.
// First checks KnownModels, then tries pattern matching.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}

	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}

	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match", modelName)
}

// GetModelInfo returns the ModelInfo for a model and whether it is a known model.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}
	provider, _ := GetModelProvider(modelName)
	return ModelInfo{Provider: provider}, false
}

// GetAPIKey returns the credential for a provider.
// Checks the secrets file first, then falls back to environment variables.
// For Ollama, returns the host URL instead of an API key.
func GetAPIKey(provider string) (string, error) {
	var names []string
	switch provider {
	case ProviderAnthropic:
		names = []string{EnvAnthropicAPIKey}
	case ProviderOpenAI:
		names = []string{EnvOpenAIAPIKey}
	case ProviderGoogle:
		names = []string{EnvGoogleAPIKey, EnvGeminiAPIKey}
	case ProviderOllama:
		// Ollama doesn't use API keys. An unset host means the local default.
		if host, err := GetSecret(EnvOllamaHost); err == nil && host != "" {
			return host, nil
		}
		return "http://localhost:11434", nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	for _, name := range names {
		if key, err := GetSecret(name); err == nil && key != "" {
			return key, nil
		}
	}

	return "", fmt.Errorf("%w: %s not found in secrets file or environment", ErrMissingCredential, strings.Join(names, "/"))
}

// GetTelegramToken returns the bot token from the secrets file or environment.
func GetTelegramToken() (string, error) {
	token, err := GetSecret(EnvTelegramToken)
	if err != nil || token == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingCredential, EnvTelegramToken)
	}
	return token, nil
}

// LogSummary writes the effective configuration (no secrets) to the log.
func (c *Config) LogSummary(logger *logx.Logger) {
	logger.Info("models: chat=%s code=%s file=%s image=%s", c.Models.Chat, c.Models.Code, c.Models.File, c.Models.Image)
	logger.Info("pager: page_size=%d store=%s capacity=%d", c.Pager.PageSize, c.Pager.Store, c.Pager.Capacity)
	logger.Info("history: turns=%d max_chars=%d conversations=%d", c.History.Turns, c.History.MaxChars, c.History.Conversations)
	logger.Info("gate: max_concurrent=%d timeout=%ds grace=%ds attempts=%d tpm=%d",
		c.Gate.MaxConcurrent, c.Gate.RequestTimeoutSeconds, c.Gate.GraceSeconds, c.Gate.MaxAttempts, c.Gate.TokensPerMinute)
}

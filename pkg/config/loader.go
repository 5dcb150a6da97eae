package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every structured environment override.
const EnvPrefix = "RELAY_"

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// legacyEnv maps the short environment names to their structured equivalents.
//
//nolint:gochecknoglobals // Static alias table
var legacyEnv = map[string]string{
	"PAGE_SIZE":       "RELAY_PAGER_PAGE_SIZE",
	"HISTORY_TURNS":   "RELAY_HISTORY_TURNS",
	"MAX_CONCURRENT":  "RELAY_GATE_MAX_CONCURRENT",
	"REQUEST_TIMEOUT": "RELAY_GATE_REQUEST_TIMEOUT_SECONDS",
	"CHAT_MAX_TOKENS": "RELAY_BUDGETS_CHAT_MAX_TOKENS",
	"CODE_MAX_TOKENS": "RELAY_BUDGETS_CODE_MAX_TOKENS",
	"CHAT_MODEL":      "RELAY_MODELS_CHAT",
	"CODE_MODEL":      "RELAY_MODELS_CODE",
	"FILE_MODEL":      "RELAY_MODELS_FILE",
	"IMAGE_MODEL":     "RELAY_MODELS_IMAGE",
}

// Load builds the configuration from defaults, an optional file, and the environment.
// An empty configPath skips the file layer.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Replace environment variable placeholders.
		dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
			envVar := match[2 : len(match)-1]
			if value := os.Getenv(envVar); value != "" {
				return value
			}
			return match
		})

		if err := unmarshalByExtension(configPath, []byte(dataStr), &cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func unmarshalByExtension(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	v := reflect.ValueOf(cfg).Elem()
	t := reflect.TypeOf(cfg).Elem()

	applyEnvOverridesRecursive(v, t, EnvPrefix)
}

func applyEnvOverridesRecursive(v reflect.Value, t reflect.Type, prefix string) {
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		jsonTag := fieldType.Tag.Get("json")
		if jsonTag == "" || jsonTag == "-" {
			continue
		}

		fieldName := strings.Split(jsonTag, ",")[0]
		envKey := strings.ToUpper(prefix + fieldName)

		if field.Kind() == reflect.Struct {
			applyEnvOverridesRecursive(field, field.Type(), envKey+"_")
			continue
		}

		if envValue := lookupEnv(envKey); envValue != "" {
			setFieldFromEnv(field, envValue)
		}
	}
}

// lookupEnv returns the structured variable, falling back to its legacy alias.
func lookupEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	for legacy, structured := range legacyEnv {
		if structured == key {
			return os.Getenv(legacy)
		}
	}
	return ""
}

func setFieldFromEnv(field reflect.Value, envValue string) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int:
		if val, err := parseInt(envValue); err == nil {
			field.SetInt(int64(val))
		}
	case reflect.Float64:
		if val, err := parseFloat(envValue); err == nil {
			field.SetFloat(val)
		}
	case reflect.Bool:
		if val, err := strconv.ParseBool(envValue); err == nil {
			field.SetBool(val)
		}
	}
}

func parseInt(s string) (int, error) {
	result, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("failed to parse int from '%s': %w", s, err)
	}
	return result, nil
}

func parseFloat(s string) (float64, error) {
	result, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse float from '%s': %w", s, err)
	}
	return result, nil
}

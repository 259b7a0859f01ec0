// Package config loads mailtriage settings from defaults, an optional YAML
// file, a .env file and MT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/daviddao/mailtriage/internal/audit"
)

// Dir is the per-project configuration directory.
const Dir = ".mailtriage"

// FileName is the config file inside Dir.
const FileName = "config.yaml"

// Providers supported by the model gateway.
const (
	ProviderOllama = "ollama"
	ProviderClaude = "claude"
)

// Config is the full runtime configuration. Precedence, lowest first:
// Default, config file, environment, command-line flags.
type Config struct {
	Provider        string   `yaml:"provider"`
	OllamaBaseURL   string   `yaml:"ollama_base_url"`
	AnthropicAPIKey string   `yaml:"-"`
	Model           string   `yaml:"model"`
	LabelPrefix     string   `yaml:"label_prefix"`
	MaxBodyChars    int      `yaml:"max_body_chars"`
	MaxRetries      int      `yaml:"max_retries"`
	VIPSenders      []string `yaml:"vip_senders"`

	ArchiveNewsletters bool `yaml:"archive_newsletters"`
	ArchiveSpam        bool `yaml:"archive_spam"`

	LogPath     string `yaml:"log_path"`
	AuditDB     string `yaml:"audit_db"`
	DatabaseURL string `yaml:"database_url"`
	MetricsFile string `yaml:"metrics_file"`

	CredentialsPath string `yaml:"credentials"`
	TokenPath       string `yaml:"token"`
	LogLevel        string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider:        ProviderOllama,
		OllamaBaseURL:   "http://localhost:11434",
		Model:           "llama3.1",
		LabelPrefix:     "AI/",
		MaxBodyChars:    2000,
		MaxRetries:      2,
		LogPath:         audit.DefaultPath,
		CredentialsPath: filepath.Join("secrets", "client_secret.json"),
		TokenPath:       "token.json",
		LogLevel:        "info",
	}
}

// Load reads a YAML file over Default. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Discover finds .mailtriage/config.yaml by walking up from cwd.
// Returns an empty string if none exists.
func Discover() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, Dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// unprefixed names are also honored without the MT_ prefix.
var unprefixed = map[string]bool{
	"OLLAMA_BASE_URL":   true,
	"DEFAULT_MODEL":     true,
	"LOG_PATH":          true,
	"LABEL_PREFIX":      true,
	"MAX_BODY_CHARS":    true,
	"ANTHROPIC_API_KEY": true,
}

func lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv("MT_" + key); ok {
		return v, true
	}
	if unprefixed[key] {
		return os.LookupEnv(key)
	}
	return "", false
}

// ApplyEnv overrides fields from MT_* environment variables.
func (c *Config) ApplyEnv() error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	str("PROVIDER", &c.Provider)
	str("OLLAMA_BASE_URL", &c.OllamaBaseURL)
	str("DEFAULT_MODEL", &c.Model)
	str("LABEL_PREFIX", &c.LabelPrefix)
	str("LOG_PATH", &c.LogPath)
	str("AUDIT_DB", &c.AuditDB)
	str("DATABASE_URL", &c.DatabaseURL)
	str("METRICS_FILE", &c.MetricsFile)
	str("LOG_LEVEL", &c.LogLevel)
	str("ANTHROPIC_API_KEY", &c.AnthropicAPIKey)
	num("MAX_BODY_CHARS", &c.MaxBodyChars)
	num("MAX_RETRIES", &c.MaxRetries)
	flag("ARCHIVE_NEWSLETTERS", &c.ArchiveNewsletters)
	flag("ARCHIVE_SPAM", &c.ArchiveSpam)
	if v, ok := lookup("VIP_SENDERS"); ok && v != "" {
		c.VIPSenders = splitList(v)
	}

	c.OllamaBaseURL = strings.TrimRight(c.OllamaBaseURL, "/")
	return errors.Join(errs...)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderOllama:
		if c.OllamaBaseURL == "" {
			errs = append(errs, errors.New("ollama_base_url is required for the ollama provider"))
		}
	case ProviderClaude:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for the claude provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q (want %s or %s)", c.Provider, ProviderOllama, ProviderClaude))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.MaxBodyChars < 0 {
		errs = append(errs, fmt.Errorf("max_body_chars must be >= 0, got %d", c.MaxBodyChars))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries))
	}
	if c.LogPath == "" && c.AuditDB == "" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("at least one audit sink (log_path, audit_db, database_url) is required"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	defaultEnvFile = ".env"
)

var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is required")

type Config struct {
	Env       string          `yaml:"env"`
	Addr      string          `yaml:"addr"`
	StaticDir string          `yaml:"static_dir"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	// CompanyContextFile replaces the built-in company context when set.
	CompanyContextFile string `yaml:"company_context_file"`
}

type OpenAIConfig struct {
	APIKey          string        `yaml:"api_key"`
	OrgID           string        `yaml:"org_id"`
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	MaxTokens       int           `yaml:"max_tokens"`
	Temperature     float64       `yaml:"temperature"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
}

type RateLimitConfig struct {
	Window time.Duration `yaml:"window"`
	Max    int           `yaml:"max"`
}

type SecurityConfig struct {
	AllowedOrigins  []string `yaml:"allowed_origins"`
	MaxRequestBytes int64    `yaml:"max_request_bytes"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Enabled bool   `yaml:"enabled"`
}

func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE (if
// set), then the process environment. Later sources win.
func Load() (Config, error) {
	if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load %s: %w", defaultEnvFile, err)
	}

	// Logging stays on unless explicitly disabled.
	c := Config{Logging: LoggingConfig{Enabled: true}}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := c.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("APP_ENV", &c.Env)
	str("LISTEN_ADDR", &c.Addr)
	str("STATIC_DIR", &c.StaticDir)
	str("COMPANY_CONTEXT_FILE", &c.CompanyContextFile)
	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("OPENAI_ORG_ID", &c.OpenAI.OrgID)
	str("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	str("OPENAI_MODEL", &c.OpenAI.Model)
	str("LOG_LEVEL", &c.Logging.Level)

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.Security.AllowedOrigins = splitList(v)
	}

	var errs []error
	if v, ok := lookup("OPENAI_MAX_TOKENS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, wrapVar("OPENAI_MAX_TOKENS", err))
		c.OpenAI.MaxTokens = n
	}
	if v, ok := lookup("OPENAI_TEMPERATURE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, wrapVar("OPENAI_TEMPERATURE", err))
		c.OpenAI.Temperature = f
	}
	if v, ok := lookup("UPSTREAM_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, wrapVar("UPSTREAM_TIMEOUT", err))
		c.OpenAI.UpstreamTimeout = d
	}
	if v, ok := lookup("RATE_LIMIT_MAX"); ok && v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, wrapVar("RATE_LIMIT_MAX", err))
		c.RateLimit.Max = n
	}
	if v, ok := lookup("RATE_LIMIT_WINDOW"); ok && v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, wrapVar("RATE_LIMIT_WINDOW", err))
		c.RateLimit.Window = d
	}
	if v, ok := lookup("MAX_REQUEST_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		errs = append(errs, wrapVar("MAX_REQUEST_BYTES", err))
		c.Security.MaxRequestBytes = n
	}
	if v, ok := lookup("ENABLE_LOGGING"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		errs = append(errs, wrapVar("ENABLE_LOGGING", err))
		c.Logging.Enabled = b
	}
	return errors.Join(errs...)
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = EnvDevelopment
	}
	if c.Addr == "" {
		c.Addr = ":8100"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4"
	}
	if c.OpenAI.MaxTokens == 0 {
		c.OpenAI.MaxTokens = 2000
	}
	if c.OpenAI.Temperature == 0 {
		c.OpenAI.Temperature = 0.7
	}
	if c.OpenAI.UpstreamTimeout == 0 {
		c.OpenAI.UpstreamTimeout = 2 * time.Minute
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = 15 * time.Minute
	}
	if c.RateLimit.Max == 0 {
		if c.IsProduction() {
			c.RateLimit.Max = 100
		} else {
			c.RateLimit.Max = 1000
		}
	}
	if len(c.Security.AllowedOrigins) == 0 {
		c.Security.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.Security.MaxRequestBytes == 0 {
		c.Security.MaxRequestBytes = 1 << 20
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports configuration the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.OpenAI.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if c.OpenAI.MaxTokens < 1 {
		errs = append(errs, errors.New("openai max tokens must be positive"))
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		errs = append(errs, errors.New("openai temperature must be between 0 and 2"))
	}
	if c.RateLimit.Max < 1 {
		errs = append(errs, errors.New("rate limit max must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit window must be positive"))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unsupported log level %q", c.Logging.Level))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func wrapVar(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("invalid %s: %w", name, err)
}

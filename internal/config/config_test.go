package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "APP_ENV", "LISTEN_ADDR", "STATIC_DIR", "COMPANY_CONTEXT_FILE",
		"OPENAI_API_KEY", "OPENAI_ORG_ID", "OPENAI_BASE_URL", "OPENAI_MODEL",
		"OPENAI_MAX_TOKENS", "OPENAI_TEMPERATURE", "UPSTREAM_TIMEOUT",
		"RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW", "ALLOWED_ORIGINS",
		"MAX_REQUEST_BYTES", "LOG_LEVEL", "ENABLE_LOGGING",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, c.Env)
	assert.False(t, c.IsProduction())
	assert.Equal(t, ":8100", c.Addr)
	assert.Equal(t, "gpt-4", c.OpenAI.Model)
	assert.Equal(t, 2000, c.OpenAI.MaxTokens)
	assert.Equal(t, 0.7, c.OpenAI.Temperature)
	assert.Equal(t, 1000, c.RateLimit.Max)
	assert.Equal(t, 15*time.Minute, c.RateLimit.Window)
	assert.Equal(t, []string{"http://localhost:3000"}, c.Security.AllowedOrigins)
	assert.Equal(t, int64(1<<20), c.Security.MaxRequestBytes)
	assert.Equal(t, "info", c.Logging.Level)
	assert.True(t, c.Logging.Enabled)
	assert.NoError(t, c.Validate())
}

func TestLoadProductionLimit(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("APP_ENV", "production")

	c, err := Load()
	require.NoError(t, err)
	assert.True(t, c.IsProduction())
	assert.Equal(t, 100, c.RateLimit.Max)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_ORG_ID", "org-1")
	t.Setenv("ALLOWED_ORIGINS", "https://libelnet.nl, https://www.libelnet.nl,")
	t.Setenv("RATE_LIMIT_MAX", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "1m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ENABLE_LOGGING", "false")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "org-1", c.OpenAI.OrgID)
	assert.Equal(t, []string{"https://libelnet.nl", "https://www.libelnet.nl"}, c.Security.AllowedOrigins)
	assert.Equal(t, 5, c.RateLimit.Max)
	assert.Equal(t, time.Minute, c.RateLimit.Window)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.False(t, c.Logging.Enabled)
}

func TestLoadInvalidNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT_MAX", "lots")

	_, err := Load()
	assert.ErrorContains(t, err, "RATE_LIMIT_MAX")
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: production
openai:
  api_key: sk-from-file
  model: gpt-4o-mini
rate_limit:
  max: 20
  window: 30s
logging:
  level: warn
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("OPENAI_MODEL", "gpt-4")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", c.OpenAI.APIKey)
	assert.Equal(t, "gpt-4", c.OpenAI.Model)
	assert.Equal(t, 20, c.RateLimit.Max)
	assert.Equal(t, 30*time.Second, c.RateLimit.Window)
	assert.Equal(t, "warn", c.Logging.Level)
	assert.True(t, c.Logging.Enabled)
}

func TestValidateRequiresAPIKey(t *testing.T) {
	clearEnv(t)
	c, err := Load()
	require.NoError(t, err)

	assert.ErrorIs(t, c.Validate(), ErrMissingAPIKey)
}

func TestValidateRejectsLogLevel(t *testing.T) {
	c := Config{
		OpenAI:    OpenAIConfig{APIKey: "k", MaxTokens: 1, Temperature: 0.5},
		RateLimit: RateLimitConfig{Max: 1, Window: time.Second},
		Logging:   LoggingConfig{Level: "verbose"},
	}
	assert.ErrorContains(t, c.Validate(), "verbose")
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(Config{Env: EnvProduction, Logging: LoggingConfig{Level: "warn", Enabled: true}})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel), "debug must be filtered")

	nop, err := NewLogger(Config{Logging: LoggingConfig{Level: "info"}})
	require.NoError(t, err)
	assert.False(t, nop.Core().Enabled(zapcore.ErrorLevel))
}

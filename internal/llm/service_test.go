package llm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RichardoC/libelnet-chat/internal/config"
	"github.com/RichardoC/libelnet-chat/internal/llm/llmtest"
	"github.com/RichardoC/libelnet-chat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

var testConfig = config.OpenAIConfig{
	Model:           "gpt-4",
	MaxTokens:       2000,
	Temperature:     0.7,
	UpstreamTimeout: time.Minute,
}

func TestStreamPrependsSystemPrompt(t *testing.T) {
	model := &llmtest.Model{Fragments: []string{"Hel", "lo"}}
	svc := NewWithModel(model, testConfig, "ACME sells anvils.")

	var got []string
	err := svc.Stream(context.Background(), []models.WireMessage{
		{Role: models.RoleUser, Content: "What do you sell?"},
		{Role: models.RoleAssistant, Content: "Anvils."},
		{Role: models.RoleUser, Content: "Anything else?"},
	}, func(f string) error {
		got = append(got, f)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, got)

	msgs := model.LastMessages()
	require.Len(t, msgs, 4)
	assert.Equal(t, schema.ChatMessageTypeSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Parts[0].(llms.TextContent).Text, "ACME sells anvils.")
	assert.Equal(t, schema.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, schema.ChatMessageTypeAI, msgs[2].Role)
	assert.Equal(t, llms.TextContent{Text: "Anything else?"}, msgs[3].Parts[0])

	opts := model.LastOptions()
	assert.Equal(t, "gpt-4", opts.Model)
	assert.Equal(t, 2000, opts.MaxTokens)
	assert.Equal(t, 0.7, opts.Temperature)
}

func TestStreamSkipsEmptyFragments(t *testing.T) {
	model := &llmtest.Model{Fragments: []string{"", "a", "", "b"}}
	svc := NewWithModel(model, testConfig, "")

	var got []string
	require.NoError(t, svc.Stream(context.Background(), nil, func(f string) error {
		got = append(got, f)
		return nil
	}))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestStreamWrapsProviderError(t *testing.T) {
	boom := errors.New("401 unauthorized")
	svc := NewWithModel(&llmtest.Model{Err: boom}, testConfig, "")

	err := svc.Stream(context.Background(), nil, func(string) error { return nil })
	assert.ErrorIs(t, err, boom)
}

func TestStreamStopsOnCallbackError(t *testing.T) {
	model := &llmtest.Model{Fragments: []string{"a", "b", "c"}}
	svc := NewWithModel(model, testConfig, "")
	gone := errors.New("client gone")

	n := 0
	err := svc.Stream(context.Background(), nil, func(string) error {
		n++
		return gone
	})
	assert.ErrorIs(t, err, gone)
	assert.Equal(t, 1, n)
}

func TestStreamHonoursUpstreamTimeout(t *testing.T) {
	cfg := testConfig
	cfg.UpstreamTimeout = 20 * time.Millisecond
	svc := NewWithModel(&llmtest.Model{Block: true}, cfg, "")

	err := svc.Stream(context.Background(), nil, func(string) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProbe(t *testing.T) {
	model := &llmtest.Model{Fragments: []string{"Hi", "!"}}
	svc := NewWithModel(model, testConfig, "")

	res, err := svc.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", res.Model)
	assert.Equal(t, "stop", res.StopReason)
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 2, TotalTokens: 14}, res.Usage)

	msgs := model.LastMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, llms.TextContent{Text: probePrompt}, msgs[0].Parts[0])
	assert.Equal(t, probeMaxTokens, model.LastOptions().MaxTokens)
}

func TestLoadCompanyContext(t *testing.T) {
	def, err := LoadCompanyContext("")
	require.NoError(t, err)
	assert.Contains(t, def, "Dorpstraat 58")

	path := filepath.Join(t.TempDir(), "context.md")
	require.NoError(t, os.WriteFile(path, []byte("ACME"), 0o600))
	custom, err := LoadCompanyContext(path)
	require.NoError(t, err)
	assert.Equal(t, "ACME", custom)

	_, err = LoadCompanyContext(filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}

package llm

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/RichardoC/libelnet-chat/internal/config"
	"github.com/RichardoC/libelnet-chat/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

//go:embed company.md
var defaultCompanyContext string

const (
	probePrompt    = "Hello, this is a test message."
	probeMaxTokens = 50
)

type Service struct {
	llm          llms.Model
	model        string
	maxTokens    int
	temperature  float64
	timeout      time.Duration
	systemPrompt string
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ProbeResult describes a successful non-streaming provider call.
type ProbeResult struct {
	Model      string `json:"model"`
	StopReason string `json:"stopReason,omitempty"`
	Usage      Usage  `json:"usage"`
}

func New(cfg config.OpenAIConfig, companyContext string) (*Service, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.OrgID != "" {
		opts = append(opts, openai.WithOrganization(cfg.OrgID))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}
	return NewWithModel(llm, cfg, companyContext), nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(llm llms.Model, cfg config.OpenAIConfig, companyContext string) *Service {
	return &Service{
		llm:          llm,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		timeout:      cfg.UpstreamTimeout,
		systemPrompt: SystemPrompt(companyContext),
	}
}

// LoadCompanyContext returns the context the assistant answers from: the
// contents of path, or the built-in LibelNet profile when path is empty.
func LoadCompanyContext(path string) (string, error) {
	if path == "" {
		return defaultCompanyContext, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read company context: %w", err)
	}
	return string(data), nil
}

func SystemPrompt(companyContext string) string {
	return fmt.Sprintf(`You are LibelNet's AI assistant. Use this context for accurate responses:

%s

Instructions:
- Always provide accurate information based on the above context
- Be professional and concise
- If information isn't in the context, acknowledge that you don't have that specific information
- Always use the correct location details from the context
- Maintain a helpful and professional tone`, strings.TrimSpace(companyContext))
}

func (s *Service) Model() string {
	return s.model
}

// Stream sends the conversation, preceded by the system prompt, and calls
// onFragment with each non-empty piece of the reply as it arrives. An error
// returned by onFragment stops the stream and is returned wrapped.
func (s *Service) Stream(ctx context.Context, msgs []models.WireMessage, onFragment func(string) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	_, err := s.llm.GenerateContent(ctx, s.buildMessages(msgs),
		llms.WithModel(s.model),
		llms.WithMaxTokens(s.maxTokens),
		llms.WithTemperature(s.temperature),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return onFragment(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to generate completion: %w", err)
	}
	return nil
}

// Probe makes a small non-streaming call to check provider connectivity.
func (s *Service) Probe(ctx context.Context) (ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := s.llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, probePrompt)},
		llms.WithModel(s.model),
		llms.WithMaxTokens(probeMaxTokens),
	)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("probe completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ProbeResult{}, fmt.Errorf("probe completion returned no choices")
	}

	choice := resp.Choices[0]
	return ProbeResult{
		Model:      s.model,
		StopReason: choice.StopReason,
		Usage: Usage{
			PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
			CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
			TotalTokens:      intInfo(choice.GenerationInfo, "TotalTokens"),
		},
	}, nil
}

func (s *Service) buildMessages(msgs []models.WireMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs)+1)
	out = append(out, llms.TextParts(schema.ChatMessageTypeSystem, s.systemPrompt))
	for _, m := range msgs {
		out = append(out, llms.TextParts(messageType(m.Role), m.Content))
	}
	return out
}

func messageType(role models.Role) schema.ChatMessageType {
	switch role {
	case models.RoleAssistant:
		return schema.ChatMessageTypeAI
	case models.RoleSystem:
		return schema.ChatMessageTypeSystem
	default:
		return schema.ChatMessageTypeHuman
	}
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

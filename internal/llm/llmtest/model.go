// Package llmtest provides a scripted llms.Model for exercising the relay
// without a provider.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

type Model struct {
	// Fragments are streamed in order.
	Fragments []string
	// Err fails the call before anything is streamed.
	Err error
	// StreamErr fails the call after FailAfter fragments were streamed.
	StreamErr error
	FailAfter int
	// Block holds the call until the context is done.
	Block bool

	mu       sync.Mutex
	calls    int
	messages []llms.MessageContent
	options  llms.CallOptions
}

var _ llms.Model = (*Model)(nil)

func (m *Model) GenerateContent(ctx context.Context, msgs []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	var o llms.CallOptions
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.Lock()
	m.calls++
	m.messages = msgs
	m.options = o
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if m.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	var b strings.Builder
	for i, f := range m.Fragments {
		if m.StreamErr != nil && i == m.FailAfter {
			return nil, m.StreamErr
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if o.StreamingFunc != nil {
			if err := o.StreamingFunc(ctx, []byte(f)); err != nil {
				return nil, err
			}
		}
		b.WriteString(f)
	}
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    b.String(),
			StopReason: "stop",
			GenerationInfo: map[string]any{
				"PromptTokens":     12,
				"CompletionTokens": len(m.Fragments),
				"TotalTokens":      12 + len(m.Fragments),
			},
		}},
	}, nil
}

func (m *Model) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastMessages returns the messages of the most recent call.
func (m *Model) LastMessages() []llms.MessageContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages
}

func (m *Model) LastOptions() llms.CallOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.options
}

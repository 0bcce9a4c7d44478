package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RichardoC/libelnet-chat/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const Apology = "I apologize, but I encountered an error. Please try again."

var (
	ErrBusy             = errors.New("a reply is already streaming")
	ErrEmptyInput       = errors.New("message is empty")
	ErrRetriesExhausted = errors.New("chat request failed after retries")
)

// Store persists a conversation after it changes.
type Store interface {
	SaveConversation(ctx context.Context, conv *models.Conversation) error
}

// Session holds one conversation and sends user turns to the relay, filling
// an assistant placeholder as the reply streams in. Only one send may be in
// flight at a time.
type Session struct {
	client   *Client
	store    Store
	onUpdate func(models.Message)
	now      func() time.Time

	mu      sync.Mutex
	conv    *models.Conversation
	loading bool
}

// NewSession wraps conv. store and onUpdate may be nil. onUpdate receives the
// assistant message every time its content changes.
func (c *Client) NewSession(conv *models.Conversation, store Store, onUpdate func(models.Message)) *Session {
	return &Session{
		client:   c,
		store:    store,
		onUpdate: onUpdate,
		now:      time.Now,
		conv:     conv,
	}
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Conversation returns a copy of the current conversation.
func (s *Session) Conversation() models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := *s.conv
	conv.Messages = append([]models.Message(nil), s.conv.Messages...)
	return conv
}

// Send appends input as a user message and streams the reply into a new
// assistant message, retrying the whole request on failure. When every
// attempt fails the assistant message carries Apology and the returned error
// wraps ErrRetriesExhausted.
func (s *Session) Send(ctx context.Context, input string) (models.Message, error) {
	content := strings.TrimSpace(input)
	if content == "" {
		return models.Message{}, ErrEmptyInput
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return models.Message{}, ErrBusy
	}
	s.loading = true
	s.conv.Messages = append(s.conv.Messages, models.Message{
		ID:      uuid.NewString(),
		Role:    models.RoleUser,
		Content: content,
	})
	history := s.conv.Wire()
	idx := len(s.conv.Messages)
	placeholder := models.Message{ID: uuid.NewString(), Role: models.RoleAssistant}
	s.conv.Messages = append(s.conv.Messages, placeholder)
	s.conv.Touch(s.now())
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	s.save(ctx)
	s.notify(placeholder)

	logger := s.client.logger.With(zap.String("conversation_id", s.conv.ID))
	maxAttempts := s.client.cfg.MaxAttempts

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, s.client.cfg.RetryDelay); err != nil {
				lastErr = err
				break
			}
			logger.Info("Retrying chat request", zap.Int("attempt", attempt))
		}

		s.setContent(idx, "")
		var reply strings.Builder
		err := s.client.Stream(ctx, history, func(chunk string) {
			reply.WriteString(chunk)
			s.notify(s.setContent(idx, reply.String()))
		})
		if err == nil {
			msg := s.setContent(idx, reply.String())
			s.save(ctx)
			return msg, nil
		}

		lastErr = err
		logger.Warn("Chat attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}

	msg := s.setContent(idx, Apology)
	s.notify(msg)
	s.save(ctx)
	return msg, fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

func (s *Session) setContent(idx int, content string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv.Messages[idx].Content = content
	return s.conv.Messages[idx]
}

func (s *Session) notify(msg models.Message) {
	if s.onUpdate != nil {
		s.onUpdate(msg)
	}
}

func (s *Session) save(ctx context.Context) {
	if s.store == nil {
		return
	}
	conv := s.Conversation()
	// A canceled send is still recorded.
	if err := s.store.SaveConversation(context.WithoutCancel(ctx), &conv); err != nil {
		s.client.logger.Error("Failed to save conversation",
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
	}
}

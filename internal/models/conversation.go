package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// WireMessage is the role/content pair exchanged with the relay.
type WireMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	Preview  string    `json:"preview"`
	Messages []Message `json:"messages"`
}

const (
	DefaultTitle     = "New Conversation"
	DefaultPreview   = "Start a new conversation with LibelNet AI"
	WelcomeMessageID = "welcome-message"
	WelcomeMessage   = "Hello! I'm the LibelNet AI assistant. How can I help you today?"

	titleLength = 30
)

func NewConversation(id string, now time.Time) *Conversation {
	return &Conversation{
		ID:      id,
		Title:   DefaultTitle,
		Date:    now,
		Preview: DefaultPreview,
		Messages: []Message{
			{ID: WelcomeMessageID, Role: RoleAssistant, Content: WelcomeMessage},
		},
	}
}

// Wire returns the conversation history in the shape the relay accepts.
func (c *Conversation) Wire() []WireMessage {
	out := make([]WireMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, WireMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// LastUserMessage returns the most recent user message, if any.
func (c *Conversation) LastUserMessage() (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}

// Touch derives title, preview and date from the latest user message.
// Conversations without a user message are left untouched.
func (c *Conversation) Touch(now time.Time) {
	last, ok := c.LastUserMessage()
	if !ok {
		return
	}
	c.Title = Title(last.Content)
	c.Preview = last.Content
	c.Date = now
}

// Title truncates content to the sidebar title length.
func Title(content string) string {
	if utf8.RuneCountInString(content) <= titleLength {
		return content
	}
	var b strings.Builder
	n := 0
	for _, r := range content {
		if n == titleLength {
			break
		}
		b.WriteRune(r)
		n++
	}
	b.WriteString("...")
	return b.String()
}

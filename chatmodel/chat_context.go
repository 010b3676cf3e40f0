package chatmodel

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/google/uuid"
)

// ChatContext identifies one conversation with the server.
type ChatContext interface {
	GetChatID() string
	// CreatedAt is when the conversation started.
	CreatedAt() time.Time
	// NextQuery returns the sequence number of a new query, starting at 1.
	NextQuery() int
}

type chatContext struct {
	chatID    string
	createdAt time.Time
	queries   atomic.Int32
}

// NewChatContext returns a chat context, with a new ID when chatID is empty.
func NewChatContext(chatID string) ChatContext {
	return &chatContext{
		chatID:    values.StringsCoalesce(chatID, NewChatID()),
		createdAt: time.Now(),
	}
}

func (c *chatContext) GetChatID() string {
	return c.chatID
}

func (c *chatContext) CreatedAt() time.Time {
	return c.createdAt
}

func (c *chatContext) NextQuery() int {
	return int(c.queries.Add(1))
}

type contextKey struct{}

// WithChatContext returns a new context with ChatContext value
func WithChatContext(ctx context.Context, chatCtx ChatContext) context.Context {
	return context.WithValue(ctx, contextKey{}, chatCtx)
}

// GetChatContext returns the ChatContext of ctx, or nil.
func GetChatContext(ctx context.Context) ChatContext {
	c, _ := ctx.Value(contextKey{}).(ChatContext)
	return c
}

// GetChatID returns the chat ID of ctx, or empty string.
func GetChatID(ctx context.Context) string {
	if c := GetChatContext(ctx); c != nil {
		return c.GetChatID()
	}
	return ""
}

// RequireChatID returns the chat ID, or ErrInvalidChatContext.
func RequireChatID(ctx context.Context) (string, error) {
	id := GetChatID(ctx)
	if id == "" {
		return "", errors.WithStack(ErrInvalidChatContext)
	}
	return id, nil
}

// NewChatID generates a new chat ID.
func NewChatID() string {
	return uuid.NewString()
}

// Package store keeps conversation messages in memory.
package store

import (
	"context"

	"github.com/effective-security/mcpchat/pkg/llms"
)

// MessageStore is an append-only message history keyed by the chat ID
// of the context.
type MessageStore interface {
	// Messages returns a copy of the chat history in insertion order.
	Messages(ctx context.Context) []llms.Message
	// Len returns the number of messages in the chat history.
	Len(ctx context.Context) int
	// Add appends messages to the chat history.
	Add(ctx context.Context, msgs ...llms.Message) error
	// Reset discards the chat history.
	Reset(ctx context.Context) error
}

package store

import (
	"context"
	"slices"
	"sync"

	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/pkg/llms"
)

type inMemory struct {
	mu      sync.RWMutex
	storage map[string][]llms.Message
}

func NewMemoryStore() MessageStore {
	return &inMemory{}
}

func (m *inMemory) Messages(ctx context.Context) []llms.Message {
	chatID := chatmodel.GetChatID(ctx)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.storage == nil || chatID == "" {
		return nil
	}
	return slices.Clone(m.storage[chatID])
}

func (m *inMemory) Len(ctx context.Context) int {
	chatID := chatmodel.GetChatID(ctx)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.storage == nil {
		return 0
	}
	return len(m.storage[chatID])
}

func (m *inMemory) Add(ctx context.Context, msgs ...llms.Message) error {
	chatID, err := chatmodel.RequireChatID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string][]llms.Message)
	}
	m.storage[chatID] = append(m.storage[chatID], msgs...)
	return nil
}

func (m *inMemory) Reset(ctx context.Context) error {
	chatID, err := chatmodel.RequireChatID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage != nil {
		delete(m.storage, chatID)
	}
	return nil
}

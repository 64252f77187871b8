package core

import (
	"sync"

	"mindhelper.ai/backend/internal/store"
)

// Conversation is the ordered, append-only message list of one chat.
// Messages are never reordered or removed.
type Conversation struct {
	mu       sync.Mutex
	messages []store.Message
}

func NewConversation(messages []store.Message) *Conversation {
	c := &Conversation{}
	c.messages = append(c.messages, messages...)
	return c
}

func (c *Conversation) Append(m store.Message) {
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
}

// Messages returns a copy of the current list.
func (c *Conversation) Messages() []store.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]store.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

package agent

import (
	"sync"

	"github.com/zhanyun614531-alt/dingtalk-bot/internal/agent/llm"
)

// Memory is a bounded per-conversation chat history.
type Memory struct {
	mu         sync.Mutex
	maxHistory int
	history    []llm.Message
}

// NewMemory constructs a Memory keeping at most maxHistory turns.
func NewMemory(maxHistory int) *Memory {
	return &Memory{maxHistory: maxHistory}
}

// Add appends a turn, truncating the oldest entries past the limit.
func (m *Memory) Add(role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, llm.Message{Role: role, Content: content})
	if m.maxHistory > 0 && len(m.history) > m.maxHistory {
		m.history = m.history[len(m.history)-m.maxHistory:]
	}
}

// Len reports the number of retained turns.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Messages returns the system prompt followed by the retained history.
func (m *Memory) Messages(systemPrompt string) []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := make([]llm.Message, 0, len(m.history)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	msgs = append(msgs, m.history...)
	return msgs
}

// Seed replaces the retained history, used when restoring a conversation
// from the persistent store.
func (m *Memory) Seed(history []llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxHistory > 0 && len(history) > m.maxHistory {
		history = history[len(history)-m.maxHistory:]
	}
	m.history = append([]llm.Message(nil), history...)
}

// MemoryStore hands out one Memory per conversation.
type MemoryStore struct {
	mu         sync.Mutex
	maxHistory int
	memories   map[string]*Memory
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{
		maxHistory: maxHistory,
		memories:   make(map[string]*Memory),
	}
}

// Get returns the Memory for a conversation, creating it on first use.
func (s *MemoryStore) Get(conversationID string) *Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	mem, ok := s.memories[conversationID]
	if !ok {
		mem = NewMemory(s.maxHistory)
		s.memories[conversationID] = mem
	}
	return mem
}

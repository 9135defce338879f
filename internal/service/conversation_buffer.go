package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BufferedMessage es la forma compacta que guarda el buffer de corto plazo.
type BufferedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationBuffer es la secuencia acotada de los ultimos M mensajes por
// conversacion, con resumen rodante opcional. Dos implementaciones: mapa en
// proceso (replica unica) y Redis (multi-replica).
type ConversationBuffer interface {
	Append(ctx context.Context, conversationID uuid.UUID, msg BufferedMessage) error
	Get(ctx context.Context, conversationID uuid.UUID) ([]BufferedMessage, error)
	SetSummary(ctx context.Context, conversationID uuid.UUID, summary string) error
	GetSummary(ctx context.Context, conversationID uuid.UUID) (string, error)
	// Reset descarta los mensajes pero conserva el resumen.
	Reset(ctx context.Context, conversationID uuid.UUID) error
	Cleanup(ctx context.Context, idleFor time.Duration) error
}

type bufferEntry struct {
	messages     []BufferedMessage
	summary      string
	lastActivity time.Time
}

// MemoryConversationBuffer protege cada conversacion con un lock global de
// mapa; suficiente para despliegues de una replica.
type MemoryConversationBuffer struct {
	mu      sync.Mutex
	size    int
	entries map[uuid.UUID]*bufferEntry
}

func NewMemoryConversationBuffer(size int) *MemoryConversationBuffer {
	if size <= 0 {
		size = 10
	}
	return &MemoryConversationBuffer{
		size:    size,
		entries: make(map[uuid.UUID]*bufferEntry),
	}
}

func (b *MemoryConversationBuffer) entry(id uuid.UUID) *bufferEntry {
	e, ok := b.entries[id]
	if !ok {
		e = &bufferEntry{}
		b.entries[id] = e
	}
	e.lastActivity = time.Now().UTC()
	return e
}

func (b *MemoryConversationBuffer) Append(_ context.Context, id uuid.UUID, msg BufferedMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry(id)
	e.messages = append(e.messages, msg)
	if len(e.messages) > b.size {
		e.messages = e.messages[len(e.messages)-b.size:]
	}
	return nil
}

func (b *MemoryConversationBuffer) Get(_ context.Context, id uuid.UUID) ([]BufferedMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	if !ok {
		return nil, nil
	}
	out := make([]BufferedMessage, len(e.messages))
	copy(out, e.messages)
	return out, nil
}

func (b *MemoryConversationBuffer) SetSummary(_ context.Context, id uuid.UUID, summary string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entry(id).summary = summary
	return nil
}

func (b *MemoryConversationBuffer) GetSummary(_ context.Context, id uuid.UUID) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	if !ok {
		return "", nil
	}
	return e.summary, nil
}

func (b *MemoryConversationBuffer) Reset(_ context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[id]; ok {
		e.messages = nil
	}
	return nil
}

func (b *MemoryConversationBuffer) Cleanup(_ context.Context, idleFor time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := time.Now().UTC().Add(-idleFor)
	for id, e := range b.entries {
		if e.lastActivity.Before(cutoff) {
			delete(b.entries, id)
		}
	}
	return nil
}

var _ ConversationBuffer = (*MemoryConversationBuffer)(nil)

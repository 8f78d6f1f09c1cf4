package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

var _ core.Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store. It mirrors SQLStore validation and is
// used when no database path is configured and in tests.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	nextMessageID int64
	nextDirectID  int64

	channels map[string]domain.Channel
	messages []domain.Message
	directs  []domain.DirectMessage
}

func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:           now,
		nextMessageID: 1,
		nextDirectID:  1,
		channels:      make(map[string]domain.Channel),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) ListChannels(_ context.Context, t domain.ChannelType) ([]domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		if t == "" || ch.Type == t {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetChannel(_ context.Context, name string) (*domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[name]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

func (s *MemoryStore) CreateChannel(_ context.Context, ch *domain.Channel) error {
	if err := ch.Validate(); err != nil {
		return fmt.Errorf("store: create channel: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.channels[ch.Name]; exists {
		return fmt.Errorf("store: create channel: %w", ErrChannelExists)
	}
	s.channels[ch.Name] = *ch
	return nil
}

func (s *MemoryStore) DeleteChannel(_ context.Context, name string) (*domain.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[name]
	if !ok {
		return nil, nil
	}
	delete(s.channels, name)
	return &ch, nil
}

func (s *MemoryStore) FindChannelHistory(_ context.Context, channel domain.ChannelName, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Message
	for _, m := range s.messages {
		if m.Channel == channel {
			out = append(out, cloneMessage(m))
		}
	}
	return tail(out, limit), nil
}

func (s *MemoryStore) InsertMessage(_ context.Context, m *domain.Message) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("store: message failed validation: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextMessageID
	s.nextMessageID++
	m.CreatedAt = s.now()
	s.messages = append(s.messages, cloneMessage(*m))
	return nil
}

func (s *MemoryStore) DeleteMessage(_ context.Context, id int64) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.ID == id {
			s.messages = slices.Delete(s.messages, i, i+1)
			return &m, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindConversation(_ context.Context, conversationID string, limit int) ([]domain.DirectMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DirectMessage
	for _, m := range s.directs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return tail(out, limit), nil
}

func (s *MemoryStore) InsertDirectMessage(_ context.Context, m *domain.DirectMessage) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("store: direct message failed validation: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextDirectID
	s.nextDirectID++
	m.CreatedAt = s.now()
	s.directs = append(s.directs, *m)
	return nil
}

func cloneMessage(m domain.Message) domain.Message {
	m.Mentions = slices.Clone(m.Mentions)
	m.Attachments = slices.Clone(m.Attachments)
	return m
}

func tail[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[len(s)-limit:]
	}
	return s
}

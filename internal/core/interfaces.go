package core

import (
	"context"

	"github.com/dkeye/parley/internal/domain"
)

// Authenticator verifies a bearer credential. It is called once per connection.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*domain.User, error)
}

type ChannelStore interface {
	ListChannels(ctx context.Context, t domain.ChannelType) ([]domain.Channel, error)
	GetChannel(ctx context.Context, name string) (*domain.Channel, error)
	CreateChannel(ctx context.Context, ch *domain.Channel) error
	DeleteChannel(ctx context.Context, name string) (*domain.Channel, error)
}

type MessageStore interface {
	// FindChannelHistory returns at most limit messages, oldest first.
	FindChannelHistory(ctx context.Context, channel domain.ChannelName, limit int) ([]domain.Message, error)
	InsertMessage(ctx context.Context, m *domain.Message) error
	DeleteMessage(ctx context.Context, id int64) (*domain.Message, error)
}

type DirectMessageStore interface {
	// FindConversation returns at most limit messages, oldest first.
	FindConversation(ctx context.Context, conversationID string, limit int) ([]domain.DirectMessage, error)
	InsertDirectMessage(ctx context.Context, m *domain.DirectMessage) error
}

// Store is the persistent store collaborator. The core owns none of its
// durability guarantees.
type Store interface {
	ChannelStore
	MessageStore
	DirectMessageStore
	Close() error
}

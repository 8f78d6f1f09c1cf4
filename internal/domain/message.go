package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MessageMaxBodyLength = 2000
	MaxMentions          = 20
	MaxAttachments       = 10
)

var (
	ErrMessageBodyTooLong = fmt.Errorf("message body exceeds %d characters", MessageMaxBodyLength)
	ErrMessageBodyEmpty   = errors.New("message body cannot be empty")
	ErrTooManyMentions    = fmt.Errorf("message mentions more than %d users", MaxMentions)
	ErrTooManyAttachments = fmt.Errorf("message carries more than %d attachments", MaxAttachments)
)

// Attachment references an already uploaded file. Uploads are handled elsewhere.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Message is a chat message posted to a text channel.
type Message struct {
	ID          int64        `json:"id"`
	Channel     ChannelName  `json:"channel"`
	Author      string       `json:"author"`
	Text        string       `json:"text"`
	Mentions    []string     `json:"mentions,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

func (m *Message) Validate() error {
	if strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0 {
		return ErrMessageBodyEmpty
	} else if utf8.RuneCountInString(m.Text) > MessageMaxBodyLength {
		return ErrMessageBodyTooLong
	}
	if len(m.Mentions) > MaxMentions {
		return ErrTooManyMentions
	}
	if len(m.Attachments) > MaxAttachments {
		return ErrTooManyAttachments
	}
	return nil
}

// DirectMessage is a private message between two users.
type DirectMessage struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversationId"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (m *DirectMessage) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return ErrMessageBodyEmpty
	} else if utf8.RuneCountInString(m.Text) > MessageMaxBodyLength {
		return ErrMessageBodyTooLong
	}
	return ValidateUsername(m.To)
}

// ConversationID is symmetric: both participants resolve the same id.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1]
}

package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

type ChannelType string

const (
	ChannelText  ChannelType = "text"
	ChannelVoice ChannelType = "voice"
)

const (
	MaxChannelNameLength = 64
	MaxChannelDescLength = 256
)

var (
	ErrChannelNameEmpty   = errors.New("channel name must not be empty")
	ErrChannelNameTooLong = errors.New("channel name too long")
	ErrChannelDescTooLong = errors.New("channel description too long")
	ErrChannelType        = errors.New("channel type must be text or voice")
)

func ParseChannelType(s string) (ChannelType, error) {
	switch t := ChannelType(strings.ToLower(strings.TrimSpace(s))); t {
	case ChannelText, ChannelVoice:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrChannelType, s)
	}
}

// Channel is a catalog entry: a text channel or a voice room definition.
type Channel struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        ChannelType `json:"type"`
}

func (ch *Channel) Validate() error {
	if strings.TrimSpace(ch.Name) == "" {
		return ErrChannelNameEmpty
	} else if utf8.RuneCountInString(ch.Name) > MaxChannelNameLength {
		return ErrChannelNameTooLong
	}
	if utf8.RuneCountInString(ch.Description) > MaxChannelDescLength {
		return ErrChannelDescTooLong
	}
	if _, err := ParseChannelType(string(ch.Type)); err != nil {
		return err
	}
	return nil
}

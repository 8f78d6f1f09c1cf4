package core

import (
	"encoding/json"

	"github.com/dkeye/parley/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Outbound event types.
const (
	EvUserInfo        = "user-info"
	EvChannelList     = "channel-list"
	EvVoiceRoomList   = "voice-room-list"
	EvChatHistory     = "chat-history"
	EvChatMessage     = "chat-message"
	EvMessageDeleted  = "message-deleted"
	EvDirectMessage   = "direct-message"
	EvDirectHistory   = "direct-history"
	EvVoiceRoster     = "voice-roster"
	EvVoiceJoined     = "voice-joined"
	EvVoiceLeft       = "voice-left"
	EvUserJoinedVoice = "user-joined-voice"
	EvUserLeftVoice   = "user-left-voice"
	EvVoiceState      = "voice-state-changed"
	EvOnlineUsers     = "online-users"
	EvKicked          = "kicked"
	EvError           = "error"
	EvSuccess         = "success"
	EvPong            = "pong"
)

type UserInfoEvent struct {
	Type        string             `json:"type"`
	SessionID   SessionID          `json:"sessionId"`
	Username    string             `json:"username"`
	IsAdmin     bool               `json:"isAdmin"`
	TextChannel domain.ChannelName `json:"textChannel,omitempty"`
	VoiceRoom   domain.RoomName    `json:"voiceRoom,omitempty"`
	// VoiceState is the in-room state, or the toggles kept for the next join.
	VoiceState *domain.VoiceState `json:"voiceState,omitempty"`
	ICEServers []webrtc.ICEServer `json:"iceServers,omitempty"`
}

type ChannelListEvent struct {
	Type     string           `json:"type"`
	Channels []domain.Channel `json:"channels"`
}

// VoiceRoomEntry is a catalog room merged with its live roster.
type VoiceRoomEntry struct {
	Name        domain.RoomName `json:"name"`
	Description string          `json:"description,omitempty"`
	Users       []string        `json:"users"`
}

type VoiceRoomListEvent struct {
	Type  string           `json:"type"`
	Rooms []VoiceRoomEntry `json:"rooms"`
}

type ChatHistoryEvent struct {
	Type     string             `json:"type"`
	Channel  domain.ChannelName `json:"channel"`
	Messages []domain.Message   `json:"messages"`
}

type ChatMessageEvent struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

type MessageDeletedEvent struct {
	Type    string             `json:"type"`
	ID      int64              `json:"id"`
	Channel domain.ChannelName `json:"channel"`
}

type DirectMessageEvent struct {
	Type    string               `json:"type"`
	Message domain.DirectMessage `json:"message"`
}

type DirectHistoryEvent struct {
	Type     string                 `json:"type"`
	With     string                 `json:"with"`
	Messages []domain.DirectMessage `json:"messages"`
}

// Participant is one roster line.
type Participant struct {
	SessionID SessionID         `json:"sessionId"`
	Username  string            `json:"username"`
	State     domain.VoiceState `json:"state"`
}

type VoiceRosterEvent struct {
	Type         string          `json:"type"`
	Room         domain.RoomName `json:"room"`
	Users        []string        `json:"users"`
	Participants []Participant   `json:"participants"`
}

// Peer is an existing room member the joiner should signal toward.
type Peer struct {
	SessionID SessionID `json:"sessionId"`
	Username  string    `json:"username"`
}

type VoiceJoinedEvent struct {
	Type      string            `json:"type"`
	Room      domain.RoomName   `json:"room"`
	SessionID SessionID         `json:"sessionId"`
	Peers     []Peer            `json:"peers"`
	State     domain.VoiceState `json:"state"`
}

type VoiceLeftEvent struct {
	Type string          `json:"type"`
	Room domain.RoomName `json:"room"`
}

// VoiceMembershipEvent is user-joined-voice or user-left-voice.
type VoiceMembershipEvent struct {
	Type      string          `json:"type"`
	Username  string          `json:"username"`
	SessionID SessionID       `json:"sessionId"`
	Room      domain.RoomName `json:"room"`
}

type VoiceStateEvent struct {
	Type      string            `json:"type"`
	Username  string            `json:"username"`
	SessionID SessionID         `json:"sessionId"`
	Field     domain.VoiceField `json:"field"`
	Value     bool              `json:"value"`
}

// SignalEvent carries an opaque negotiation payload to its target.
type SignalEvent struct {
	Type          string          `json:"type"`
	FromSessionID SessionID       `json:"fromSessionId"`
	FromUsername  string          `json:"fromUsername"`
	Payload       json.RawMessage `json:"payload"`
}

type PresenceEntry struct {
	Username  string           `json:"username"`
	IsAdmin   bool             `json:"isAdmin"`
	VoiceRoom *domain.RoomName `json:"voiceRoom"`
}

type OnlineUsersEvent struct {
	Type  string          `json:"type"`
	Users []PresenceEntry `json:"users"`
}

type KickedEvent struct {
	Type   string          `json:"type"`
	Reason string          `json:"reason"`
	Room   domain.RoomName `json:"room,omitempty"`
}

type NoticeEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func ErrorEvent(msg string) NoticeEvent   { return NoticeEvent{Type: EvError, Message: msg} }
func SuccessEvent(msg string) NoticeEvent { return NoticeEvent{Type: EvSuccess, Message: msg} }

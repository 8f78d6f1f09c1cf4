package app

import (
	"context"
	"strings"
	"time"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultHistoryLimit = 100

// TextRouter scopes chat to text-channel membership. Membership is the
// registry's TextChannel field; the router keeps no index of its own.
type TextRouter struct {
	Registry     *Registry
	Store        core.Store
	HistoryLimit int
}

// Enter moves the session into name. Leaving the previous channel and
// entering the new one is a single registry update.
func (t *TextRouter) Enter(sid core.SessionID, name domain.ChannelName) (domain.ChannelName, error) {
	if strings.TrimSpace(string(name)) == "" {
		return "", core.Invalid("channel name is required")
	}
	prev, err := t.Registry.SetTextChannel(sid, name)
	if err != nil {
		return "", err
	}
	log.Info().Str("module", "app.text").Str("sid", string(sid)).Str("from", string(prev)).Str("channel", string(name)).Msg("joined text channel")
	return prev, nil
}

// SendHistory fetches the channel history and delivers it to sid only.
// The result is discarded if the session left the channel meanwhile.
func (t *TextRouter) SendHistory(ctx context.Context, sid core.SessionID, name domain.ChannelName) error {
	history, err := t.Store.FindChannelHistory(ctx, name, t.historyLimit())
	if err != nil {
		log.Error().Err(err).Str("module", "app.text").Str("channel", string(name)).Msg("history fetch failed")
		return core.Persistence("find channel history", err)
	}
	sess, err := t.Registry.Lookup(sid)
	if err != nil || sess.TextChannel != name {
		log.Debug().Str("module", "app.text").Str("sid", string(sid)).Msg("history discarded")
		return nil
	}
	if history == nil {
		history = []domain.Message{}
	}
	return t.Registry.Send(sid, core.ChatHistoryEvent{
		Type:     core.EvChatHistory,
		Channel:  name,
		Messages: history,
	})
}

// Join is Enter followed by SendHistory.
func (t *TextRouter) Join(ctx context.Context, sid core.SessionID, name domain.ChannelName) error {
	if _, err := t.Enter(sid, name); err != nil {
		return err
	}
	return t.SendHistory(ctx, sid, name)
}

// Broadcast delivers to the sessions in the channel at the moment of the call.
func (t *TextRouter) Broadcast(name domain.ChannelName, v any) int {
	sids := t.Registry.InTextChannel(name)
	t.Registry.SendTo(sids, v)
	return len(sids)
}

// LeaveAll clears the session's channel. Nothing else needs updating.
func (t *TextRouter) LeaveAll(sid core.SessionID) {
	_, _ = t.Registry.SetTextChannel(sid, "")
}

// Evict clears the channel field of every session in name.
func (t *TextRouter) Evict(name domain.ChannelName) []core.SessionID {
	sids := t.Registry.InTextChannel(name)
	for _, sid := range sids {
		t.LeaveAll(sid)
	}
	return sids
}

type ChatInput struct {
	Text        string
	Mentions    []string
	Attachments []domain.Attachment
}

// Post records the message and, only once it is durable, echoes it to the
// channel's sessions.
func (t *TextRouter) Post(ctx context.Context, sid core.SessionID, in ChatInput) (*domain.Message, error) {
	sess, err := t.Registry.Lookup(sid)
	if err != nil {
		return nil, err
	}
	if sess.TextChannel == "" {
		return nil, core.Invalid("join a text channel first")
	}
	msg := &domain.Message{
		Channel:     sess.TextChannel,
		Author:      sess.User.Username,
		Text:        strings.TrimSpace(in.Text),
		Mentions:    in.Mentions,
		Attachments: in.Attachments,
		CreatedAt:   time.Now().UTC(),
	}
	if err := msg.Validate(); err != nil {
		return nil, core.Invalid("%v", err)
	}
	if err := t.Store.InsertMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "app.text").Str("channel", string(msg.Channel)).Msg("insert message failed")
		return nil, core.Persistence("insert message", err)
	}
	n := t.Broadcast(msg.Channel, core.ChatMessageEvent{Type: core.EvChatMessage, Message: *msg})
	log.Debug().Str("module", "app.text").Str("channel", string(msg.Channel)).Int64("id", msg.ID).Int("sent_to", n).Msg("chat message")
	return msg, nil
}

// Delete removes a message and tells the sessions in its channel.
func (t *TextRouter) Delete(ctx context.Context, id int64) (*domain.Message, error) {
	msg, err := t.Store.DeleteMessage(ctx, id)
	if err != nil {
		return nil, core.Persistence("delete message", err)
	}
	if msg == nil {
		return nil, core.Invalid("message %d does not exist", id)
	}
	t.Broadcast(msg.Channel, core.MessageDeletedEvent{Type: core.EvMessageDeleted, ID: msg.ID, Channel: msg.Channel})
	return msg, nil
}

func (t *TextRouter) historyLimit() int {
	if t.HistoryLimit <= 0 {
		return DefaultHistoryLimit
	}
	return t.HistoryLimit
}

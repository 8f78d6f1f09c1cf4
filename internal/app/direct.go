package app

import (
	"context"
	"strings"
	"time"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// DirectMessenger stores private messages and delivers them to every live
// session of both participants.
type DirectMessenger struct {
	Registry     *Registry
	Store        core.Store
	HistoryLimit int
}

func (d *DirectMessenger) Send(ctx context.Context, sid core.SessionID, to, text string) (*domain.DirectMessage, error) {
	sess, err := d.Registry.Lookup(sid)
	if err != nil {
		return nil, err
	}
	to = strings.TrimSpace(to)
	from := sess.User.Username
	msg := &domain.DirectMessage{
		ConversationID: domain.ConversationID(from, to),
		From:           from,
		To:             to,
		Text:           strings.TrimSpace(text),
		CreatedAt:      time.Now().UTC(),
	}
	if err := msg.Validate(); err != nil {
		return nil, core.Invalid("%v", err)
	}
	if err := d.Store.InsertDirectMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "app.direct").Str("conversation", msg.ConversationID).Msg("insert direct message failed")
		return nil, core.Persistence("insert direct message", err)
	}

	var targets []core.SessionID
	for _, s := range d.Registry.ByUsername(from) {
		targets = append(targets, s.ID)
	}
	if to != from {
		for _, s := range d.Registry.ByUsername(to) {
			targets = append(targets, s.ID)
		}
	}
	d.Registry.SendTo(targets, core.DirectMessageEvent{Type: core.EvDirectMessage, Message: *msg})
	return msg, nil
}

func (d *DirectMessenger) History(ctx context.Context, sid core.SessionID, with string) error {
	sess, err := d.Registry.Lookup(sid)
	if err != nil {
		return err
	}
	with = strings.TrimSpace(with)
	if err := domain.ValidateUsername(with); err != nil {
		return core.Invalid("%v", err)
	}
	limit := d.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	msgs, err := d.Store.FindConversation(ctx, domain.ConversationID(sess.User.Username, with), limit)
	if err != nil {
		return core.Persistence("find conversation", err)
	}
	if msgs == nil {
		msgs = []domain.DirectMessage{}
	}
	return d.Registry.Send(sid, core.DirectHistoryEvent{Type: core.EvDirectHistory, With: with, Messages: msgs})
}

package orch

import (
	"context"

	"github.com/dkeye/parley/internal/app"
	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

func (o *Orchestrator) JoinText(ctx context.Context, sid core.SessionID, name domain.ChannelName) error {
	return o.Text.Join(ctx, sid, name)
}

func (o *Orchestrator) SendChat(ctx context.Context, sid core.SessionID, in app.ChatInput) error {
	_, err := o.Text.Post(ctx, sid, in)
	return err
}

func (o *Orchestrator) SendDirect(ctx context.Context, sid core.SessionID, to, text string) error {
	_, err := o.Direct.Send(ctx, sid, to, text)
	return err
}

func (o *Orchestrator) DirectHistory(ctx context.Context, sid core.SessionID, with string) error {
	return o.Direct.History(ctx, sid, with)
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

// fakeConn records every frame it is handed.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// types lists the event types received so far, in order.
func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(f, &head)
		out = append(out, head.Type)
	}
	return out
}

// events decodes every received frame of the given type into T.
func events[T any](t *testing.T, c *fakeConn, typ string) []T {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []T
	for _, f := range c.frames {
		var head struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(f, &head))
		if head.Type != typ {
			continue
		}
		var v T
		require.NoError(t, json.Unmarshal(f, &v))
		out = append(out, v)
	}
	return out
}

func last[T any](t *testing.T, c *fakeConn, typ string) T {
	t.Helper()
	all := events[T](t, c, typ)
	require.NotEmpty(t, all, "no %s event received", typ)
	return all[len(all)-1]
}

// fakeAuth treats the credential as "username" or "username:admin".
type fakeAuth struct{}

func (fakeAuth) Authenticate(_ context.Context, credential string) (*domain.User, error) {
	if credential == "" || credential == "bad" {
		return nil, errors.New("bad credential")
	}
	name, admin := credential, false
	if n := len(credential); n > 6 && credential[n-6:] == ":admin" {
		name, admin = credential[:n-6], true
	}
	return domain.NewUser(name, admin)
}

func admit(t *testing.T, reg *Registry, credential string) (core.SessionID, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	sid, err := reg.Admit(context.Background(), credential, conn, func() {})
	require.NoError(t, err)
	return sid, conn
}

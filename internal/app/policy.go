package app

import "github.com/dkeye/parley/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a session whose send queue is full.
type Policy interface {
	OnBackPressure(sess core.Session) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.Session) BackpressureAction {
	return KickMember
}

// Action names a privileged operation.
type Action string

const (
	ActionKick          Action = "kick"
	ActionDisconnect    Action = "disconnect"
	ActionDeleteMessage Action = "delete-message"
	ActionCreateChannel Action = "create-channel"
	ActionDeleteChannel Action = "delete-channel"
)

// AdminGate authorizes privileged mutations. It holds no state: the admin
// flag comes from the auth collaborator with the session.
type AdminGate struct{}

func (AdminGate) Authorize(sess core.Session, _ Action) bool {
	return sess.User.IsAdmin
}

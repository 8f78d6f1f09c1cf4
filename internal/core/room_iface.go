package core

import (
	"github.com/dkeye/parley/internal/domain"
)

// RoomService is the core-facing API of a voice room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	// Members returns session ids in join order.
	Members() []SessionID

	AddMember(sid SessionID) bool
	RemoveMember(sid SessionID) bool
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"client_count"`
}

type RoomManager interface {
	GetOrCreate(name domain.RoomName) RoomService
	GetRoom(name domain.RoomName) (RoomService, bool)
	List() []RoomInfo
	StopRoom(name domain.RoomName)
}

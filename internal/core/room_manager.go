package core

import (
	"sort"
	"sync"

	"github.com/dkeye/parley/internal/domain"
)

type roomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomName]RoomService
}

func NewRoomManager() RoomManager {
	return &roomManager{rooms: make(map[domain.RoomName]RoomService)}
}

func (f *roomManager) GetOrCreate(name domain.RoomName) RoomService {
	f.mu.RLock()
	room, ok := f.rooms[name]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[name]; ok {
		return room
	}
	room = NewRoomService(&domain.Room{Name: name})
	f.rooms[name] = room
	return room
}

func (f *roomManager) GetRoom(name domain.RoomName) (RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[name]
	return room, ok
}

func (f *roomManager) List() []RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]RoomInfo, 0, len(f.rooms))
	for name, r := range f.rooms {
		out = append(out, RoomInfo{Name: name, MemberCount: r.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (f *roomManager) StopRoom(name domain.RoomName) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, name)
}

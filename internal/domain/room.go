package domain

type (
	RoomName    string
	ChannelName string
)

// Room is a live voice room. Its existence is defined by membership;
// the catalog entry that lists it in the UI lives in the store.
type Room struct {
	Name RoomName
}

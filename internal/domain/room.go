package domain

// ConnectionID is the opaque identifier the transport assigns to a live socket.
type ConnectionID string

// RoomLabel is the ephemeral presence-layer room name shown in the UI. It is
// never used as a storage key; see RoomID and ChatKey.
type RoomLabel string

// Connection is a snapshot of one live client as tracked by presence.
// Name and Room stay empty until the first enterRoom.
type Connection struct {
	ID     ConnectionID `json:"id"`
	Name   string       `json:"name"`
	Room   RoomLabel    `json:"room"`
	UserID UserID       `json:"-"`
}

func (c Connection) Joined() bool {
	return c.Room != ""
}

// RoomSummary is a room directory line for the REST presence view.
type RoomSummary struct {
	Room    RoomLabel `json:"room"`
	Members int       `json:"members"`
}

package state

// RoomContext is what a phase needs from the room that drives it.
// This breaks the import cycle between room and state.
type RoomContext interface {
	GetID() string
}

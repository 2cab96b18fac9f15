package ws

import "fmt"

type RoomKind uint8

const (
	RoomPrivate RoomKind = iota + 1
	RoomGroup
)

// RoomKey addresses a broadcast target. The tagged kind keeps private chat N
// and group chat N from ever colliding.
type RoomKey struct {
	Kind RoomKind
	ID   int
}

func PrivateRoom(chatID int) RoomKey { return RoomKey{Kind: RoomPrivate, ID: chatID} }

func GroupRoom(groupID int) RoomKey { return RoomKey{Kind: RoomGroup, ID: groupID} }

func (k RoomKey) String() string {
	switch k.Kind {
	case RoomPrivate:
		return fmt.Sprintf("private_%d", k.ID)
	case RoomGroup:
		return fmt.Sprintf("group_%d", k.ID)
	default:
		return fmt.Sprintf("room_%d", k.ID)
	}
}

package domain

import (
	"github.com/google/uuid"
)

// RoomID identifies one call room. The originating client mints it and
// every invitee learns it from the invitation, so it only needs to be
// unique, not guessable.
type RoomID string

func NewRoomID() RoomID {
	return RoomID(uuid.New().String())
}

func (id RoomID) String() string {
	return string(id)
}

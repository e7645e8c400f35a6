package domain

import "errors"

// Sentinel errors for call signaling. Callers classify with errors.Is;
// everything that reaches the originator is flattened into a single
// connect_fail with a readable reason.

// Admission errors.
var (
	// ErrOffline indicates the target has no open presence channel.
	ErrOffline = errors.New("user is offline")

	// ErrBusy indicates the target is already in a call.
	ErrBusy = errors.New("user is busy in another call")

	// ErrNoEligibleInvitee indicates a group invite list emptied after
	// filtering out offline and busy candidates.
	ErrNoEligibleInvitee = errors.New("no eligible invitee")
)

// Relay errors.
var (
	// ErrRoomNotFound indicates no room exists under the given id.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRelayTargetMissing indicates a directed message named a
	// participant that is not currently in the room. The message is
	// dropped, never fanned out to anyone else.
	ErrRelayTargetMissing = errors.New("relay target not in room")

	// ErrUnknownMessage indicates a signaling message with an
	// unrecognized kind.
	ErrUnknownMessage = errors.New("unknown signaling message")
)

// Channel and media errors.
var (
	// ErrChannelClosed indicates a send on a signaling channel that has
	// already been torn down.
	ErrChannelClosed = errors.New("signaling channel closed")

	// ErrSendQueueFull indicates the channel's outbound queue is full
	// and the message was dropped rather than blocking the sender.
	ErrSendQueueFull = errors.New("send queue full, message dropped")

	// ErrMediaAcquisition indicates the local capture device could not
	// be opened.
	ErrMediaAcquisition = errors.New("local media acquisition failed")
)

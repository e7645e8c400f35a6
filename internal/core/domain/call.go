package domain

// CallType distinguishes a one-to-one call from a group call at
// channel-open time. It decides how invitations are validated and how a
// reject is interpreted on the client.
type CallType string

const (
	CallPrivate CallType = "private"
	CallGroup   CallType = "group"
)

func ParseCallType(s string) (CallType, bool) {
	switch CallType(s) {
	case CallPrivate, CallGroup:
		return CallType(s), true
	}
	return "", false
}

// CallMode is the media shape requested by the originator, carried
// verbatim in the invitation so invitees open the right kind of session.
type CallMode string

const (
	ModePrivateAudio CallMode = "private_audio"
	ModePrivateVideo CallMode = "private_video"
	ModeGroupAudio   CallMode = "group_audio"
	ModeGroupVideo   CallMode = "group_video"
)

// Video reports whether the mode carries a video track in addition to audio.
func (m CallMode) Video() bool {
	return m == ModePrivateVideo || m == ModeGroupVideo
}

// CallState is the per-participant, per-room progression through a call.
type CallState int

const (
	StateIdle CallState = iota
	StateInviting
	StateRinging
	StateNegotiating
	StateActive
	StateTerminated
)

func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInviting:
		return "inviting"
	case StateRinging:
		return "ringing"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Contact is one entry of an invitation receiver list: enough identity
// for the callee to render who is in the room.
type Contact struct {
	Username string `json:"username"`
	Alias    string `json:"alias,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

package domain

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the signaling message union.
type Kind string

const (
	KindCreateRoom   Kind = "create_room"
	KindNewPeer      Kind = "new_peer"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice_candidate"
	KindReject       Kind = "reject"
	KindConnectFail  Kind = "connect_fail"
)

// SignalData carries the negotiation payload of a directed message.
// SDP is kept opaque: the relay never inspects it, only the two peers do.
type SignalData struct {
	SDP           json.RawMessage `json:"sdp,omitempty"`
	Candidate     string          `json:"candidate,omitempty"`
	SDPMid        *string         `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16         `json:"sdpMLineIndex,omitempty"`
}

// Envelope is the tagged union exchanged over presence and room
// channels. Name selects the variant; every other field belongs to a
// subset of variants only, so producers go through the constructors
// below instead of filling this in by hand.
type Envelope struct {
	Name             Kind        `json:"name"`
	Room             RoomID      `json:"room,omitempty"`
	Mode             CallMode    `json:"mode,omitempty"`
	Sender           string      `json:"sender,omitempty"`
	Receiver         string      `json:"receiver,omitempty"`
	Reason           string      `json:"reason,omitempty"`
	CallReceiverList []Contact   `json:"callReceiverList,omitempty"`
	Data             *SignalData `json:"data,omitempty"`
}

// Directed reports whether the message names a single receiver and must
// be relayed to exactly that participant.
func (e Envelope) Directed() bool {
	switch e.Name {
	case KindOffer, KindAnswer, KindICECandidate:
		return true
	}
	return false
}

// Decode parses one wire message. An unrecognized kind is a hard error,
// not a silent drop.
func Decode(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode signaling message: %w", err)
	}
	switch e.Name {
	case KindCreateRoom, KindNewPeer, KindOffer, KindAnswer,
		KindICECandidate, KindReject, KindConnectFail:
		return e, nil
	}
	return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownMessage, e.Name)
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// CreateRoomRequest is what an originator sends to start a call.
func CreateRoomRequest(mode CallMode, receivers []Contact) Envelope {
	return Envelope{Name: KindCreateRoom, Mode: mode, CallReceiverList: receivers}
}

// CreateRoomInvite is the invitee-bound invitation fanned out over the
// presence channel. The receiver list is invitee-specific.
func CreateRoomInvite(room RoomID, mode CallMode, receivers []Contact) Envelope {
	return Envelope{Name: KindCreateRoom, Room: room, Mode: mode, CallReceiverList: receivers}
}

func NewPeerMessage(sender string) Envelope {
	return Envelope{Name: KindNewPeer, Sender: sender}
}

func OfferMessage(sender, receiver string, sdp json.RawMessage) Envelope {
	return Envelope{Name: KindOffer, Sender: sender, Receiver: receiver, Data: &SignalData{SDP: sdp}}
}

func AnswerMessage(sender, receiver string, sdp json.RawMessage) Envelope {
	return Envelope{Name: KindAnswer, Sender: sender, Receiver: receiver, Data: &SignalData{SDP: sdp}}
}

func ICECandidateMessage(sender, receiver string, candidate string, sdpMid *string, sdpMLineIndex *uint16) Envelope {
	return Envelope{
		Name:     KindICECandidate,
		Sender:   sender,
		Receiver: receiver,
		Data: &SignalData{
			Candidate:     candidate,
			SDPMid:        sdpMid,
			SDPMLineIndex: sdpMLineIndex,
		},
	}
}

func RejectMessage(sender string) Envelope {
	return Envelope{Name: KindReject, Sender: sender}
}

func ConnectFailMessage(reason string) Envelope {
	return Envelope{Name: KindConnectFail, Reason: reason}
}

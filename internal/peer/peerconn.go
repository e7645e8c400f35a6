package peer

import (
	"github.com/glimchat/glim/internal/core/domain"
	"github.com/pion/webrtc/v4"
)

// PeerConn is the slice of a WebRTC peer connection the session state
// machine drives. An interface so the negotiation logic stays separate
// from pion's concrete type and tests can substitute a fake.
type PeerConn interface {
	AddTrack(track webrtc.TrackLocal) error
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(fn func(*webrtc.ICECandidate))
	OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	Close() error
}

// PeerConnFactory mints one PeerConn per expected remote participant.
type PeerConnFactory func() (PeerConn, error)

// MediaSource owns the local capture tracks for one call. Acquired once
// per call; the same tracks are attached to every peer connection in a
// group call. SetMuted gates the audio track: while muted the source
// stops feeding samples, which silences every attached connection at
// once.
type MediaSource interface {
	Tracks() []webrtc.TrackLocal
	SetMuted(muted bool)
	Stop()
}

// MediaFactory acquires local media for the given call mode. Failures
// map to domain.ErrMediaAcquisition.
type MediaFactory func(mode domain.CallMode) (MediaSource, error)

package peer

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Session owns the peer connection for exactly one remote participant
// and the negotiation state of that pair. Candidates that arrive before
// the remote description is set are buffered, never dropped: trickle
// ICE makes that ordering routine.
type Session struct {
	remote string
	pc     PeerConn

	mu        sync.Mutex
	pending   []webrtc.ICECandidateInit
	remoteSet bool
	attached  bool
	closed    bool
}

func newSession(remote string, pc PeerConn) *Session {
	return &Session{remote: remote, pc: pc}
}

// Remote returns the remote participant's id.
func (s *Session) Remote() string {
	return s.remote
}

// attach adds the call-wide local tracks to this pair's connection.
// Attaching twice is a no-op; the tracks are shared across all pairs.
func (s *Session) attach(tracks []webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached || s.closed {
		return nil
	}
	for _, t := range tracks {
		if err := s.pc.AddTrack(t); err != nil {
			return fmt.Errorf("attach track for %s: %w", s.remote, err)
		}
	}
	s.attached = true
	return nil
}

// setRemoteDescription applies the counterpart's SDP and flushes any
// buffered candidates.
func (s *Session) setRemoteDescription(desc webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description for %s: %w", s.remote, err)
	}
	s.remoteSet = true
	for _, c := range s.pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("apply buffered candidate for %s: %w", s.remote, err)
		}
	}
	s.pending = nil
	return nil
}

// addCandidate applies a discovered candidate, or buffers it while the
// remote description is still outstanding.
func (s *Session) addCandidate(c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if !s.remoteSet {
		s.pending = append(s.pending, c)
		return nil
	}
	if err := s.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add candidate for %s: %w", s.remote, err)
	}
	return nil
}

// close releases the peer connection. Safe to call more than once.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	s.mu.Unlock()

	_ = s.pc.Close()
}

package peer

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/glimchat/glim/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DefaultDismissDelay is how long a failed call stays on screen before
// local teardown, so the user can read the reason.
const DefaultDismissDelay = 1500 * time.Millisecond

// Config wires one Manager to a call.
type Config struct {
	Self string
	Room domain.RoomID
	Type domain.CallType
	Mode domain.CallMode

	Signaler Signaler
	NewConn  PeerConnFactory
	Media    MediaFactory

	// OnRemoteTrack fires when a pair completes with remote media; the
	// UI renders it into the slot keyed by the remote id.
	OnRemoteTrack func(remote string, track *webrtc.TrackRemote)

	// OnPeerLeft fires when a group member leaves while the call goes on.
	OnPeerLeft func(remote string)

	// OnEnded fires exactly once when the whole call is torn down.
	OnEnded func(reason string)

	// DismissDelay overrides DefaultDismissDelay when positive.
	DismissDelay time.Duration
}

// Manager drives one side of a call: exactly one Session per expected
// remote participant, local media shared across all of them (mesh
// topology), and the asymmetric offer/answer sequence in which the side
// already in the room offers and the side that just arrived answers.
// Inbound messages are handled sequentially in arrival order.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
	earlyICE map[string][]webrtc.ICECandidateInit
	media    MediaSource
	muted    bool
	closed   bool

	done chan struct{}
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Self == "" || cfg.Signaler == nil || cfg.NewConn == nil || cfg.Media == nil {
		return nil, fmt.Errorf("peer manager: self, signaler, conn factory and media factory are required")
	}
	if cfg.DismissDelay <= 0 {
		cfg.DismissDelay = DefaultDismissDelay
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		earlyICE: make(map[string][]webrtc.ICECandidateInit),
		done:     make(chan struct{}),
	}, nil
}

// Start runs the originator side: acquire local media, prepare one
// session per invitee, and send create_room. A media failure sends
// reject upstream and schedules local teardown after the dismiss delay.
func (m *Manager) Start(receivers []domain.Contact) error {
	if err := m.acquireMedia(); err != nil {
		return err
	}
	for _, ct := range receivers {
		if ct.Username == m.cfg.Self {
			continue
		}
		if _, err := m.ensureSession(ct.Username); err != nil {
			return err
		}
	}
	if err := m.cfg.Signaler.Send(domain.CreateRoomRequest(m.cfg.Mode, receivers)); err != nil {
		return err
	}
	go m.run()
	return nil
}

// Accept runs the invitee side after the user takes the call: acquire
// media, prepare sessions for everyone named in the invitation, and
// announce ourselves with new_peer.
func (m *Manager) Accept(members []domain.Contact) error {
	if err := m.acquireMedia(); err != nil {
		return err
	}
	for _, ct := range members {
		if ct.Username == m.cfg.Self {
			continue
		}
		if _, err := m.ensureSession(ct.Username); err != nil {
			return err
		}
	}
	if err := m.cfg.Signaler.Send(domain.NewPeerMessage(m.cfg.Self)); err != nil {
		return err
	}
	go m.run()
	return nil
}

// Hangup rejects or ends the call from this side and releases every
// local resource synchronously.
func (m *Manager) Hangup() {
	if err := m.cfg.Signaler.Send(domain.RejectMessage(m.cfg.Self)); err != nil {
		log.Debug().Err(err).Msg("Reject send on hangup failed")
	}
	m.teardown("hung up")
}

// ToggleAudio flips the local mute state and gates the media source
// accordingly, silencing the shared audio track on every peer
// connection at once. Returns the new muted state.
func (m *Manager) ToggleAudio() bool {
	m.mu.Lock()
	m.muted = !m.muted
	muted := m.muted
	media := m.media
	m.mu.Unlock()

	if media != nil {
		media.SetMuted(muted)
	}
	return muted
}

// Remotes lists the remote ids that currently have a session.
func (m *Manager) Remotes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		out = append(out, name)
	}
	return out
}

// Done is closed when the call has been torn down.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) acquireMedia() error {
	src, err := m.cfg.Media(m.cfg.Mode)
	if err != nil {
		log.Error().Err(err).Msg("Local media acquisition failed")
		if sendErr := m.cfg.Signaler.Send(domain.RejectMessage(m.cfg.Self)); sendErr != nil {
			log.Debug().Err(sendErr).Msg("Reject send after media failure failed")
		}
		time.AfterFunc(m.cfg.DismissDelay, func() { m.teardown("media acquisition failed") })
		return fmt.Errorf("%w: %v", domain.ErrMediaAcquisition, err)
	}
	m.mu.Lock()
	m.media = src
	m.mu.Unlock()
	return nil
}

func (m *Manager) run() {
	for env := range m.cfg.Signaler.Messages() {
		m.handle(env)
		select {
		case <-m.done:
			return
		default:
		}
	}
}

func (m *Manager) handle(env domain.Envelope) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		// Messages already buffered when the call was torn down must not
		// resurrect sessions on a dead manager.
		log.Debug().Str("kind", string(env.Name)).Msg("Dropping message after call teardown")
		return
	}

	var err error
	switch env.Name {
	case domain.KindNewPeer:
		err = m.handleNewPeer(env.Sender)
	case domain.KindOffer:
		err = m.handleOffer(env)
	case domain.KindAnswer:
		err = m.handleAnswer(env)
	case domain.KindICECandidate:
		err = m.handleCandidate(env)
	case domain.KindReject:
		m.handleReject(env.Sender)
	case domain.KindConnectFail:
		m.teardown(env.Reason)
	default:
		log.Debug().Str("kind", string(env.Name)).Msg("Ignoring message on call channel")
	}
	if err != nil {
		log.Error().Err(err).Str("kind", string(env.Name)).Str("sender", env.Sender).Msg("Negotiation step failed")
	}
}

// handleNewPeer is the already-present side of a pair: attach local
// tracks, create the offer, and direct it at the newcomer.
func (m *Manager) handleNewPeer(sender string) error {
	s, err := m.ensureSession(sender)
	if err != nil {
		return err
	}
	if err := s.attach(m.localTracks()); err != nil {
		return err
	}
	offer, err := s.pc.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer for %s: %w", sender, err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer for %s: %w", sender, err)
	}
	sdp, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	return m.cfg.Signaler.Send(domain.OfferMessage(m.cfg.Self, sender, sdp))
}

// handleOffer is the newly-arrived side: attach tracks, apply the
// remote offer, answer back.
func (m *Manager) handleOffer(env domain.Envelope) error {
	if env.Data == nil {
		return fmt.Errorf("offer from %s without sdp", env.Sender)
	}
	s, err := m.ensureSession(env.Sender)
	if err != nil {
		return err
	}
	if err := s.attach(m.localTracks()); err != nil {
		return err
	}
	desc, err := decodeSDP(env.Data.SDP)
	if err != nil {
		return err
	}
	if err := s.setRemoteDescription(desc); err != nil {
		return err
	}
	answer, err := s.pc.CreateAnswer()
	if err != nil {
		return fmt.Errorf("create answer for %s: %w", env.Sender, err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer for %s: %w", env.Sender, err)
	}
	sdp, err := json.Marshal(answer)
	if err != nil {
		return err
	}
	return m.cfg.Signaler.Send(domain.AnswerMessage(m.cfg.Self, env.Sender, sdp))
}

func (m *Manager) handleAnswer(env domain.Envelope) error {
	if env.Data == nil {
		return fmt.Errorf("answer from %s without sdp", env.Sender)
	}
	m.mu.Lock()
	s, ok := m.sessions[env.Sender]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("answer from %s without a session", env.Sender)
	}
	desc, err := decodeSDP(env.Data.SDP)
	if err != nil {
		return err
	}
	return s.setRemoteDescription(desc)
}

func (m *Manager) handleCandidate(env domain.Envelope) error {
	if env.Data == nil {
		return fmt.Errorf("ice_candidate from %s without data", env.Sender)
	}
	init := webrtc.ICECandidateInit{
		Candidate:     env.Data.Candidate,
		SDPMid:        env.Data.SDPMid,
		SDPMLineIndex: env.Data.SDPMLineIndex,
	}

	m.mu.Lock()
	s, ok := m.sessions[env.Sender]
	if !ok {
		// No connection for this remote yet: keep the candidate until
		// the session appears rather than losing it.
		m.earlyICE[env.Sender] = append(m.earlyICE[env.Sender], init)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return s.addCandidate(init)
}

// handleReject ends the whole call for a private pair, and removes just
// the leaver from a group mesh.
func (m *Manager) handleReject(sender string) {
	if m.cfg.Type == domain.CallPrivate {
		m.teardown(fmt.Sprintf("%s hung up", sender))
		return
	}
	m.mu.Lock()
	s, ok := m.sessions[sender]
	delete(m.sessions, sender)
	delete(m.earlyICE, sender)
	m.mu.Unlock()
	if ok {
		s.close()
	}
	if m.cfg.OnPeerLeft != nil {
		m.cfg.OnPeerLeft(sender)
	}
}

// ensureSession returns the session for remote, creating and wiring it
// on first sight. There is never more than one session per remote id.
func (m *Manager) ensureSession(remote string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[remote]; ok {
		m.mu.Unlock()
		return s, nil
	}
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("no session for %s: call torn down", remote)
	}
	m.mu.Unlock()

	pc, err := m.cfg.NewConn()
	if err != nil {
		return nil, fmt.Errorf("peer connection for %s: %w", remote, err)
	}
	s := newSession(remote, pc)

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		msg := domain.ICECandidateMessage(m.cfg.Self, remote, init.Candidate, init.SDPMid, init.SDPMLineIndex)
		if err := m.cfg.Signaler.Send(msg); err != nil {
			log.Debug().Err(err).Str("remote", remote).Msg("Candidate send failed")
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().Str("remote", remote).Str("kind", track.Kind().String()).Msg("Remote track arrived")
		if m.cfg.OnRemoteTrack != nil {
			m.cfg.OnRemoteTrack(remote, track)
		}
	})

	m.mu.Lock()
	if existing, ok := m.sessions[remote]; ok {
		// Lost the race; keep the first session.
		m.mu.Unlock()
		_ = pc.Close()
		return existing, nil
	}
	if m.closed {
		// Teardown ran while the connection was being built; nothing may
		// enter the sessions map afterwards or it would never be closed.
		m.mu.Unlock()
		_ = pc.Close()
		return nil, fmt.Errorf("no session for %s: call torn down", remote)
	}
	m.sessions[remote] = s
	buffered := m.earlyICE[remote]
	delete(m.earlyICE, remote)
	m.mu.Unlock()

	for _, c := range buffered {
		if err := s.addCandidate(c); err != nil {
			log.Warn().Err(err).Str("remote", remote).Msg("Buffered candidate rejected")
		}
	}
	return s, nil
}

func (m *Manager) localTracks() []webrtc.TrackLocal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.media == nil {
		return nil
	}
	return m.media.Tracks()
}

// teardown releases local tracks, every peer connection and the
// signaling channel. It runs at most once; later calls are no-ops.
func (m *Manager) teardown(reason string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.earlyICE = make(map[string][]webrtc.ICECandidateInit)
	media := m.media
	m.media = nil
	m.mu.Unlock()

	if media != nil {
		media.Stop()
	}
	for _, s := range sessions {
		s.close()
	}
	if err := m.cfg.Signaler.Close(); err != nil {
		log.Debug().Err(err).Msg("Signaling channel close")
	}
	close(m.done)

	log.Info().Str("reason", reason).Msg("Call torn down")
	if m.cfg.OnEnded != nil {
		m.cfg.OnEnded(reason)
	}
}

func decodeSDP(raw json.RawMessage) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decode sdp: %w", err)
	}
	return desc, nil
}

package peer

import (
	"fmt"
	"sync"

	"github.com/glimchat/glim/internal/core/domain"
	"github.com/pion/webrtc/v4"
)

// NewPionFactory returns a PeerConnFactory backed by pion/webrtc.
func NewPionFactory(cfg webrtc.Configuration) PeerConnFactory {
	return func() (PeerConn, error) {
		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}
		return &pionConn{pc: pc}, nil
	}
}

type pionConn struct {
	pc *webrtc.PeerConnection
}

func (c *pionConn) AddTrack(track webrtc.TrackLocal) error {
	_, err := c.pc.AddTrack(track)
	return err
}

func (c *pionConn) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *pionConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *pionConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *pionConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *pionConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

func (c *pionConn) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	c.pc.OnICECandidate(fn)
}

func (c *pionConn) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.pc.OnTrack(fn)
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}

// sampleMedia is the default MediaSource: static sample tracks for the
// requested mode. Hardware capture (pion/mediadevices) plugs in behind
// the same MediaFactory in builds that have a device to open.
type sampleMedia struct {
	tracks []webrtc.TrackLocal

	mu    sync.Mutex
	muted bool
}

// NewSampleMedia builds a MediaFactory producing an opus audio track
// and, for video modes, a VP8 video track.
func NewSampleMedia() MediaFactory {
	return func(mode domain.CallMode) (MediaSource, error) {
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "glim",
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMediaAcquisition, err)
		}
		tracks := []webrtc.TrackLocal{audio}

		if mode.Video() {
			video, err := webrtc.NewTrackLocalStaticSample(
				webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "glim",
			)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrMediaAcquisition, err)
			}
			tracks = append(tracks, video)
		}
		return &sampleMedia{tracks: tracks}, nil
	}
}

func (m *sampleMedia) Tracks() []webrtc.TrackLocal {
	return m.tracks
}

// SetMuted flips the gate the sample feeder consults before each
// WriteSample on the audio track.
func (m *sampleMedia) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

// Muted reports whether the audio track is currently gated.
func (m *sampleMedia) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *sampleMedia) Stop() {}

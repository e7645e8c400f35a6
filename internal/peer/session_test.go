package peer

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func TestSessionBuffersCandidatesUntilRemoteDescription(t *testing.T) {
	req := require.New(t)
	pc := &fakePC{}
	s := newSession("bob", pc)

	req.NoError(s.addCandidate(webrtc.ICECandidateInit{Candidate: "c1"}))
	req.NoError(s.addCandidate(webrtc.ICECandidateInit{Candidate: "c2"}))
	req.Empty(pc.snapshot().candidates)

	req.NoError(s.setRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}))

	got := pc.snapshot().candidates
	req.Len(got, 2)
	req.Equal("c1", got[0].Candidate)
	req.Equal("c2", got[1].Candidate)

	// Once the description is in, candidates go straight through.
	req.NoError(s.addCandidate(webrtc.ICECandidateInit{Candidate: "c3"}))
	req.Len(pc.snapshot().candidates, 3)
}

func TestSessionAttachIsIdempotent(t *testing.T) {
	req := require.New(t)
	pc := &fakePC{}
	s := newSession("bob", pc)

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "test",
	)
	req.NoError(err)

	tracks := []webrtc.TrackLocal{audio}
	req.NoError(s.attach(tracks))
	req.NoError(s.attach(tracks))
	req.Len(pc.snapshot().tracks, 1)
}

func TestSessionCloseIsIdempotentAndDropsLateInput(t *testing.T) {
	req := require.New(t)
	pc := &fakePC{}
	s := newSession("bob", pc)

	s.close()
	s.close()
	req.True(pc.snapshot().closed)

	req.NoError(s.addCandidate(webrtc.ICECandidateInit{Candidate: "late"}))
	req.NoError(s.setRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}))
	req.Empty(pc.snapshot().candidates)
	req.Nil(pc.snapshot().remoteDesc)
}

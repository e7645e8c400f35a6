package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeCreateRoom(t *testing.T) {
	req := require.New(t)

	raw := []byte(`{"name":"create_room","mode":"group_audio","callReceiverList":[{"username":"alice","alias":"Al","avatar":"a.png"},{"username":"bob"}]}`)
	env, err := Decode(raw)
	req.NoError(err)
	req.Equal(KindCreateRoom, env.Name)
	req.Equal(ModeGroupAudio, env.Mode)
	req.Len(env.CallReceiverList, 2)
	req.Equal("alice", env.CallReceiverList[0].Username)
	req.Equal("Al", env.CallReceiverList[0].Alias)
}

func TestDecodeDirectedKinds(t *testing.T) {
	req := require.New(t)

	mid := "0"
	var idx uint16 = 1
	for _, env := range []Envelope{
		OfferMessage("alice", "bob", json.RawMessage(`{"type":"offer","sdp":"v=0"}`)),
		AnswerMessage("bob", "alice", json.RawMessage(`{"type":"answer","sdp":"v=0"}`)),
		ICECandidateMessage("alice", "bob", "candidate:1 1 UDP 1 10.0.0.1 5000 typ host", &mid, &idx),
	} {
		raw, err := env.Encode()
		req.NoError(err)

		got, err := Decode(raw)
		req.NoError(err)
		req.Equal(env.Name, got.Name)
		req.True(got.Directed())
		req.Equal(env.Sender, got.Sender)
		req.Equal(env.Receiver, got.Receiver)
		req.NotNil(got.Data)
	}
}

func TestDecodeICECandidateFields(t *testing.T) {
	req := require.New(t)

	raw := []byte(`{"name":"ice_candidate","sender":"a","receiver":"b","data":{"candidate":"candidate:9","sdpMid":"audio","sdpMLineIndex":0}}`)
	env, err := Decode(raw)
	req.NoError(err)
	req.Equal("candidate:9", env.Data.Candidate)
	req.NotNil(env.Data.SDPMid)
	req.Equal("audio", *env.Data.SDPMid)
	req.NotNil(env.Data.SDPMLineIndex)
	req.Equal(uint16(0), *env.Data.SDPMLineIndex)
}

func TestDecodeUnknownKind(t *testing.T) {
	req := require.New(t)

	_, err := Decode([]byte(`{"name":"blorp"}`))
	req.ErrorIs(err, ErrUnknownMessage)

	_, err = Decode([]byte(`{"name":""}`))
	req.ErrorIs(err, ErrUnknownMessage)
}

func TestDecodeMalformed(t *testing.T) {
	req := require.New(t)

	_, err := Decode([]byte(`{`))
	req.Error(err)
	req.NotErrorIs(err, ErrUnknownMessage)
}

func TestBroadcastKindsAreNotDirected(t *testing.T) {
	req := require.New(t)

	req.False(NewPeerMessage("a").Directed())
	req.False(RejectMessage("a").Directed())
	req.False(ConnectFailMessage("x").Directed())
	req.False(CreateRoomInvite("r", ModePrivateAudio, nil).Directed())
}

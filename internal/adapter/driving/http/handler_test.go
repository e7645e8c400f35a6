package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	contactmem "github.com/glimchat/glim/internal/adapter/driven/contact/memory"
	"github.com/glimchat/glim/internal/adapter/driven/presence/memory"
	"github.com/glimchat/glim/internal/core/domain"
	"github.com/glimchat/glim/internal/core/service"
	"github.com/glimchat/glim/internal/peer"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv      *httptest.Server
	wsURL    string
	presence *memory.Registry
	rooms    *service.RoomRegistry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	presence := memory.NewRegistry()
	contacts := contactmem.NewDirectory()
	rooms := service.NewRoomRegistry()
	coordinator := service.NewCoordinator(rooms, presence, contacts, 0)

	h := NewHandler(coordinator, presence, 32, "")
	srv := httptest.NewServer(h.NewRouter())
	t.Cleanup(srv.Close)

	return &testServer{
		srv:      srv,
		wsURL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		presence: presence,
		rooms:    rooms,
	}
}

func awaitMessage(t *testing.T, ch *peer.WSChannel) domain.Envelope {
	t.Helper()
	select {
	case env, ok := <-ch.Messages():
		require.True(t, ok, "channel closed while waiting for a message")
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no message arrived")
		return domain.Envelope{}
	}
}

func TestCallFlowOverWebsocket(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	ctx := context.Background()
	room := domain.NewRoomID()

	alicePres, err := peer.DialPresence(ctx, ts.wsURL, "alice")
	req.NoError(err)
	defer alicePres.Close()
	bobPres, err := peer.DialPresence(ctx, ts.wsURL, "bob")
	req.NoError(err)
	defer bobPres.Close()

	// Registration happens after the upgrade on the server side.
	req.Eventually(func() bool {
		return ts.presence.IsOnline("alice") && ts.presence.IsOnline("bob")
	}, 2*time.Second, 10*time.Millisecond)

	aliceCall, err := peer.DialRoom(ctx, ts.wsURL, room, "alice", domain.CallPrivate)
	req.NoError(err)
	defer aliceCall.Close()

	req.NoError(aliceCall.Send(domain.CreateRoomRequest(domain.ModePrivateAudio, []domain.Contact{{Username: "bob"}})))

	invite := awaitMessage(t, bobPres)
	req.Equal(domain.KindCreateRoom, invite.Name)
	req.Equal(room, invite.Room)
	req.Equal(domain.ModePrivateAudio, invite.Mode)
	req.Len(invite.CallReceiverList, 1)
	req.Equal("alice", invite.CallReceiverList[0].Username)

	bobCall, err := peer.DialRoom(ctx, ts.wsURL, room, "bob", domain.CallPrivate)
	req.NoError(err)
	defer bobCall.Close()
	req.NoError(bobCall.Send(domain.NewPeerMessage("bob")))

	announce := awaitMessage(t, aliceCall)
	req.Equal(domain.KindNewPeer, announce.Name)
	req.Equal("bob", announce.Sender)

	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	req.NoError(aliceCall.Send(domain.OfferMessage("alice", "bob", sdp)))

	offer := awaitMessage(t, bobCall)
	req.Equal(domain.KindOffer, offer.Name)
	req.Equal("alice", offer.Sender)
	req.JSONEq(string(sdp), string(offer.Data.SDP))
}

func TestRoomMembersEndpoint(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	ctx := context.Background()
	room := domain.NewRoomID()

	alicePres, err := peer.DialPresence(ctx, ts.wsURL, "alice")
	req.NoError(err)
	defer alicePres.Close()
	bobPres, err := peer.DialPresence(ctx, ts.wsURL, "bob")
	req.NoError(err)
	defer bobPres.Close()
	req.Eventually(func() bool {
		return ts.presence.IsOnline("alice") && ts.presence.IsOnline("bob")
	}, 2*time.Second, 10*time.Millisecond)

	aliceCall, err := peer.DialRoom(ctx, ts.wsURL, room, "alice", domain.CallPrivate)
	req.NoError(err)
	defer aliceCall.Close()
	req.NoError(aliceCall.Send(domain.CreateRoomRequest(domain.ModePrivateAudio, []domain.Contact{{Username: "bob"}})))
	awaitMessage(t, bobPres)

	bobCall, err := peer.DialRoom(ctx, ts.wsURL, room, "bob", domain.CallPrivate)
	req.NoError(err)
	defer bobCall.Close()
	req.NoError(bobCall.Send(domain.NewPeerMessage("bob")))
	awaitMessage(t, aliceCall)

	resp, err := http.Get(ts.srv.URL + "/rtc/members?room=" + room.String() + "&username=alice")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Code int      `json:"code"`
		Data []string `json:"data"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&body))
	req.Equal(http.StatusOK, body.Code)
	req.Equal([]string{"bob"}, body.Data)
}

func TestConnectRejectsMissingParams(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	// Missing or invalid room, username and type parameters.
	for _, target := range []string{
		"/rtc/connect?room=r&type=private",
		"/rtc/connect?room=r&username=a",
		"/rtc/connect?room=r&username=a&type=squad",
		"/rtc/connect?username=a&type=private",
		"/presence/connect",
	} {
		resp, err := http.Get(ts.srv.URL + target)
		req.NoError(err)
		resp.Body.Close()
		req.Equal(http.StatusBadRequest, resp.StatusCode, target)
	}
}

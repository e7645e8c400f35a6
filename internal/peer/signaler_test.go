package peer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glimchat/glim/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// floodServer upgrades and immediately writes more messages than the
// inbound buffer holds, then keeps the connection open.
func floodServer(t *testing.T, count int) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for i := 0; i < count; i++ {
			if err := conn.WriteJSON(domain.NewPeerMessage("flood")); err != nil {
				return
			}
		}
		// Hold the connection until the client hangs up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWSChannelCloseUnblocksReadLoop(t *testing.T) {
	req := require.New(t)
	srv := floodServer(t, 64)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ch, err := DialPresence(context.Background(), wsURL, "me")
	req.NoError(err)

	// Nobody drains Messages, so the read loop fills the buffer and
	// blocks on the next send.
	time.Sleep(50 * time.Millisecond)
	req.NoError(ch.Close())

	// Close must release the read loop; it closes the message channel
	// on the way out.
	drained := make(chan struct{})
	go func() {
		for range ch.Messages() {
		}
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop still pinned after close")
	}
}

func TestWSChannelDeliversInOrder(t *testing.T) {
	req := require.New(t)
	srv := floodServer(t, 5)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ch, err := DialPresence(context.Background(), wsURL, "me")
	req.NoError(err)
	defer ch.Close()

	for i := 0; i < 5; i++ {
		select {
		case env := <-ch.Messages():
			req.Equal(domain.KindNewPeer, env.Name)
			req.Equal("flood", env.Sender)
		case <-time.After(2 * time.Second):
			t.Fatal("message did not arrive")
		}
	}
}

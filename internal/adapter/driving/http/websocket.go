package http

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/glimchat/glim/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigin == "" {
		return true
	}
	return r.Header.Get("Origin") == h.allowedOrigin
}

// wsChannel adapts one websocket connection to port.SignalChannel. All
// writes go through a single writer goroutine fed by a buffered queue,
// so Send never blocks a room lock on network I/O and frames go out in
// the order they were enqueued.
type wsChannel struct {
	id   string
	conn *websocket.Conn
	out  chan domain.Envelope
	done chan struct{}
	once sync.Once
}

func newWSChannel(id string, conn *websocket.Conn, buffer int) *wsChannel {
	c := &wsChannel{
		id:   id,
		conn: conn,
		out:  make(chan domain.Envelope, buffer),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *wsChannel) ID() string {
	return c.id
}

func (c *wsChannel) Send(env domain.Envelope) error {
	select {
	case <-c.done:
		return domain.ErrChannelClosed
	default:
	}
	select {
	case c.out <- env:
		return nil
	default:
		// Slow consumer. Dropping beats stalling the relay, but the
		// caller has to see the loss, not just the log.
		return fmt.Errorf("%w: %s to %s", domain.ErrSendQueueFull, env.Name, c.id)
	}
}

func (c *wsChannel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *wsChannel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.out:
			if err := c.conn.WriteJSON(env); err != nil {
				log.Error().Err(err).Str("client_id", c.id).Msg("Error writing to websocket")
				c.Close()
				return
			}
		}
	}
}

// ServeRTC handles a per-room call channel. Connection parameters are
// the room id, the participant id and the call type; the connection is
// refused when any is missing.
func (h *Handler) ServeRTC(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	room := domain.RoomID(q.Get("room"))
	username := q.Get("username")
	callType, typeOK := domain.ParseCallType(q.Get("type"))
	if room == "" || username == "" || !typeOK {
		http.Error(w, "room, username and type are required", http.StatusBadRequest)
		return
	}

	up := upgrader
	up.CheckOrigin = h.checkOrigin
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	ch := newWSChannel(username, conn, h.sendBuffer)

	l := log.With().Str("room", room.String()).Str("client_id", username).Logger()
	l.Info().Str("type", string(callType)).Msg("Call channel opened")

	defer func() {
		l.Info().Msg("Call channel closed")
		h.Coordinator.HandleClose(room, username)
		ch.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		env, err := domain.Decode(raw)
		if err != nil {
			l.Warn().Err(err).Msg("Rejected signaling message")
			continue
		}

		if err := h.Coordinator.HandleMessage(room, username, callType, ch, env); err != nil {
			l.Warn().Err(err).Str("kind", string(env.Name)).Msg("Signaling message not processed")
		}
	}
}

// ServePresence handles the long-lived per-user channel that carries
// call invitations (and, in the full application, unrelated
// notifications). Inbound traffic is not interpreted here; the read
// loop only tracks liveness.
func (h *Handler) ServePresence(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	up := upgrader
	up.CheckOrigin = h.checkOrigin
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	ch := newWSChannel(username, conn, h.sendBuffer)
	h.Presence.Connect(username, ch)

	l := log.With().Str("client_id", username).Logger()
	l.Info().Msg("Presence channel opened")

	defer func() {
		l.Info().Msg("Presence channel closed")
		h.Presence.Disconnect(username, ch)
		ch.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}
	}
}

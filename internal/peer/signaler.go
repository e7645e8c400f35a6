package peer

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/glimchat/glim/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Signaler is the only surface the peer package needs from the
// signaling transport. Messages delivers inbound envelopes in strict
// arrival order; the channel is closed when the transport dies.
type Signaler interface {
	Send(env domain.Envelope) error
	Messages() <-chan domain.Envelope
	Close() error
}

// WSChannel is a websocket-backed Signaler for both the per-user
// presence channel and per-room call channels.
type WSChannel struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	msgs    chan domain.Envelope
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// DialRoom opens the room-scoped call channel.
func DialRoom(ctx context.Context, baseURL string, room domain.RoomID, username string, callType domain.CallType) (*WSChannel, error) {
	q := url.Values{}
	q.Set("room", room.String())
	q.Set("username", username)
	q.Set("type", string(callType))
	return dial(ctx, baseURL+"/rtc/connect?"+q.Encode())
}

// DialPresence opens the long-lived invitation channel.
func DialPresence(ctx context.Context, baseURL, username string) (*WSChannel, error) {
	q := url.Values{}
	q.Set("username", username)
	return dial(ctx, baseURL+"/presence/connect?"+q.Encode())
}

func dial(ctx context.Context, target string) (*WSChannel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling channel: %w", err)
	}
	c := &WSChannel{
		conn: conn,
		msgs: make(chan domain.Envelope, 32),
		done: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *WSChannel) Send(env domain.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelClosed, err)
	}
	return nil
}

func (c *WSChannel) Messages() <-chan domain.Envelope {
	return c.msgs
}

func (c *WSChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *WSChannel) readLoop() {
	defer close(c.msgs)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("Signaling channel read error")
			}
			return
		}
		env, err := domain.Decode(raw)
		if err != nil {
			log.Warn().Err(err).Msg("Dropping malformed signaling message")
			continue
		}
		// The consumer may stop draining after teardown; a plain send
		// would pin this goroutine forever once the buffer fills.
		select {
		case c.msgs <- env:
		case <-c.done:
			return
		}
	}
}

package service

import (
	"sync"
	"testing"

	"github.com/glimchat/glim/internal/core/domain"
	"github.com/stretchr/testify/require"
)

// fakeChannel records everything sent through it.
type fakeChannel struct {
	id string

	mu     sync.Mutex
	sent   []domain.Envelope
	closed bool
}

func newFakeChannel(id string) *fakeChannel {
	return &fakeChannel{id: id}
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(env domain.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrChannelClosed
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) messages() []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Envelope, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeChannel) kinds() []domain.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Kind, 0, len(c.sent))
	for _, env := range c.sent {
		out = append(out, env.Name)
	}
	return out
}

func TestRoomRegistryJoinLeave(t *testing.T) {
	req := require.New(t)
	r := NewRoomRegistry()
	room := domain.RoomID("r1")

	req.False(r.Exists(room))

	r.Join(room, "alice", newFakeChannel("alice"))
	req.True(r.Exists(room))
	req.ElementsMatch([]string{"alice"}, r.Members(room))

	r.Join(room, "bob", newFakeChannel("bob"))
	req.ElementsMatch([]string{"alice", "bob"}, r.Members(room))

	req.True(r.Leave(room, "alice"))
	req.True(r.Exists(room))

	// Room dies the instant the last member leaves.
	req.True(r.Leave(room, "bob"))
	req.False(r.Exists(room))
	req.Empty(r.Members(room))
}

func TestRoomRegistryLeaveIdempotent(t *testing.T) {
	req := require.New(t)
	r := NewRoomRegistry()
	room := domain.RoomID("r1")

	r.Join(room, "alice", newFakeChannel("alice"))
	req.True(r.Leave(room, "alice"))
	req.False(r.Leave(room, "alice"))
	req.False(r.Leave(room, "ghost"))
	req.False(r.Leave(domain.RoomID("nope"), "alice"))
}

func TestRoomRegistryRejoinReplacesChannel(t *testing.T) {
	req := require.New(t)
	r := NewRoomRegistry()
	room := domain.RoomID("r1")

	first := newFakeChannel("alice")
	second := newFakeChannel("alice")
	r.Join(room, "alice", first)
	r.Join(room, "alice", second)

	req.Len(r.Members(room), 1)
	ch, ok := r.Member(room, "alice")
	req.True(ok)
	req.Same(second, ch.(*fakeChannel))
}

func TestRoomRegistryBroadcast(t *testing.T) {
	req := require.New(t)
	r := NewRoomRegistry()
	room := domain.RoomID("r1")

	alice := newFakeChannel("alice")
	bob := newFakeChannel("bob")
	carol := newFakeChannel("carol")
	r.Join(room, "alice", alice)
	r.Join(room, "bob", bob)
	r.Join(room, "carol", carol)

	// Exclude the sender, and filter carol out via the predicate.
	r.Broadcast(room, "alice", func(name string) bool { return name != "carol" }, domain.NewPeerMessage("alice"))

	req.Empty(alice.messages())
	req.Empty(carol.messages())
	req.Len(bob.messages(), 1)
	req.Equal(domain.KindNewPeer, bob.messages()[0].Name)
	req.Equal("alice", bob.messages()[0].Sender)
}

func TestRoomRegistryBroadcastUnknownRoom(t *testing.T) {
	r := NewRoomRegistry()
	// Must not panic.
	r.Broadcast(domain.RoomID("nope"), "alice", nil, domain.RejectMessage("alice"))
}

func TestRoomRegistryJoinDuringLeaveStaysReachable(t *testing.T) {
	req := require.New(t)
	r := NewRoomRegistry()
	room := domain.RoomID("r1")

	// A join racing the leave that empties the room must land in the
	// live room, never in a deleted one later broadcasts can't reach.
	for i := 0; i < 500; i++ {
		r.Join(room, "old", newFakeChannel("old"))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Leave(room, "old")
		}()
		joiner := newFakeChannel("new")
		go func() {
			defer wg.Done()
			r.Join(room, "new", joiner)
		}()
		wg.Wait()

		ch, ok := r.Member(room, "new")
		req.True(ok)
		req.Same(joiner, ch.(*fakeChannel))

		r.Broadcast(room, "nobody", nil, domain.NewPeerMessage("x"))
		req.NotEmpty(joiner.messages())

		r.Leave(room, "new")
		r.Leave(room, "old")
	}
}

func TestRoomRegistryConcurrentJoinLeave(t *testing.T) {
	req := require.New(t)
	r := NewRoomRegistry()
	room := domain.RoomID("r1")

	var wg sync.WaitGroup
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			r.Join(room, name, newFakeChannel(name))
			r.Broadcast(room, name, nil, domain.NewPeerMessage(name))
			r.Leave(room, name)
		}(name)
	}
	wg.Wait()

	req.False(r.Exists(room))
}

package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glimchat/glim/internal/core/domain"
	"github.com/glimchat/glim/internal/core/port"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Failure reasons surfaced to the originator as connect_fail.
const (
	reasonSelfOffline = "you are offline"
	reasonSelfBusy    = "you are already in a call"
	reasonPeerOffline = "the other side is offline"
	reasonPeerBusy    = "the other side is busy in another call"
	reasonNobody      = "no one is available to join the call"
	reasonEmptyInvite = "no one to call"
	reasonNotAnswered = "call was not answered"
	reasonInternal    = "internal error, connection failed"
)

type ringTimer struct {
	timer      *time.Timer
	originator string
}

// Coordinator validates invitations, fans them out, and relays
// negotiation messages within a room. It owns the per-participant,
// per-room call state; busy flags live in the presence registry and are
// only flipped through it.
type Coordinator struct {
	rooms       *RoomRegistry
	presence    port.Presence
	contacts    port.ContactDirectory
	ringTimeout time.Duration

	mu     sync.Mutex
	states map[domain.RoomID]map[string]domain.CallState
	rings  map[domain.RoomID]*ringTimer
}

// NewCoordinator builds a coordinator. A non-positive ringTimeout
// disables the unanswered-invitation timer.
func NewCoordinator(rooms *RoomRegistry, presence port.Presence, contacts port.ContactDirectory, ringTimeout time.Duration) *Coordinator {
	return &Coordinator{
		rooms:       rooms,
		presence:    presence,
		contacts:    contacts,
		ringTimeout: ringTimeout,
		states:      make(map[domain.RoomID]map[string]domain.CallState),
		rings:       make(map[domain.RoomID]*ringTimer),
	}
}

// HandleMessage processes one decoded signaling message from a room
// channel. Admission failures are answered on ch as connect_fail; the
// returned error only feeds diagnostics and never kills the channel.
func (c *Coordinator) HandleMessage(room domain.RoomID, user string, callType domain.CallType, ch port.SignalChannel, env domain.Envelope) error {
	switch env.Name {
	case domain.KindCreateRoom:
		return c.createRoom(room, user, callType, ch, env)
	case domain.KindNewPeer:
		return c.newPeer(room, user, ch)
	case domain.KindOffer, domain.KindAnswer, domain.KindICECandidate:
		return c.relay(room, user, env)
	case domain.KindReject:
		c.teardown(room, user)
		return nil
	default:
		return fmt.Errorf("%w: %q not accepted from a room channel", domain.ErrUnknownMessage, env.Name)
	}
}

// HandleClose runs the disconnect cleanup for a room channel. It is
// identical to an explicit reject and safe to call more than once.
func (c *Coordinator) HandleClose(room domain.RoomID, user string) {
	c.teardown(room, user)
}

// RoomMembers returns the currently-busy usernames in a room excluding
// the caller. Unknown rooms yield an empty list.
func (c *Coordinator) RoomMembers(room domain.RoomID, caller string) []string {
	return lo.Filter(c.rooms.Members(room), func(name string, _ int) bool {
		if name == caller {
			return false
		}
		busy, _ := c.presence.IsBusy(name)
		return busy
	})
}

// State reports the call state of a participant in a room.
func (c *Coordinator) State(room domain.RoomID, user string) (domain.CallState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[room][user]
	return st, ok
}

// createRoom admits an invitation. The originator's busy check-and-set
// and the per-candidate eligibility checks run as one atomic unit
// inside Presence.Admit, so concurrent invitations cannot double-book
// anyone. On success the originator joins the room and every surviving
// invitee receives an invitee-specific receiver list over its presence
// channel.
func (c *Coordinator) createRoom(room domain.RoomID, user string, callType domain.CallType, ch port.SignalChannel, env domain.Envelope) error {
	candidates := lo.Uniq(lo.FilterMap(env.CallReceiverList, func(ct domain.Contact, _ int) (string, bool) {
		return ct.Username, ct.Username != user && ct.Username != ""
	}))
	if len(candidates) == 0 {
		c.fail(ch, reasonEmptyInvite)
		return domain.ErrNoEligibleInvitee
	}
	if callType == domain.CallPrivate {
		// A private call has exactly one counterpart.
		candidates = candidates[:1]
	}

	verdicts, err := c.presence.Admit(user, candidates)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOffline):
			c.fail(ch, reasonSelfOffline)
		case errors.Is(err, domain.ErrBusy):
			c.fail(ch, reasonSelfBusy)
		default:
			c.fail(ch, reasonInternal)
		}
		return err
	}

	eligible := lo.FilterMap(verdicts, func(v port.Candidacy, _ int) (string, bool) {
		return v.Username, v.Verdict == port.VerdictEligible
	})
	if len(eligible) == 0 {
		if callType == domain.CallPrivate && verdicts[0].Verdict == port.VerdictOffline {
			c.fail(ch, reasonPeerOffline)
		} else if callType == domain.CallPrivate {
			c.fail(ch, reasonPeerBusy)
		} else {
			c.fail(ch, reasonNobody)
		}
		return domain.ErrNoEligibleInvitee
	}

	c.rooms.Join(room, user, ch)
	c.setState(room, user, domain.StateInviting)

	// The list each invitee gets excludes candidates that were dropped
	// and the invitee itself. Group clients put the originator's own
	// entry in the request; for private calls it is synthesized from
	// the relationship store, since the originator is not yet known to
	// the invitee's room view.
	eligibleSet := lo.SliceToMap(eligible, func(name string) (string, struct{}) { return name, struct{}{} })
	base := lo.Filter(env.CallReceiverList, func(ct domain.Contact, _ int) bool {
		if ct.Username == user {
			return true
		}
		_, ok := eligibleSet[ct.Username]
		return ok
	})
	hasOriginator := lo.ContainsBy(base, func(ct domain.Contact) bool { return ct.Username == user })

	for _, invitee := range eligible {
		list := lo.Filter(base, func(ct domain.Contact, _ int) bool { return ct.Username != invitee })
		if !hasOriginator {
			list = append(list, c.originatorContact(invitee, user))
		}
		if err := c.presence.SendToUser(invitee, domain.CreateRoomInvite(room, env.Mode, list)); err != nil {
			// The invitee raced offline after admission. That only
			// removes this invitee, never the whole call.
			log.Warn().Err(err).Str("room", room.String()).Str("invitee", invitee).Msg("Invite delivery failed")
			continue
		}
		c.setState(room, invitee, domain.StateRinging)
	}

	c.startRing(room, user)
	log.Info().Str("room", room.String()).Str("originator", user).Strs("invitees", eligible).Str("mode", string(env.Mode)).Msg("Call room created")
	return nil
}

// newPeer marks the joining invitee busy, adds it to the room, and
// announces it to every member that is already busy. The busy predicate
// keeps the announcement away from members that have not completed
// their own join yet.
func (c *Coordinator) newPeer(room domain.RoomID, user string, ch port.SignalChannel) error {
	if err := c.presence.SetBusy(user, true); err != nil {
		log.Warn().Err(err).Str("room", room.String()).Str("participant", user).Msg("Joining peer has no presence entry")
	}
	c.rooms.Join(room, user, ch)
	c.setState(room, user, domain.StateNegotiating)
	c.cancelRing(room)

	c.rooms.Broadcast(room, user, c.busyPred, domain.NewPeerMessage(user))
	return nil
}

// relay forwards a directed negotiation message to exactly the named
// receiver. A receiver absent from the room drops the message with a
// diagnostic; it is never fanned out elsewhere.
func (c *Coordinator) relay(room domain.RoomID, user string, env domain.Envelope) error {
	if env.Receiver == "" {
		return fmt.Errorf("%w: %s without receiver", domain.ErrRelayTargetMissing, env.Name)
	}
	target, ok := c.rooms.Member(room, env.Receiver)
	if !ok {
		log.Warn().Str("room", room.String()).Str("sender", user).Str("receiver", env.Receiver).Str("kind", string(env.Name)).Msg("Relay target not in room, dropping")
		return fmt.Errorf("%w: %s", domain.ErrRelayTargetMissing, env.Receiver)
	}

	out := env
	out.Sender = user
	if err := target.Send(out); err != nil {
		return fmt.Errorf("relay %s to %s: %w", env.Name, env.Receiver, err)
	}
	if env.Name == domain.KindAnswer {
		// The pair is description-complete once the answer passes through.
		c.setState(room, user, domain.StateActive)
		c.setState(room, env.Receiver, domain.StateActive)
	}
	return nil
}

// teardown is the shared reject/disconnect path. The first call for a
// given participant broadcasts the reject and clears the busy flag;
// repeats are no-ops.
func (c *Coordinator) teardown(room domain.RoomID, user string) {
	c.mu.Lock()
	st, known := c.states[room][user]
	if known {
		delete(c.states[room], user)
	}
	wasInviting := known && st == domain.StateInviting
	wasRinging := known && st == domain.StateRinging

	// An originator abandoning an unanswered invitation takes the
	// still-ringing invitees' pending state with it.
	var ringing []string
	if wasInviting {
		for name, ps := range c.states[room] {
			if ps == domain.StateRinging {
				ringing = append(ringing, name)
				delete(c.states[room], name)
			}
		}
	}
	c.mu.Unlock()

	removed := c.rooms.Leave(room, user)
	if !removed && !wasRinging {
		return
	}

	// Reaches the members already in the call; a ringing invitee
	// declining before joining was never a member but its decline still
	// has to be heard.
	c.rooms.Broadcast(room, user, c.busyPred, domain.RejectMessage(user))
	for _, name := range ringing {
		if err := c.presence.SendToUser(name, domain.RejectMessage(user)); err != nil {
			log.Debug().Err(err).Str("invitee", name).Msg("Ring cancel delivery failed")
		}
	}

	if err := c.presence.SetBusy(user, false); err != nil {
		log.Debug().Err(err).Str("participant", user).Msg("Busy flag clear on absent user")
	}

	if !c.rooms.Exists(room) {
		c.mu.Lock()
		delete(c.states, room)
		c.mu.Unlock()
		c.cancelRing(room)
	}
	log.Info().Str("room", room.String()).Str("participant", user).Msg("Participant left call")
}

func (c *Coordinator) fail(ch port.SignalChannel, reason string) {
	if err := ch.Send(domain.ConnectFailMessage(reason)); err != nil {
		log.Warn().Err(err).Msg("connect_fail delivery failed")
	}
}

func (c *Coordinator) busyPred(name string) bool {
	busy, _ := c.presence.IsBusy(name)
	return busy
}

func (c *Coordinator) originatorContact(invitee, originator string) domain.Contact {
	ct, err := c.contacts.Lookup(invitee, originator)
	if err != nil {
		return domain.Contact{Username: originator}
	}
	return ct
}

func (c *Coordinator) setState(room domain.RoomID, user string, st domain.CallState) {
	c.mu.Lock()
	if _, ok := c.states[room]; !ok {
		c.states[room] = make(map[string]domain.CallState)
	}
	c.states[room][user] = st
	c.mu.Unlock()
}

// startRing arms the unanswered-invitation timer. When nobody joins the
// room before the deadline the call is torn down and the originator
// told why, instead of ringing forever.
func (c *Coordinator) startRing(room domain.RoomID, originator string) {
	if c.ringTimeout <= 0 {
		return
	}
	c.mu.Lock()
	rt := &ringTimer{originator: originator}
	rt.timer = time.AfterFunc(c.ringTimeout, func() { c.ringExpired(room) })
	c.rings[room] = rt
	c.mu.Unlock()
}

func (c *Coordinator) cancelRing(room domain.RoomID) {
	c.mu.Lock()
	if rt, ok := c.rings[room]; ok {
		rt.timer.Stop()
		delete(c.rings, room)
	}
	c.mu.Unlock()
}

func (c *Coordinator) ringExpired(room domain.RoomID) {
	c.mu.Lock()
	rt, ok := c.rings[room]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.rings, room)
	c.mu.Unlock()

	if ch, ok := c.rooms.Member(room, rt.originator); ok {
		if err := ch.Send(domain.ConnectFailMessage(reasonNotAnswered)); err != nil {
			log.Warn().Err(err).Str("room", room.String()).Msg("Ring timeout notice failed")
		}
	}
	log.Info().Str("room", room.String()).Str("originator", rt.originator).Dur("timeout", c.ringTimeout).Msg("Invitation rang out")
	c.teardown(room, rt.originator)
}
